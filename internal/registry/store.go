package registry

import (
	"context"

	"rxvc/pkg/domain"
)

// Store persists actors.
type Store interface {
	Registry
	Register(ctx context.Context, actor Actor) error
	Find(ctx context.Context, did domain.DID, role domain.Role) (Actor, error)
	SetActive(ctx context.Context, did domain.DID, role domain.Role, active bool) error
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

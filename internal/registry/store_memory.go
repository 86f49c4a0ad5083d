package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"rxvc/pkg/domain"
	"rxvc/pkg/platform/sentinel"
)

type actorKey struct {
	did  domain.DID
	role domain.Role
}

// InMemoryStore keeps actors in a map.
type InMemoryStore struct {
	mu     sync.RWMutex
	actors map[actorKey]Actor
}

// NewInMemoryStore creates a store seeded with actors.
func NewInMemoryStore(actors ...Actor) *InMemoryStore {
	s := &InMemoryStore{actors: make(map[actorKey]Actor)}
	for _, a := range actors {
		s.actors[actorKey{a.DID, a.Role}] = a
	}
	return s
}

func (s *InMemoryStore) Register(_ context.Context, actor Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	actor.Scopes = slices.Clone(actor.Scopes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actorKey{actor.DID, actor.Role}] = actor
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, did domain.DID, role domain.Role) (Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[actorKey{did, role}]
	if !ok {
		return Actor{}, sentinel.ErrNotFound
	}
	return a, nil
}

func (s *InMemoryStore) SetActive(_ context.Context, did domain.DID, role domain.Role, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := actorKey{did, role}
	a, ok := s.actors[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.Active = active
	s.actors[key] = a
	return nil
}

func (s *InMemoryStore) IsAuthorized(_ context.Context, did domain.DID, role domain.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[actorKey{did, role}]
	return ok && a.Active, nil
}

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rxvc/pkg/domain"
	"rxvc/pkg/platform/sentinel"
)

// PostgresStore persists actors in the actors table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed actor store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, actor Actor) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	scopes := actor.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (did, role, name, license, active, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (did, role) DO UPDATE SET
			name = EXCLUDED.name,
			license = EXCLUDED.license,
			active = EXCLUDED.active,
			scopes = EXCLUDED.scopes`,
		actor.DID.String(),
		actor.Role.String(),
		actor.Name,
		sql.NullString{String: actor.License, Valid: actor.License != ""},
		actor.Active,
		pq.Array(scopes),
		actor.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("register actor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, did domain.DID, role domain.Role) (Actor, error) {
	var (
		a       Actor
		didStr  string
		roleStr string
		license sql.NullString
		scopes  pq.StringArray
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT did, role, name, license, active, scopes, created_at
		FROM actors WHERE did = $1 AND role = $2`,
		did.String(), role.String(),
	).Scan(&didStr, &roleStr, &a.Name, &license, &a.Active, &scopes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Actor{}, sentinel.ErrNotFound
		}
		return Actor{}, fmt.Errorf("find actor: %w", err)
	}
	a.DID = domain.DID(didStr)
	a.Role = domain.Role(roleStr)
	a.License = license.String
	a.Scopes = []string(scopes)
	return a, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, did domain.DID, role domain.Role, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actors SET active = $3 WHERE did = $1 AND role = $2`,
		did.String(), role.String(), active)
	if err != nil {
		return fmt.Errorf("set actor active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set actor active: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IsAuthorized(ctx context.Context, did domain.DID, role domain.Role) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT active FROM actors WHERE did = $1 AND role = $2`,
		did.String(), role.String(),
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check actor authorization: %w", err)
	}
	return active, nil
}

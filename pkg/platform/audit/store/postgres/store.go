package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	audit "rxvc/pkg/platform/audit"
	txcontext "rxvc/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store on the append-only audit_events table.
// When a transaction is present in the context the insert joins it, so an
// event commits or rolls back with the credential write it describes.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	if event.ID != "" {
		parsed, err := uuid.Parse(event.ID)
		if err != nil {
			return fmt.Errorf("parse audit event id: %w", err)
		}
		eventID = parsed
	}

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, actor_id, subject, action,
			decision, reason, request_id, client, token_fingerprint, frame_version, entry_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		eventID,
		string(category),
		event.Timestamp,
		event.ActorID,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.Client,
		event.TokenFingerprint,
		event.FrameVersion,
		event.EntryHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events for a credential in chronological order.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT id, category, timestamp, actor_id, subject, action,
			   decision, reason, request_id, client, token_fingerprint, frame_version, entry_hash
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// Count returns the number of persisted events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// scanEvents scans multiple rows into audit.Event slice.
func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			id       uuid.UUID
			category string
			event    audit.Event
		)

		err := rows.Scan(
			&id,
			&category,
			&event.Timestamp,
			&event.ActorID,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.Client,
			&event.TokenFingerprint,
			&event.FrameVersion,
			&event.EntryHash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.ID = id.String()
		event.Category = audit.EventCategory(category)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

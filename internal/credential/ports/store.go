package ports

//go:generate mockgen -source=store.go -destination=mocks/store.go -package=mocks CredentialStore

import (
	"context"

	"rxvc/internal/credential/models"
)

// CredentialStore persists signed credentials with their lifecycle state.
// Lookups return sentinel.ErrNotFound when nothing matches.
type CredentialStore interface {
	// Save inserts a new record. A second active dispensing record for the
	// same prescription, or a second confirmation for the same dispensing
	// record, fails with sentinel.ErrConflict.
	Save(ctx context.Context, record models.Record) error
	FindByID(ctx context.Context, id string) (models.Record, error)
	// FindDispensing returns the active dispensing record of a prescription.
	FindDispensing(ctx context.Context, prescriptionID string) (models.Record, error)
	// FindConfirmation returns the confirmation record of a dispensing record.
	FindConfirmation(ctx context.Context, dispensingID string) (models.Record, error)
	// UpdateStatus moves a record to next if the transition is allowed and
	// fails with sentinel.ErrInvalidState otherwise.
	UpdateStatus(ctx context.Context, id string, next models.Status) (models.Record, error)
	Statistics(ctx context.Context) (models.Statistics, error)
}

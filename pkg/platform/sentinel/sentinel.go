// Package sentinel holds the facts stores report about records. Services
// translate them into domain errors; stores never return domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound: no record with the requested key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the write would break a uniqueness rule, such as a second
	// active dispensing for one prescription.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the record's status does not allow the change.
	ErrInvalidState = errors.New("invalid state")
)

// Package store persists credential records.
package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"rxvc/internal/credential/models"
	"rxvc/internal/fraud"
	"rxvc/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map. The single-dispensing rule is
// enforced by checking and writing under one lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	switch record.Type {
	case models.TypeDispensing:
		if _, ok := s.byReference(models.TypeDispensing, record.Reference, true); ok {
			return sentinel.ErrConflict
		}
	case models.TypeConfirmation:
		if _, ok := s.byReference(models.TypeConfirmation, record.Reference, false); ok {
			return sentinel.ErrConflict
		}
	}
	s.records[record.ID] = record
	return nil
}

// Snapshot copies the current records. The returned func puts them back,
// discarding every write made since.
func (s *InMemoryStore) Snapshot() (restore func()) {
	s.mu.RLock()
	saved := maps.Clone(s.records)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.records = saved
		s.mu.Unlock()
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return models.Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindDispensing(_ context.Context, prescriptionID string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.byReference(models.TypeDispensing, prescriptionID, true); ok {
		return r, nil
	}
	return models.Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindConfirmation(_ context.Context, dispensingID string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.byReference(models.TypeConfirmation, dispensingID, false); ok {
		return r, nil
	}
	return models.Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id string, next models.Status) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return models.Record{}, sentinel.ErrNotFound
	}
	if !r.Status.CanTransitionTo(next) {
		return models.Record{}, sentinel.ErrInvalidState
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	s.records[id] = r
	return r, nil
}

func (s *InMemoryStore) Statistics(_ context.Context) (models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.NewStatistics()
	for _, r := range s.records {
		stats.CredentialsByType[r.Type]++
		switch r.Type {
		case models.TypePrescription:
			stats.PrescriptionsByState[r.Status]++
		case models.TypeDispensing:
			if r.FraudScore != nil {
				stats.DispensingRiskBands[fraud.BandFor(*r.FraudScore).String()]++
			}
		}
	}
	return stats, nil
}

// byReference must be called with the lock held.
func (s *InMemoryStore) byReference(t models.CredentialType, reference string, activeOnly bool) (models.Record, bool) {
	for _, r := range s.records {
		if r.Type != t || r.Reference != reference {
			continue
		}
		if !activeOnly || r.Status.IsActive() {
			return r, true
		}
	}
	return models.Record{}, false
}

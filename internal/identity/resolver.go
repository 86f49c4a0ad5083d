package identity

import (
	"context"
	"sync"

	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

// Collaborator is the name used when wrapping resolver failures.
const Collaborator = "identity resolver"

// Resolver returns the identity document for a DID.
type Resolver interface {
	Resolve(ctx context.Context, did domain.DID) (Document, error)
}

// Static serves documents registered in process. The local dev KMS publishes
// its keys here.
type Static struct {
	mu   sync.RWMutex
	docs map[domain.DID]Document
}

// NewStatic creates a Static resolver seeded with docs.
func NewStatic(docs ...Document) *Static {
	s := &Static{docs: make(map[domain.DID]Document)}
	for _, doc := range docs {
		s.docs[domain.DID(doc.ID)] = doc
	}
	return s
}

// Put registers or replaces a document.
func (s *Static) Put(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[domain.DID(doc.ID)] = doc
}

// Resolve returns the registered document or a not_found error.
func (s *Static) Resolve(_ context.Context, did domain.DID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[did]
	if !ok {
		return Document{}, dErrors.NotFound(Collaborator, did.String())
	}
	return doc, nil
}

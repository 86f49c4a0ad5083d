// Package identity resolves identity documents (DID documents) that publish
// the verification methods an issuer may sign with.
package identity

import (
	"fmt"

	"rxvc/internal/credential/models"
	"rxvc/pkg/domain"
)

// DefaultContexts are attached to documents produced by this service.
var DefaultContexts = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/suites/jws-2020/v1",
	"https://w3id.org/security/bbs/v1",
}

// Document is the subset of a DID document the engine reads.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// VerificationMethod is a public key published in a document.
type VerificationMethod struct {
	ID           string         `json:"id"`
	Type         models.KeyType `json:"type"`
	Controller   string         `json:"controller"`
	PublicKeyJwk *models.JWK    `json:"publicKeyJwk,omitempty"`
}

// Service is a service endpoint entry.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// NewDocument builds a document for did whose verification methods are all
// usable for assertions.
func NewDocument(did domain.DID, methods ...VerificationMethod) Document {
	doc := Document{
		Context: append([]string(nil), DefaultContexts...),
		ID:      did.String(),
	}
	for _, vm := range methods {
		if vm.Controller == "" {
			vm.Controller = did.String()
		}
		doc.VerificationMethod = append(doc.VerificationMethod, vm)
		doc.AssertionMethod = append(doc.AssertionMethod, vm.ID)
	}
	return doc
}

// MethodsOfType returns the verification methods of type t in document order.
func (d Document) MethodsOfType(t models.KeyType) []VerificationMethod {
	var out []VerificationMethod
	for _, vm := range d.VerificationMethod {
		if vm.Type == t {
			out = append(out, vm)
		}
	}
	return out
}

// MethodTypes lists the distinct verification method types in document order.
func (d Document) MethodTypes() []string {
	seen := make(map[models.KeyType]bool)
	var out []string
	for _, vm := range d.VerificationMethod {
		if seen[vm.Type] {
			continue
		}
		seen[vm.Type] = true
		out = append(out, string(vm.Type))
	}
	return out
}

// Validate checks the document belongs to did and that every verification
// method is controlled by it.
func (d Document) Validate(did domain.DID) error {
	if d.ID != did.String() {
		return fmt.Errorf("document id %q does not match %q", d.ID, did)
	}
	for _, vm := range d.VerificationMethod {
		if vm.ID == "" || vm.Type == "" {
			return fmt.Errorf("verification method without id or type in %q", d.ID)
		}
		if domain.ControllerOf(vm.ID) != did {
			return fmt.Errorf("verification method %q is not controlled by %q", vm.ID, did)
		}
	}
	return nil
}

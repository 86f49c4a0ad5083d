// Package registry records which actors may act in which role.
package registry

//go:generate mockgen -source=registry.go -destination=mocks/registry.go -package=mocks Registry

import (
	"context"
	"time"

	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

// Collaborator is the name used when wrapping registry failures.
const Collaborator = "actor registry"

// Actor is a registered participant.
type Actor struct {
	DID       domain.DID  `json:"did"`
	Role      domain.Role `json:"role"`
	Name      string      `json:"name"`
	License   string      `json:"license,omitempty"`
	Active    bool        `json:"active"`
	Scopes    []string    `json:"scopes,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Validate checks the actor before it is stored.
func (a Actor) Validate() error {
	if a.DID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor did is required")
	}
	if !a.Role.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported role %q", a.Role)
	}
	if a.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "actor name is required")
	}
	if (a.Role == domain.RoleDoctor || a.Role == domain.RolePharmacy) && a.License == "" {
		return dErrors.Newf(dErrors.CodeValidation, "%s actors require a license", a.Role)
	}
	return nil
}

// HasScope reports whether the actor holds scope.
func (a Actor) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Registry answers authorization questions about actors. A DID that is not
// registered for the role is not authorized; only infrastructure failures
// return an error.
type Registry interface {
	IsAuthorized(ctx context.Context, did domain.DID, role domain.Role) (bool, error)
}

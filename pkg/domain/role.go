package domain

import dErrors "rxvc/pkg/domain-errors"

// Role is the part an actor plays in the prescription workflow.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries to enforce the allowlist;
// direct casting bypasses validation.
type Role string

const (
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
	RoleInsurer  Role = "insurer"
	RolePatient  Role = "patient"
	RoleAuditor  Role = "auditor"
)

// validRoles is the single source of truth for valid roles.
var validRoles = map[Role]bool{
	RoleDoctor:   true,
	RolePharmacy: true,
	RoleInsurer:  true,
	RolePatient:  true,
	RoleAuditor:  true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}

package domain

import (
	"regexp"
	"strings"

	dErrors "rxvc/pkg/domain-errors"
)

// maxDIDLength bounds identifiers accepted at trust boundaries.
const maxDIDLength = 256

// didPattern follows the W3C DID syntax: did:<method>:<method-specific-id>.
var didPattern = regexp.MustCompile(`^did:[a-z0-9]+:[A-Za-z0-9._%\-]+(:[A-Za-z0-9._%\-]+)*$`)

// DID identifies an actor (doctor, pharmacy, insurer, patient, auditor).
// Invariant: a DID constructed through ParseDID is syntactically valid.
type DID string

// ParseDID validates a decentralized identifier from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, oversized or
// malformed.
func ParseDID(s string) (DID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did cannot be empty")
	}
	if len(s) > maxDIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did is too long")
	}
	if !didPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "did is malformed")
	}
	return DID(s), nil
}

func (d DID) String() string {
	return string(d)
}

// IsNil returns true if the DID is empty.
func (d DID) IsNil() bool {
	return d == ""
}

// Method returns the DID method segment ("key", "web", "example", ...).
func (d DID) Method() string {
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// VerificationMethodID builds a fragment reference ("did:x:y#frag").
func (d DID) VerificationMethodID(fragment string) string {
	return string(d) + "#" + fragment
}

// ControllerOf returns the DID part of a verification method reference.
func ControllerOf(verificationMethod string) DID {
	if idx := strings.Index(verificationMethod, "#"); idx != -1 {
		return DID(verificationMethod[:idx])
	}
	return DID(verificationMethod)
}

package models

import (
	"strings"

	dErrors "rxvc/pkg/domain-errors"
)

// CredentialType names the three credentials of the prescription chain.
type CredentialType string

const (
	TypePrescription CredentialType = "PrescriptionCredential"
	TypeDispensing   CredentialType = "DispensingCredential"
	TypeConfirmation CredentialType = "ConfirmationCredential"
)

var validTypes = map[CredentialType]bool{
	TypePrescription: true,
	TypeDispensing:   true,
	TypeConfirmation: true,
}

// ParseCredentialType validates a credential type from external input.
func ParseCredentialType(s string) (CredentialType, error) {
	t := CredentialType(strings.TrimSpace(s))
	if !validTypes[t] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported credential type %q", s)
	}
	return t, nil
}

func (t CredentialType) String() string { return string(t) }

// Suite is a signature suite identifier.
type Suite string

const (
	// SuiteBBS is the pairing-based suite over BLS12-381 that supports
	// selective disclosure of individual fields.
	SuiteBBS Suite = "BbsBlsSignature2020"
	// SuiteBBSProof is the proof type of a disclosure derived from SuiteBBS.
	SuiteBBSProof Suite = "BbsBlsSignatureProof2020"
	// SuiteJWS is the fallback suite; it signs the whole credential and
	// cannot derive partial disclosures.
	SuiteJWS Suite = "JsonWebSignature2020"
)

// SupportsDisclosure reports whether proofs of this suite can be derived
// into partial disclosures without re-signing.
func (s Suite) SupportsDisclosure() bool {
	return s == SuiteBBS
}

func (s Suite) String() string { return string(s) }

// KeyType is a verification method type as published in identity documents.
type KeyType string

const (
	KeyTypeBls12381G2 KeyType = "Bls12381G2Key2020"
	KeyTypeJWK        KeyType = "JsonWebKey2020"
)

// JWK is the public part of a JSON Web Key as carried in identity documents.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y,omitempty"`
}

// SameKey reports whether both coordinates are present and equal.
func (j JWK) SameKey(other JWK) bool {
	return j.X != "" && j.Y != "" && j.X == other.X && j.Y == other.Y
}

// KeyRef is a signing key the signer holds for a controller.
type KeyRef struct {
	ID           string  `json:"id"`
	Type         KeyType `json:"type"`
	PublicKeyJwk JWK     `json:"publicKeyJwk"`
}

// Selection is the outcome of key/suite resolution.
type Selection struct {
	VerificationMethod string  `json:"verificationMethod"`
	Suite              Suite   `json:"suite"`
	KeyType            KeyType `json:"keyType"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Contexts attached to every issued credential.
var DefaultContexts = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://w3id.org/security/bbs/v1",
	"https://rxvc.example/contexts/prescription/v1",
}

// Subject is the credentialSubject object. The "id" member holds the
// subject DID; every other member is a claim.
type Subject map[string]any

// Credential is a W3C verifiable credential. Proof is nil until signed.
type Credential struct {
	Context           []string  `json:"@context"`
	ID                string    `json:"id"`
	Type              []string  `json:"type"`
	Issuer            string    `json:"issuer"`
	IssuanceDate      time.Time `json:"issuanceDate"`
	CredentialSubject Subject   `json:"credentialSubject"`
	Proof             *Proof    `json:"proof,omitempty"`
}

// Proof is a linked-data proof. Signed proofs carry ProofValue (BBS) or JWS;
// derived proofs also carry the verifier nonce and the revealed paths.
type Proof struct {
	Type               Suite     `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue,omitempty"`
	JWS                string    `json:"jws,omitempty"`
	Nonce              string    `json:"nonce,omitempty"`
	Revealed           []string  `json:"revealed,omitempty"`
}

// CredentialType returns the most specific type (the last entry).
func (c Credential) CredentialType() CredentialType {
	if len(c.Type) == 0 {
		return ""
	}
	return CredentialType(c.Type[len(c.Type)-1])
}

// SubjectID returns the subject DID.
func (c Credential) SubjectID() string {
	id, _ := c.CredentialSubject["id"].(string)
	return id
}

// Unsigned returns a copy without the proof.
func (c Credential) Unsigned() Credential {
	c.Proof = nil
	return c
}

// IsSigned reports whether a proof is attached.
func (c Credential) IsSigned() bool {
	return c.Proof != nil
}

// NewCredentialID returns a fresh URN credential id.
func NewCredentialID() string {
	return "urn:uuid:" + uuid.NewString()
}

// Record is the persisted form of a signed credential plus the state that
// lives outside the signed payload.
type Record struct {
	ID         string
	Type       CredentialType
	Issuer     string
	Subject    string
	// Reference is the id of the credential this one follows in the chain
	// (dispensing -> prescription, confirmation -> dispensing).
	Reference  string
	Status     Status
	Credential Credential
	// FraudScore is the dispensing-time score (dispensing records only).
	FraudScore *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Suite returns the suite of the stored proof.
func (r Record) Suite() Suite {
	if r.Credential.Proof == nil {
		return ""
	}
	return r.Credential.Proof.Type
}

// Statistics summarizes stored credentials.
type Statistics struct {
	CredentialsByType    map[CredentialType]int `json:"credentialsByType"`
	PrescriptionsByState map[Status]int         `json:"prescriptionsByStatus"`
	DispensingRiskBands  map[string]int         `json:"dispensingRiskBands"`
}

// NewStatistics returns Statistics with initialized maps.
func NewStatistics() Statistics {
	return Statistics{
		CredentialsByType:    map[CredentialType]int{},
		PrescriptionsByState: map[Status]int{},
		DispensingRiskBands:  map[string]int{},
	}
}

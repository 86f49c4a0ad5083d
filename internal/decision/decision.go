// Package decision gathers cross-credential evidence for an insurance claim
// and renders it as a VerificationProof. Approval is a separate Policy so the
// rule can change without touching evidence gathering.
package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"rxvc/internal/fraud"
	"rxvc/pkg/domain"
)

// ClaimRequest identifies the claim to verify.
type ClaimRequest struct {
	Insurer        domain.DID
	PrescriptionID string
	DispensingID   string
	ClaimAmount    *float64
}

// VerificationProof is the evidence verdict for a claim. It carries no
// approval decision.
type VerificationProof struct {
	PrescriptionExists    bool       `json:"prescriptionExists"`
	MedicationDispensed   bool       `json:"medicationDispensed"`
	DoctorAuthorized      bool       `json:"doctorAuthorized"`
	PharmacyAuthorized    bool       `json:"pharmacyAuthorized"`
	PatientConfirmed      bool       `json:"patientConfirmed"`
	FraudScore            int        `json:"fraudScore"`
	FraudBand             fraud.Band `json:"fraudBand"`
	FailedChecks          []string   `json:"failedChecks"`
	ProofHash             string     `json:"proofHash"`
	VerificationTimestamp time.Time  `json:"verificationTimestamp"`
}

// Policy decides whether a verified claim is approved.
type Policy interface {
	Approve(p VerificationProof) bool
}

// DefaultPolicy approves when the score is below MaxScore and the
// prescription exists, was dispensed and was confirmed by the patient.
// Authorization booleans are reported on the proof but do not gate.
type DefaultPolicy struct {
	MaxScore int
}

func (d DefaultPolicy) Approve(p VerificationProof) bool {
	return p.FraudScore < d.MaxScore &&
		p.PrescriptionExists &&
		p.MedicationDispensed &&
		p.PatientConfirmed
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(VerificationProof) bool

func (f PolicyFunc) Approve(p VerificationProof) bool { return f(p) }

// bundle is the hashed evidence. Field order is fixed by the struct so the
// JSON encoding is canonical.
type bundle struct {
	Insurer               string   `json:"insurer"`
	PrescriptionID        string   `json:"prescriptionId"`
	PrescriptionStatus    string   `json:"prescriptionStatus"`
	PrescriptionProof     string   `json:"prescriptionProof"`
	DispensingID          string   `json:"dispensingId"`
	DispensingStatus      string   `json:"dispensingStatus"`
	DispensingProof       string   `json:"dispensingProof"`
	ConfirmationID        string   `json:"confirmationId,omitempty"`
	ClaimAmount           *float64 `json:"claimAmount,omitempty"`
	PrescriptionExists    bool     `json:"prescriptionExists"`
	MedicationDispensed   bool     `json:"medicationDispensed"`
	DoctorAuthorized      bool     `json:"doctorAuthorized"`
	PharmacyAuthorized    bool     `json:"pharmacyAuthorized"`
	PatientConfirmed      bool     `json:"patientConfirmed"`
	FraudScore            int      `json:"fraudScore"`
	FailedChecks          []string `json:"failedChecks"`
	VerificationTimestamp string   `json:"verificationTimestamp"`
}

func (b bundle) hash() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode evidence bundle: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

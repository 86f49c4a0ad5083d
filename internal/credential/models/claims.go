package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PatientInfo identifies the patient on a prescription.
type PatientInfo struct {
	Name        string `json:"name"`
	BirthDate   string `json:"birthDate"`
	InsuranceID string `json:"insuranceId"`
}

// DoctorInfo identifies the prescriber.
type DoctorInfo struct {
	Name           string `json:"name"`
	LicenseNumber  string `json:"licenseNumber"`
	Specialization string `json:"specialization"`
}

// PrescriptionClaims is the payload of a PrescriptionCredential.
type PrescriptionClaims struct {
	MedicationName string      `json:"medicationName"`
	Dosage         string      `json:"dosage"`
	Frequency      string      `json:"frequency"`
	Duration       string      `json:"duration"`
	Quantity       int         `json:"quantity"`
	Refills        int         `json:"refills"`
	ValidUntil     time.Time   `json:"validUntil"`
	Instructions   string      `json:"instructions,omitempty"`
	PatientInfo    PatientInfo `json:"patientInfo"`
	DoctorInfo     DoctorInfo  `json:"doctorInfo"`
}

// DispensingClaims is the payload of a DispensingCredential.
type DispensingClaims struct {
	PrescriptionID    string    `json:"prescriptionId"`
	BatchNumber       string    `json:"batchNumber"`
	ExpirationDate    string    `json:"expirationDate"`
	QuantityDispensed int       `json:"quantityDispensed"`
	PharmacyName      string    `json:"pharmacyName"`
	PharmacistLicense string    `json:"pharmacistLicense"`
	PatientConfirmed  bool      `json:"patientConfirmed"`
	DispensedAt       time.Time `json:"dispensedAt"`
}

// ConfirmationClaims is the payload of a ConfirmationCredential.
type ConfirmationClaims struct {
	DispensingID string    `json:"dispensingId"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
	Notes        string    `json:"notes,omitempty"`
}

// ToClaims converts a typed payload to the generic claim map used for
// schema validation, signing and projection.
func ToClaims(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal claims: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return out, nil
}

// FromSubject decodes a credentialSubject into a typed payload.
func FromSubject[T any](s Subject) (T, error) {
	var out T
	data, err := json.Marshal(s)
	if err != nil {
		return out, fmt.Errorf("marshal subject: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode subject: %w", err)
	}
	return out, nil
}

package handler

import (
	"strings"
	"time"

	"rxvc/internal/credential/models"
	"rxvc/pkg/domain"
	dErrors "rxvc/pkg/domain-errors"
)

// IssuePrescriptionRequest is the body of POST /prescriptions.
type IssuePrescriptionRequest struct {
	Patient string                    `json:"patientDid"`
	Claims  models.PrescriptionClaims `json:"prescription"`

	parsedPatient domain.DID
}

func (r *IssuePrescriptionRequest) Normalize() {
	r.Patient = strings.TrimSpace(r.Patient)
	r.Claims.MedicationName = strings.TrimSpace(r.Claims.MedicationName)
	r.Claims.Instructions = strings.TrimSpace(r.Claims.Instructions)
}

// Validate parses the patient DID. Claim content is validated by the issuer
// so every violation is reported together.
func (r *IssuePrescriptionRequest) Validate() error {
	if r.Patient == "" {
		return dErrors.New(dErrors.CodeValidation, "patientDid is required")
	}
	did, err := domain.ParseDID(r.Patient)
	if err != nil {
		return err
	}
	r.parsedPatient = did
	return nil
}

// DispenseRequest is the body of POST /prescriptions/{id}/dispense.
type DispenseRequest struct {
	BatchNumber       string     `json:"batchNumber"`
	ExpirationDate    string     `json:"expirationDate"`
	QuantityDispensed int        `json:"quantityDispensed"`
	PharmacyName      string     `json:"pharmacyName"`
	PharmacistLicense string     `json:"pharmacistLicense"`
	DispensedAt       *time.Time `json:"dispensedAt,omitempty"`
}

func (r *DispenseRequest) Normalize() {
	r.BatchNumber = strings.TrimSpace(r.BatchNumber)
	r.PharmacyName = strings.TrimSpace(r.PharmacyName)
	r.PharmacistLicense = strings.TrimSpace(r.PharmacistLicense)
}

func (r *DispenseRequest) Validate() error {
	if r.QuantityDispensed <= 0 {
		return dErrors.New(dErrors.CodeValidation, "quantityDispensed must be greater than zero")
	}
	return nil
}

func (r *DispenseRequest) claims() models.DispensingClaims {
	c := models.DispensingClaims{
		BatchNumber:       r.BatchNumber,
		ExpirationDate:    r.ExpirationDate,
		QuantityDispensed: r.QuantityDispensed,
		PharmacyName:      r.PharmacyName,
		PharmacistLicense: r.PharmacistLicense,
	}
	if r.DispensedAt != nil {
		c.DispensedAt = r.DispensedAt.UTC()
	}
	return c
}

// ConfirmRequest is the body of POST /dispensings/{id}/confirm.
type ConfirmRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (r *ConfirmRequest) Validate() error {
	if len(r.Notes) > 1000 {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 1000 characters")
	}
	return nil
}

// ClaimRequest is the body of POST /claims.
type ClaimRequest struct {
	PrescriptionID string   `json:"prescriptionId"`
	DispensingID   string   `json:"dispensingId"`
	ClaimAmount    *float64 `json:"claimAmount,omitempty"`
}

func (r *ClaimRequest) Normalize() {
	r.PrescriptionID = strings.TrimSpace(r.PrescriptionID)
	r.DispensingID = strings.TrimSpace(r.DispensingID)
}

func (r *ClaimRequest) Validate() error {
	if r.PrescriptionID == "" || r.DispensingID == "" {
		return dErrors.New(dErrors.CodeValidation, "prescriptionId and dispensingId are required")
	}
	if r.ClaimAmount != nil && *r.ClaimAmount < 0 {
		return dErrors.New(dErrors.CodeValidation, "claimAmount must not be negative")
	}
	return nil
}

// ReasonRequest is the body of the revoke and audit endpoints.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ReasonRequest) Validate() error {
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 500 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}

package config

import (
	"fmt"
	"slices"
)

// Frame names. The set is closed; disclosure.ParseFrameName mirrors it.
const (
	FramePharmacy  = "pharmacy"
	FrameInsurance = "insurance"
	FrameAudit     = "audit"
)

// Fraud check names.
const (
	CheckPrescriptionMissing  = "prescription_missing"
	CheckPrescriptionExpired  = "prescription_expired"
	CheckDoctorUnauthorized   = "doctor_unauthorized"
	CheckPharmacyUnauthorized = "pharmacy_unauthorized"
	CheckQuantityExceeded     = "quantity_exceeded"
	CheckDispensedOutside     = "dispensed_outside_validity"
	CheckPatientUnconfirmed   = "patient_unconfirmed"
)

// Engine is the explicit configuration handed to the disclosure, fraud and
// decision components at construction.
type Engine struct {
	Frames       map[string]Frame
	FraudWeights map[string]int
	Approval     Approval
}

// Frame is a versioned list of revealed credentialSubject field paths.
type Frame struct {
	Version string
	Fields  []string
}

// Approval holds the claim approval thresholds.
type Approval struct {
	// MaxScore is exclusive: a claim is approvable only when score < MaxScore.
	MaxScore int
}

// PrescriptionFields lists every credentialSubject path of a prescription
// credential (the "id" of the subject is always revealed).
var PrescriptionFields = []string{
	"medicationName",
	"dosage",
	"frequency",
	"duration",
	"quantity",
	"refills",
	"validUntil",
	"instructions",
	"patientInfo.name",
	"patientInfo.birthDate",
	"patientInfo.insuranceId",
	"doctorInfo.name",
	"doctorInfo.licenseNumber",
	"doctorInfo.specialization",
}

// Paths no pharmacy frame may reveal.
var pharmacyForbidden = []string{"patientInfo.insuranceId"}

// Paths no insurance frame may reveal.
var insuranceForbidden = []string{"dosage", "frequency", "duration", "instructions"}

// DefaultEngine returns the production frame set, fraud weights and approval
// threshold.
func DefaultEngine() Engine {
	return Engine{
		Frames: map[string]Frame{
			FramePharmacy: {
				Version: "1",
				Fields: []string{
					"medicationName",
					"dosage",
					"frequency",
					"duration",
					"quantity",
					"refills",
					"validUntil",
					"instructions",
					"patientInfo.name",
					"patientInfo.birthDate",
					"doctorInfo.name",
					"doctorInfo.licenseNumber",
				},
			},
			FrameInsurance: {
				Version: "1",
				Fields:  []string{"medicationName", "validUntil"},
			},
			FrameAudit: {
				Version: "1",
				Fields:  slices.Clone(PrescriptionFields),
			},
		},
		FraudWeights: map[string]int{
			CheckPrescriptionMissing:  50,
			CheckPrescriptionExpired:  25,
			CheckDoctorUnauthorized:   20,
			CheckPharmacyUnauthorized: 20,
			CheckQuantityExceeded:     25,
			CheckDispensedOutside:     15,
			CheckPatientUnconfirmed:   10,
		},
		Approval: Approval{MaxScore: 50},
	}
}

// Validate enforces the frame invariants and non-negative fraud weights.
func (e Engine) Validate() error {
	for _, name := range []string{FramePharmacy, FrameInsurance, FrameAudit} {
		if _, ok := e.Frames[name]; !ok {
			return fmt.Errorf("engine: frame %q is not configured", name)
		}
	}
	for name, f := range e.Frames {
		if name != FramePharmacy && name != FrameInsurance && name != FrameAudit {
			return fmt.Errorf("engine: unknown frame %q", name)
		}
		for _, field := range f.Fields {
			if !slices.Contains(PrescriptionFields, field) {
				return fmt.Errorf("engine: frame %q reveals unknown field %q", name, field)
			}
		}
	}

	audit := e.Frames[FrameAudit].Fields
	for name, f := range e.Frames {
		for _, field := range f.Fields {
			if !slices.Contains(audit, field) {
				return fmt.Errorf("engine: audit frame must include %q revealed by %q", field, name)
			}
		}
	}
	for _, field := range pharmacyForbidden {
		if slices.Contains(e.Frames[FramePharmacy].Fields, field) {
			return fmt.Errorf("engine: pharmacy frame must not reveal %q", field)
		}
	}
	for _, field := range insuranceForbidden {
		if slices.Contains(e.Frames[FrameInsurance].Fields, field) {
			return fmt.Errorf("engine: insurance frame must not reveal %q", field)
		}
	}

	for check, w := range e.FraudWeights {
		if w < 0 {
			return fmt.Errorf("engine: fraud weight %q must be >= 0, got %d", check, w)
		}
	}
	if e.Approval.MaxScore < 0 || e.Approval.MaxScore > 100 {
		return fmt.Errorf("engine: approval max score must be within [0,100], got %d", e.Approval.MaxScore)
	}
	return nil
}

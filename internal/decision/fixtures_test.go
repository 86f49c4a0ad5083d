package decision

import (
	"time"

	"rxvc/internal/credential/models"
)

var (
	issuedAt    = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	dispensedAt = time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)
	verifiedAt  = time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
)

const (
	doctorDID   = "did:example:doctor-1"
	pharmacyDID = "did:example:pharmacy-1"
	patientDID  = "did:example:patient-1"
	insurerDID  = "did:example:insurer-1"
)

func mustClaims(v any) models.Subject {
	claims, err := models.ToClaims(v)
	if err != nil {
		panic(err)
	}
	return models.Subject(claims)
}

func prescription(id string, status models.Status) models.Record {
	subject := mustClaims(models.PrescriptionClaims{
		MedicationName: "Amoxicillin",
		Dosage:         "500mg",
		Frequency:      "3x daily",
		Duration:       "10 days",
		Quantity:       30,
		Refills:        0,
		ValidUntil:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		PatientInfo:    models.PatientInfo{Name: "Jane Doe", BirthDate: "1980-02-03", InsuranceID: "INS-1"},
		DoctorInfo:     models.DoctorInfo{Name: "Dr. Smith", LicenseNumber: "MD-1", Specialization: "GP"},
	})
	subject["id"] = patientDID
	return models.Record{
		ID:      id,
		Type:    models.TypePrescription,
		Issuer:  doctorDID,
		Subject: patientDID,
		Status:  status,
		Credential: models.Credential{
			ID:                id,
			Type:              []string{"VerifiableCredential", string(models.TypePrescription)},
			Issuer:            doctorDID,
			IssuanceDate:      issuedAt,
			CredentialSubject: subject,
			Proof:             &models.Proof{Type: models.SuiteBBS, ProofValue: "rx-signature"},
		},
	}
}

func dispensing(id, prescriptionID string, quantity int) models.Record {
	subject := mustClaims(models.DispensingClaims{
		PrescriptionID:    prescriptionID,
		BatchNumber:       "B-1",
		ExpirationDate:    "2027-06-30",
		QuantityDispensed: quantity,
		PharmacyName:      "Main Street Pharmacy",
		PharmacistLicense: "PH-1",
		DispensedAt:       dispensedAt,
	})
	subject["id"] = patientDID
	return models.Record{
		ID:        id,
		Type:      models.TypeDispensing,
		Issuer:    pharmacyDID,
		Subject:   patientDID,
		Reference: prescriptionID,
		Status:    models.StatusIssued,
		Credential: models.Credential{
			ID:                id,
			Type:              []string{"VerifiableCredential", string(models.TypeDispensing)},
			Issuer:            pharmacyDID,
			IssuanceDate:      dispensedAt,
			CredentialSubject: subject,
			Proof:             &models.Proof{Type: models.SuiteBBS, ProofValue: "disp-signature"},
		},
	}
}

func confirmation(id, dispensingID string) models.Record {
	return models.Record{
		ID:        id,
		Type:      models.TypeConfirmation,
		Issuer:    patientDID,
		Subject:   patientDID,
		Reference: dispensingID,
		Status:    models.StatusIssued,
	}
}

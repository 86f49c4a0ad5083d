package store

import (
	"time"

	"rxvc/internal/credential/models"
)

var created = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func prescriptionRecord(id string) models.Record {
	return models.Record{
		ID:      id,
		Type:    models.TypePrescription,
		Issuer:  "did:example:doctor-1",
		Subject: "did:example:patient-1",
		Status:  models.StatusCreated,
		Credential: models.Credential{
			Context:           models.DefaultContexts,
			ID:                id,
			Type:              []string{"VerifiableCredential", string(models.TypePrescription)},
			Issuer:            "did:example:doctor-1",
			IssuanceDate:      created,
			CredentialSubject: models.Subject{"id": "did:example:patient-1", "medicationName": "Amoxicillin"},
			Proof:             &models.Proof{Type: models.SuiteBBS, VerificationMethod: "did:example:doctor-1#bbs-1", ProofValue: "sig"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func dispensingRecord(id, prescriptionID string, score int) models.Record {
	return models.Record{
		ID:         id,
		Type:       models.TypeDispensing,
		Issuer:     "did:example:pharmacy-1",
		Subject:    "did:example:patient-1",
		Reference:  prescriptionID,
		Status:     models.StatusIssued,
		FraudScore: &score,
		Credential: models.Credential{
			ID:                id,
			Type:              []string{"VerifiableCredential", string(models.TypeDispensing)},
			Issuer:            "did:example:pharmacy-1",
			IssuanceDate:      created,
			CredentialSubject: models.Subject{"id": "did:example:patient-1", "prescriptionId": prescriptionID},
			Proof:             &models.Proof{Type: models.SuiteJWS, JWS: "a..b"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func confirmationRecord(id, dispensingID string) models.Record {
	return models.Record{
		ID:        id,
		Type:      models.TypeConfirmation,
		Issuer:    "did:example:patient-1",
		Subject:   "did:example:patient-1",
		Reference: dispensingID,
		Status:    models.StatusIssued,
		Credential: models.Credential{
			ID:                id,
			Type:              []string{"VerifiableCredential", string(models.TypeConfirmation)},
			Issuer:            "did:example:patient-1",
			IssuanceDate:      created,
			CredentialSubject: models.Subject{"id": "did:example:patient-1", "dispensingId": dispensingID},
			Proof:             &models.Proof{Type: models.SuiteJWS, JWS: "c..d"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

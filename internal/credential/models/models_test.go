package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rxvc/pkg/domain-errors"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusCreated, StatusVerified, true},
		{StatusCreated, StatusDispensed, true},
		{StatusVerified, StatusVerified, true},
		{StatusVerified, StatusDispensed, true},
		{StatusDispensed, StatusConfirmed, true},
		{StatusDispensed, StatusRevoked, true},
		{StatusCreated, StatusConfirmed, false},
		{StatusConfirmed, StatusRevoked, false},
		{StatusRevoked, StatusCreated, false},
		{StatusRevoked, StatusRevoked, false},
		{StatusDispensed, StatusVerified, false},
		{StatusIssued, StatusRevoked, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseCredentialType(t *testing.T) {
	ct, err := ParseCredentialType("DispensingCredential")
	require.NoError(t, err)
	assert.Equal(t, TypeDispensing, ct)

	_, err = ParseCredentialType("DriverLicense")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSuiteSupportsDisclosure(t *testing.T) {
	assert.True(t, SuiteBBS.SupportsDisclosure())
	assert.False(t, SuiteJWS.SupportsDisclosure())
}

func TestJWKSameKey(t *testing.T) {
	a := JWK{Kty: "EC", Crv: "BLS12381_G2", X: "x1", Y: "y1"}
	assert.True(t, a.SameKey(JWK{X: "x1", Y: "y1"}))
	assert.False(t, a.SameKey(JWK{X: "x1", Y: "y2"}))
	assert.False(t, JWK{X: "x1"}.SameKey(JWK{X: "x1"}))
}

func TestSubjectProject(t *testing.T) {
	claims, err := ToClaims(PrescriptionClaims{
		MedicationName: "Amoxicillin",
		Dosage:         "500mg",
		Quantity:       21,
		ValidUntil:     time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		PatientInfo:    PatientInfo{Name: "Jane Roe", BirthDate: "1990-01-01", InsuranceID: "INS-1"},
	})
	require.NoError(t, err)
	subject := Subject(claims)
	subject["id"] = "did:example:patient-1"

	projected := subject.Project([]string{"medicationName", "patientInfo.name", "doesNot.exist"})

	assert.Equal(t, "did:example:patient-1", projected["id"])
	assert.Equal(t, "Amoxicillin", projected["medicationName"])
	assert.Equal(t, map[string]any{"name": "Jane Roe"}, projected["patientInfo"])
	_, hasDosage := projected["dosage"]
	assert.False(t, hasDosage)

	v, ok := projected.Lookup("patientInfo.insuranceId")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSubjectProject_IsOrderIndependentAndDetached(t *testing.T) {
	subject := Subject{
		"id":          "did:example:patient-1",
		"doctorInfo":  map[string]any{"name": "Dr. Who", "licenseNumber": "L-1"},
		"dosage":      "1 tablet",
		"patientInfo": map[string]any{"name": "Jane"},
	}

	a := subject.Project([]string{"dosage", "doctorInfo.name"})
	b := subject.Project([]string{"doctorInfo.name", "dosage"})
	assert.Equal(t, a, b)

	a["doctorInfo"].(map[string]any)["name"] = "mutated"
	assert.Equal(t, "Dr. Who", subject["doctorInfo"].(map[string]any)["name"])
}

func TestSubjectPaths(t *testing.T) {
	subject := Subject{
		"id":          "did:example:patient-1",
		"dosage":      "1 tablet",
		"patientInfo": map[string]any{"name": "Jane", "insuranceId": "I-1"},
	}
	assert.ElementsMatch(t, []string{"dosage", "patientInfo.name", "patientInfo.insuranceId"}, subject.Paths())
}

func TestFromSubject(t *testing.T) {
	claims, err := ToClaims(DispensingClaims{PrescriptionID: "urn:uuid:rx", QuantityDispensed: 10})
	require.NoError(t, err)

	typed, err := FromSubject[DispensingClaims](Subject(claims))
	require.NoError(t, err)
	assert.Equal(t, 10, typed.QuantityDispensed)
	assert.Equal(t, "urn:uuid:rx", typed.PrescriptionID)
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusCreated, StatusVerified, StatusDispensed, StatusIssued}, Predecessors(StatusRevoked))
	assert.ElementsMatch(t, []Status{StatusDispensed}, Predecessors(StatusConfirmed))
	assert.ElementsMatch(t, []Status{StatusCreated, StatusVerified}, Predecessors(StatusVerified))
}

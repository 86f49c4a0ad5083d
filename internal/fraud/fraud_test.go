package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rxvc/internal/credential/models"
	"rxvc/internal/platform/config"
)

var (
	issued     = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	validUntil = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	dispensed  = time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
)

func cleanClaim() Evidence {
	return Evidence{
		Stage:              StageClaim,
		PrescriptionFound:  true,
		PrescriptionStatus: models.StatusConfirmed,
		EvaluatedAt:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		IssuanceDate:       issued,
		ValidUntil:         validUntil,
		DoctorAuthorized:   true,
		PharmacyAuthorized: true,
		PrescribedQuantity: 30,
		DispensedQuantity:  30,
		DispensedAt:        dispensed,
		PatientConfirmed:   true,
	}
}

func TestFailedChecks(t *testing.T) {
	weights := config.DefaultEngine().FraudWeights

	tests := []struct {
		name   string
		mutate func(*Evidence)
		failed []string
		score  int
	}{
		{"clean claim", func(*Evidence) {}, nil, 0},
		{"revoked prescription", func(e *Evidence) { e.PrescriptionStatus = models.StatusRevoked },
			[]string{config.CheckPrescriptionMissing}, 50},
		{"expired at evaluation", func(e *Evidence) { e.EvaluatedAt = validUntil.Add(time.Hour) },
			[]string{config.CheckPrescriptionExpired}, 25},
		{"over-dispensed", func(e *Evidence) { e.DispensedQuantity = 31 },
			[]string{config.CheckQuantityExceeded}, 25},
		{"dispensed before issuance", func(e *Evidence) { e.DispensedAt = issued.Add(-time.Hour) },
			[]string{config.CheckDispensedOutside}, 15},
		{"unconfirmed claim", func(e *Evidence) { e.PatientConfirmed = false },
			[]string{config.CheckPatientUnconfirmed}, 10},
		{"unconfirmed dispensing is not checked", func(e *Evidence) {
			e.Stage = StageDispensing
			e.PatientConfirmed = false
		}, nil, 0},
		{"unauthorized actors", func(e *Evidence) {
			e.DoctorAuthorized = false
			e.PharmacyAuthorized = false
		}, []string{config.CheckDoctorUnauthorized, config.CheckPharmacyUnauthorized}, 40},
		{"everything fails caps at 100", func(e *Evidence) {
			e.PrescriptionFound = false
			e.EvaluatedAt = validUntil.Add(time.Hour)
			e.DoctorAuthorized = false
			e.PharmacyAuthorized = false
			e.DispensedQuantity = 99
			e.DispensedAt = validUntil.Add(time.Minute)
			e.PatientConfirmed = false
		}, Checks(), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := cleanClaim()
			tt.mutate(&e)
			assert.Equal(t, tt.failed, FailedChecks(e))
			assert.Equal(t, tt.score, Score(e, weights))
		})
	}
}

func TestScoreFailed_IsMonotonic(t *testing.T) {
	weights := config.DefaultEngine().FraudWeights
	checks := Checks()

	for mask := 0; mask < 1<<len(checks); mask++ {
		base := subset(checks, mask)
		baseScore := ScoreFailed(base, weights)
		assert.GreaterOrEqual(t, baseScore, 0)
		assert.LessOrEqual(t, baseScore, 100)

		for bit := range checks {
			if mask&(1<<bit) != 0 {
				continue
			}
			more := subset(checks, mask|1<<bit)
			assert.GreaterOrEqual(t, ScoreFailed(more, weights), baseScore,
				"failing %s on top of %v decreased the score", checks[bit], base)
		}
	}
}

func TestScoreFailed_IgnoresNegativeWeights(t *testing.T) {
	weights := map[string]int{config.CheckDoctorUnauthorized: -40, config.CheckPharmacyUnauthorized: 20}
	assert.Equal(t, 20, ScoreFailed([]string{config.CheckDoctorUnauthorized, config.CheckPharmacyUnauthorized}, weights))
}

func TestEvaluate(t *testing.T) {
	e := cleanClaim()
	e.PatientConfirmed = false

	r := Evaluate(e, config.DefaultEngine().FraudWeights)

	assert.Equal(t, 10, r.Score)
	assert.Equal(t, BandLow, r.Band)
	assert.Equal(t, []string{config.CheckPatientUnconfirmed}, r.Failed)
	assert.Empty(t, Evaluate(cleanClaim(), nil).Failed)
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandLow, BandFor(0))
	assert.Equal(t, BandLow, BandFor(24))
	assert.Equal(t, BandMedium, BandFor(25))
	assert.Equal(t, BandMedium, BandFor(49))
	assert.Equal(t, BandHigh, BandFor(50))
	assert.Equal(t, BandHigh, BandFor(100))
}

func subset(checks []string, mask int) []string {
	var out []string
	for i, c := range checks {
		if mask&(1<<i) != 0 {
			out = append(out, c)
		}
	}
	return out
}

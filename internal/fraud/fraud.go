// Package fraud scores dispensing and claim events from an evidence
// snapshot. It performs no I/O; callers gather the evidence first.
package fraud

import (
	"time"

	"rxvc/internal/credential/models"
	"rxvc/internal/platform/config"
)

// Stage is the event being scored.
type Stage string

const (
	// StageDispensing scores a dispensing credential before it is issued.
	// Patient confirmation cannot exist yet and is not checked.
	StageDispensing Stage = "dispensing"
	// StageClaim scores an insurance claim over the full chain.
	StageClaim Stage = "claim"
)

// Evidence is the snapshot a score is computed from. Zero times mean the
// value was not available; checks that need it pass.
type Evidence struct {
	Stage              Stage
	PrescriptionFound  bool
	PrescriptionStatus models.Status
	EvaluatedAt        time.Time
	IssuanceDate       time.Time
	ValidUntil         time.Time
	DoctorAuthorized   bool
	PharmacyAuthorized bool
	PrescribedQuantity int
	DispensedQuantity  int
	DispensedAt        time.Time
	PatientConfirmed   bool
}

// Result is a score with the checks that produced it.
type Result struct {
	Score  int      `json:"score"`
	Band   Band     `json:"band"`
	Failed []string `json:"failedChecks"`
}

// checkOrder fixes the order of Result.Failed.
var checkOrder = []string{
	config.CheckPrescriptionMissing,
	config.CheckPrescriptionExpired,
	config.CheckDoctorUnauthorized,
	config.CheckPharmacyUnauthorized,
	config.CheckQuantityExceeded,
	config.CheckDispensedOutside,
	config.CheckPatientUnconfirmed,
}

// Checks lists every check name in evaluation order.
func Checks() []string {
	return append([]string(nil), checkOrder...)
}

// FailedChecks evaluates every check independently against e.
func FailedChecks(e Evidence) []string {
	failed := map[string]bool{
		config.CheckPrescriptionMissing:  !e.PrescriptionFound || !e.PrescriptionStatus.IsActive(),
		config.CheckPrescriptionExpired:  !e.ValidUntil.IsZero() && e.EvaluatedAt.After(e.ValidUntil),
		config.CheckDoctorUnauthorized:   !e.DoctorAuthorized,
		config.CheckPharmacyUnauthorized: !e.PharmacyAuthorized,
		config.CheckQuantityExceeded:     e.DispensedQuantity > e.PrescribedQuantity,
		config.CheckDispensedOutside:     dispensedOutside(e),
		config.CheckPatientUnconfirmed:   e.Stage == StageClaim && !e.PatientConfirmed,
	}
	var out []string
	for _, name := range checkOrder {
		if failed[name] {
			out = append(out, name)
		}
	}
	return out
}

func dispensedOutside(e Evidence) bool {
	if e.DispensedAt.IsZero() {
		return false
	}
	if !e.IssuanceDate.IsZero() && e.DispensedAt.Before(e.IssuanceDate) {
		return true
	}
	return !e.ValidUntil.IsZero() && e.DispensedAt.After(e.ValidUntil)
}

// ScoreFailed sums the weights of the failed checks, capped at 100. Unknown
// names and negative weights contribute nothing.
func ScoreFailed(failed []string, weights map[string]int) int {
	total := 0
	for _, name := range failed {
		if w := weights[name]; w > 0 {
			total += w
		}
	}
	return min(total, 100)
}

// Score returns the score of e under weights.
func Score(e Evidence, weights map[string]int) int {
	return ScoreFailed(FailedChecks(e), weights)
}

// Evaluate returns the score, band and failed checks of e.
func Evaluate(e Evidence, weights map[string]int) Result {
	failed := FailedChecks(e)
	score := ScoreFailed(failed, weights)
	if failed == nil {
		failed = []string{}
	}
	return Result{Score: score, Band: BandFor(score), Failed: failed}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for claim verification.
type Metrics struct {
	// Evidence gathering latencies by source
	EvidenceLatency *prometheus.HistogramVec

	// Claim outcomes: approved, denied or error
	ClaimOutcome *prometheus.CounterVec

	// Claim-stage fraud scores
	FraudScore prometheus.Histogram

	// Overall verification latency
	VerifyLatency prometheus.Histogram
}

// New registers the decision metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the decision metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EvidenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxvc_claim_evidence_duration_seconds",
			Help:    "Duration of evidence gathering operations by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}), // source: "prescription", "dispensing", "confirmation", "doctor", "pharmacy"

		ClaimOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rxvc_claim_outcomes_total",
			Help: "Total claim verification outcomes",
		}, []string{"outcome"}),

		FraudScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxvc_claim_fraud_score",
			Help:    "Distribution of claim-stage fraud scores",
			Buckets: []float64{0, 10, 25, 50, 75, 100},
		}),

		VerifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxvc_claim_verify_duration_seconds",
			Help:    "Duration of full claim verification including evidence gathering",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveEvidenceLatency records the duration of fetching evidence from a source.
func (m *Metrics) ObserveEvidenceLatency(source string, d time.Duration) {
	if m != nil {
		m.EvidenceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncOutcome records a claim outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m != nil {
		m.ClaimOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveScore(score int) {
	if m != nil {
		m.FraudScore.Observe(float64(score))
	}
}

// ObserveVerifyLatency records the total verification duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

package issuer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks issuance outcomes.
type Metrics struct {
	Issued       *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
	SignDuration *prometheus.HistogramVec
}

// NewMetrics registers issuer metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers issuer metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Issued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rxvc_credentials_issued_total",
			Help: "Signed credentials by type and suite",
		}, []string{"type", "suite"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rxvc_credentials_rejected_total",
			Help: "Issuance requests rejected before signing, by type and error code",
		}, []string{"type", "code"}),
		SignDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxvc_signer_sign_duration_seconds",
			Help:    "Latency of signer Sign calls by suite",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"suite"}),
	}
}

func (m *Metrics) IncIssued(credType, suite string) {
	if m != nil {
		m.Issued.WithLabelValues(credType, suite).Inc()
	}
}

func (m *Metrics) IncRejected(credType, code string) {
	if m != nil {
		m.Rejected.WithLabelValues(credType, code).Inc()
	}
}

func (m *Metrics) ObserveSign(suite string, d time.Duration) {
	if m != nil {
		m.SignDuration.WithLabelValues(suite).Observe(d.Seconds())
	}
}

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts full disclosure requests by outcome.
type Metrics struct {
	Disclosures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Disclosures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rxvc_audit_full_disclosures_total",
			Help: "Full disclosure requests by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncDisclosure(outcome string) {
	if m != nil {
		m.Disclosures.WithLabelValues(outcome).Inc()
	}
}

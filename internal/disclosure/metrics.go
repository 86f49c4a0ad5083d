package disclosure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts derivations.
type Metrics struct {
	Derivations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Derivations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rxvc_disclosures_derived_total",
			Help: "Disclosure derivations by frame and outcome",
		}, []string{"frame", "outcome"}),
	}
}

func (m *Metrics) IncDerivation(frame, outcome string) {
	if m != nil {
		m.Derivations.WithLabelValues(frame, outcome).Inc()
	}
}

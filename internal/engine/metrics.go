package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identifier resolution.
// Tracks resolutions by outcome, merges, strips and the critical path duration.
type Metrics struct {
	Resolutions     *prometheus.CounterVec
	Failures        prometheus.Counter
	Absorbed        prometheus.Counter
	SelfDowngrades  prometheus.Counter
	ResolveDuration prometheus.Histogram
}

// NewMetrics creates the resolution metrics and registers them on reg.
// A nil reg creates unregistered metrics, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recipients_resolutions_total",
			Help: "Total number of resolutions by outcome and trust",
		}, []string{"outcome", "trust"}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "recipients_resolution_failures_total",
			Help: "Total number of resolutions that rolled back",
		}),
		Absorbed: f.NewCounter(prometheus.CounterOpts{
			Name: "recipients_absorbed_total",
			Help: "Total number of recipients merged into another",
		}),
		SelfDowngrades: f.NewCounter(prometheus.CounterOpts{
			Name: "recipients_self_downgrades_total",
			Help: "Total number of high trust claims on the local address downgraded to low trust",
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipients_resolve_duration_seconds",
			Help:    "Duration of Resolve including lock wait and transaction",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveResolution records a committed resolution.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolution(start time.Time, trust Trust, res Resolution) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
	m.Resolutions.WithLabelValues(string(res.Outcome), trust.String()).Inc()
	m.Absorbed.Add(float64(len(res.Absorbed)))
}

// IncrementFailures records a rolled back resolution.
func (m *Metrics) IncrementFailures() {
	if m == nil {
		return
	}
	m.Failures.Inc()
}

// IncrementSelfDowngrades records a self-address trust downgrade.
func (m *Metrics) IncrementSelfDowngrades() {
	if m == nil {
		return
	}
	m.SelfDowngrades.Inc()
}

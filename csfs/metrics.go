package csfs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instrumentation for a filesystem service.
// A nil *Metrics is valid and every method is a no-op.
type Metrics struct {
	ops         *prometheus.CounterVec
	errors      *prometheus.CounterVec
	criticalSec prometheus.Histogram
}

// NewMetrics registers filesystem-service metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csfs_fs_ops_total",
			Help: "Filesystem protocol operations served, by op letter.",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csfs_fs_errors_total",
			Help: "Filesystem protocol errors, by kind.",
		}, []string{"kind"}),
		criticalSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csfs_fs_critical_section_seconds",
			Help:    "Time spent holding the metadata lock per operation, including disk round-trips.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	reg.MustRegister(m.ops, m.errors, m.criticalSec)
	return m
}

func (m *Metrics) op(letter string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(letter).Inc()
}

func (m *Metrics) error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeCriticalSection(seconds float64) {
	if m == nil {
		return
	}
	m.criticalSec.Observe(seconds)
}

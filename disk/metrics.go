package disk

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instrumentation for a disk service. A nil
// *Metrics is valid and every method becomes a no-op, so instrumentation
// stays optional.
type Metrics struct {
	commands    *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	errors      *prometheus.CounterVec
	criticalSec prometheus.Histogram
}

// NewMetrics registers disk-service metrics with reg and returns the
// handle used to record them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csfs_disk_commands_total",
			Help: "Disk protocol commands served, by command letter.",
		}, []string{"command"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csfs_disk_bytes_total",
			Help: "Bytes transferred on sector reads and writes, by direction.",
		}, []string{"direction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csfs_disk_errors_total",
			Help: "Disk protocol errors, by kind.",
		}, []string{"kind"}),
		criticalSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csfs_disk_critical_section_seconds",
			Help:    "Time spent holding the disk arm lock per R/W, including simulated seek.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
	}
	reg.MustRegister(m.commands, m.bytes, m.errors, m.criticalSec)
	return m
}

func (m *Metrics) command(letter string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(letter).Inc()
}

func (m *Metrics) transferred(direction string, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
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

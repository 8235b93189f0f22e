package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "fastener"
	metricsSubsystem = "update"
)

// Metrics are the scheduler's Prometheus collectors.
type Metrics struct {
	Passes       prometheus.Counter
	Recohered    prometheus.Counter
	Requests     prometheus.Counter
	NotQuiescent prometheus.Counter
	PassDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "passes_total",
			Help:      "Update passes run",
		}),
		Recohered: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fasteners_recohered_total",
			Help:      "Fasteners recohered across all passes",
		}),
		Requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Update requests received from mounted roots",
		}),
		NotQuiescent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "not_quiescent_total",
			Help:      "Flushes that hit the pass limit with work remaining",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a single update pass",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

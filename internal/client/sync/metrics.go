package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	applied     prometheus.Counter
	failed      *prometheus.CounterVec
	retried     prometheus.Counter
	duration    prometheus.Histogram
	outstanding prometheus.Gauge
	failedNow   prometheus.Gauge
	state       *prometheus.GaugeVec
}

// NewMetrics registers the engine collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		applied: factory.NewCounter(prometheus.CounterOpts{
			Name: "offsync_mutations_applied_total",
			Help: "Total number of mutations delivered to the server",
		}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_mutations_failed_total",
			Help: "Total number of mutations moved to failed",
		}, []string{"reason"}),
		retried: factory.NewCounter(prometheus.CounterOpts{
			Name: "offsync_mutations_retried_total",
			Help: "Total number of transient failures scheduled for retry",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "offsync_apply_duration_seconds",
			Help:    "Transport call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		outstanding: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offsync_queue_outstanding",
			Help: "Number of pending and in-flight mutations",
		}),
		failedNow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offsync_queue_failed",
			Help: "Number of failed mutations awaiting retry or discard",
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offsync_session_state",
			Help: "Current sync session state (1 for the active state)",
		}, []string{"state"}),
	}
}

func (m *Metrics) observeApply(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) incApplied() {
	if m == nil {
		return
	}
	m.applied.Inc()
}

func (m *Metrics) incFailed(reason string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(reason).Inc()
}

func (m *Metrics) incRetried() {
	if m == nil {
		return
	}
	m.retried.Inc()
}

func (m *Metrics) setState(s SessionState) {
	if m == nil {
		return
	}
	for _, known := range []SessionState{StateIdle, StateDraining, StateBackoff} {
		v := 0.0
		if known == s {
			v = 1
		}
		m.state.WithLabelValues(string(known)).Set(v)
	}
}

// SetQueueDepth publishes the log counters.
func (m *Metrics) SetQueueDepth(outstanding, failed int) {
	if m == nil {
		return
	}
	m.outstanding.Set(float64(outstanding))
	m.failedNow.Set(float64(failed))
}

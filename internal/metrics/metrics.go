// Package metrics exposes Prometheus instrumentation for the task pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the health of the analysis pipeline. A nil *Metrics is
// valid and records nothing, so wiring is optional in tests.
type Metrics struct {
	tasksSubmitted   prometheus.Counter
	tasksCompleted   prometheus.Counter
	tasksFailed      prometheus.Counter
	tasksRetried     prometheus.Counter
	tasksRecovered   prometheus.Counter
	analysisDuration prometheus.Histogram
	queueDepth       prometheus.Gauge
}

// New builds a Metrics recorder registered against reg. A nil registerer
// falls back to the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		tasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tasks",
			Name:      "submitted_total",
			Help:      "Number of analysis tasks accepted for processing",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Number of analysis tasks that reached the completed state",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tasks",
			Name:      "failed_total",
			Help:      "Number of analysis tasks that exhausted their attempts",
		}),
		tasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tasks",
			Name:      "retried_total",
			Help:      "Number of times a failed attempt was requeued for retry",
		}),
		tasksRecovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finsight",
			Subsystem: "tasks",
			Name:      "recovered_total",
			Help:      "Number of orphaned tasks re-enqueued by recovery sweeps",
		}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finsight",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a single analysis attempt",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "finsight",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Messages currently waiting in the task queue",
		}),
	}
}

// TaskSubmitted records an accepted submission.
func (m *Metrics) TaskSubmitted() {
	if m == nil {
		return
	}
	m.tasksSubmitted.Inc()
}

// TaskCompleted records a successful completion.
func (m *Metrics) TaskCompleted() {
	if m == nil {
		return
	}
	m.tasksCompleted.Inc()
}

// TaskFailed records a terminal failure.
func (m *Metrics) TaskFailed() {
	if m == nil {
		return
	}
	m.tasksFailed.Inc()
}

// TaskRetried records a requeued attempt.
func (m *Metrics) TaskRetried() {
	if m == nil {
		return
	}
	m.tasksRetried.Inc()
}

// TaskRecovered records an orphaned task returned to the queue.
func (m *Metrics) TaskRecovered() {
	if m == nil {
		return
	}
	m.tasksRecovered.Inc()
}

// ObserveAnalysisDuration records how long one analysis attempt took.
func (m *Metrics) ObserveAnalysisDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(d.Seconds())
}

// SetQueueDepth reports the current number of waiting messages.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

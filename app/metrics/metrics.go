package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lysyi3m/pod-comb/app/window"
)

const Namespace = "podcomb"

// Window run outcomes used as the result label. A stalled window found
// no complete episode even at the largest allowed segment.
const (
	ResultOK        = "ok"
	ResultExhausted = "exhausted"
	ResultError     = "error"
	ResultStalled   = "stalled"
)

type Metrics struct {
	WindowRuns     *prometheus.CounterVec
	BytesCommitted *prometheus.CounterVec
	Episodes       *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	Anomalies      *prometheus.CounterVec
	WindowDuration *prometheus.HistogramVec

	TasksExecuted *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
}

// NewMetrics registers all metrics with reg, the default registerer when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initWindowMetrics(factory)
	m.initTaskMetrics(factory)

	return m
}

func (m *Metrics) initWindowMetrics(factory promauto.Factory) {
	m.WindowRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "runs_total",
			Help:      "Total number of window runs by outcome",
		},
		[]string{"feed", "result"},
	)

	m.BytesCommitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "bytes_committed_total",
			Help:      "Bytes the feed cursor advanced over",
		},
		[]string{"feed"},
	)

	m.Episodes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "episodes_total",
			Help:      "Episodes emitted by window runs",
		},
		[]string{"feed"},
	)

	m.Fetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "fetches_total",
			Help:      "Range requests issued by window runs",
		},
		[]string{"feed"},
	)

	m.Anomalies = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "parser",
			Name:      "anomalies_total",
			Help:      "Malformed tokens skipped while parsing",
		},
		[]string{"feed"},
	)

	m.WindowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "duration_seconds",
			Help:      "Duration of window runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"feed"},
	)
}

func (m *Metrics) initTaskMetrics(factory promauto.Factory) {
	m.TasksExecuted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tasks",
			Name:      "executed_total",
			Help:      "Total number of executed tasks by type and status",
		},
		[]string{"type", "status"},
	)

	m.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "tasks",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		},
	)
}

// ObserveWindow records one window run. res may be nil when the run
// failed before fetching anything; committed is how far the cursor moved.
func (m *Metrics) ObserveWindow(feed, result string, res *window.Result, committed int64, d time.Duration) {
	if m == nil {
		return
	}

	m.WindowRuns.WithLabelValues(feed, result).Inc()
	m.WindowDuration.WithLabelValues(feed).Observe(d.Seconds())

	if res == nil {
		return
	}
	if committed > 0 {
		m.BytesCommitted.WithLabelValues(feed).Add(float64(committed))
	}
	m.Episodes.WithLabelValues(feed).Add(float64(len(res.Items)))
	m.Fetches.WithLabelValues(feed).Add(float64(res.Fetches))
	m.Anomalies.WithLabelValues(feed).Add(float64(res.Anomalies))
}

func (m *Metrics) ObserveTask(taskType, status string) {
	if m == nil {
		return
	}
	m.TasksExecuted.WithLabelValues(taskType, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Package metrics exposes cache and task queue counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache layers reported in aimindset_cache_requests_total.
const (
	LayerLRU   = "lru"
	LayerStore = "store"
	LayerQueue = "memo"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - aimindset_cache_requests_total{layer,result} - cache lookups by layer and hit/miss
//   - aimindset_tasks_total{type,outcome} - finished tasks by type and outcome
//   - aimindset_task_duration_seconds{type} - task processing time
//   - aimindset_queue_depth - tasks waiting for the worker
//   - aimindset_samples_seconds{kind} - render, scroll and search timings
type Metrics struct {
	CacheRequests *prometheus.CounterVec
	Tasks         *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	QueueSize     prometheus.Gauge
	Samples       *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimindset_cache_requests_total",
				Help: "Cache lookups by layer and result",
			},
			[]string{"layer", "result"}, // result: "hit" or "miss"
		),
		Tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimindset_tasks_total",
				Help: "Processed article tasks by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimindset_task_duration_seconds",
				Help:    "Article task processing time in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"type"},
		),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aimindset_queue_depth",
			Help: "Tasks waiting for the background worker",
		}),
		Samples: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aimindset_samples_seconds",
				Help:    "Render, scroll and search timing samples in seconds",
				Buckets: []float64{0.001, 0.004, 0.016, 0.05, 0.1, 0.2, 0.5, 1},
			},
			[]string{"kind"},
		),
	}
}

// CacheRequest counts a lookup against a cache layer.
func (m *Metrics) CacheRequest(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(layer, result).Inc()
}

// TaskFinished records a task outcome and its duration.
func (m *Metrics) TaskFinished(taskType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(taskType, outcome).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

// QueueDepth sets the number of waiting tasks.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(n))
}

// Sample records a timing sample of the given kind.
func (m *Metrics) Sample(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(kind).Observe(d.Seconds())
}

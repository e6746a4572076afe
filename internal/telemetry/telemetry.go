// Package telemetry exposes engine metrics through prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scout/internal/research"
)

// Telemetry holds the engine's prometheus collectors.
type Telemetry struct {
	JobsStarted  prometheus.Counter
	JobsFinished *prometheus.CounterVec
	NodeSeconds  *prometheus.HistogramVec
	GenRetries   *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Telemetry {
	return &Telemetry{
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scout_jobs_started_total",
			Help: "Research jobs accepted for execution.",
		}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_jobs_finished_total",
			Help: "Research jobs that reached a terminal status.",
		}, []string{"mode", "status"}),
		NodeSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scout_node_duration_seconds",
			Help:    "Wall time per pipeline node.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"node"}),
		GenRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_generation_retries_total",
			Help: "Structured generation retries by phase.",
		}, []string{"phase"}),
	}
}

// EngineMetrics adapts the collectors to the engine's hook set.
func (t *Telemetry) EngineMetrics() research.Metrics {
	return research.Metrics{
		JobFinished: func(mode research.Mode, status research.Status) {
			t.JobsFinished.WithLabelValues(string(mode), string(status)).Inc()
		},
		NodeDuration: func(node research.NodeKind, seconds float64) {
			t.NodeSeconds.WithLabelValues(string(node)).Observe(seconds)
		},
		GenerationRetry: func(phase string) {
			t.GenRetries.WithLabelValues(phase).Inc()
		},
	}
}

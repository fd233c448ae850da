// Package metrics provides custom Prometheus metrics for the discovery agent.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShutdownTimeout bounds the telemetry server's graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// DiscoveryMetrics contains all Prometheus metrics related to the discovery
// pipeline.
type DiscoveryMetrics struct {
	ImagesAnalyzed   prometheus.Counter
	Discoveries      prometheus.Counter
	AlertsSent       prometheus.Counter
	Errors           *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	AnalysisDuration prometheus.Histogram
	ScoreHistogram   prometheus.Histogram
	RunState         prometheus.Gauge

	registry *prometheus.Registry
}

// NewDiscoveryMetrics creates and registers the discovery metrics on the
// given registry.
func NewDiscoveryMetrics(registry *prometheus.Registry) (*DiscoveryMetrics, error) {
	m := &DiscoveryMetrics{registry: registry}
	m.initMetrics()
	if err := m.register(); err != nil {
		return nil, fmt.Errorf("failed to register discovery metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for DiscoveryMetrics.
func (m *DiscoveryMetrics) initMetrics() {
	m.ImagesAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "babelia_images_analyzed_total",
			Help: "Total number of archive images fetched and analyzed.",
		},
	)
	m.Discoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "babelia_discoveries_total",
			Help: "Total number of images scored as significant.",
		},
	)
	m.AlertsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "babelia_alerts_sent_total",
			Help: "Total number of discovery alerts delivered.",
		},
	)
	m.Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "babelia_errors_total",
			Help: "Total number of pipeline errors partitioned by stage.",
		},
		[]string{"stage"},
	)
	m.FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "babelia_fetch_duration_seconds",
			Help:    "Time taken to fetch one archive image.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
	m.AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "babelia_analysis_duration_seconds",
			Help:    "Time taken to score one image.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
	m.ScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "babelia_significance_score",
			Help:    "Distribution of fused significance scores.",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21), // 0 to 1
		},
	)
	m.RunState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "babelia_run_state",
			Help: "Agent run state: 0 idle, 1 running, 2 stopping, 3 stopped.",
		},
	)
}

// register registers all metrics with the registry.
func (m *DiscoveryMetrics) register() error {
	collectors := []prometheus.Collector{
		m.ImagesAnalyzed,
		m.Discoveries,
		m.AlertsSent,
		m.Errors,
		m.FetchDuration,
		m.AnalysisDuration,
		m.ScoreHistogram,
		m.RunState,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordError increments the error counter for a pipeline stage.
func (m *DiscoveryMetrics) RecordError(stage string) {
	m.Errors.WithLabelValues(stage).Inc()
}

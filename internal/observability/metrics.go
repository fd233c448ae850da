// Package observability provides Prometheus metrics for the discovery agent.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/babelia-vision/babelia-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Discovery *metrics.DiscoveryMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	discoveryMetrics, err := metrics.NewDiscoveryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Discovery: discoveryMetrics,
	}, nil
}

// RegisterHandlers registers the metrics endpoint on the given mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

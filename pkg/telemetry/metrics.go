package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway traffic.
//
// Exposed series:
//   - nexus_requests_total{capability, status}
//   - nexus_tool_calls_total{service}
//   - nexus_retrieval_points
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	retrievalPoints prometheus.Histogram
}

// NewMetrics creates and registers the gateway metrics on a private
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexus",
				Name:      "requests_total",
				Help:      "Total number of gateway requests by capability and status",
			},
			[]string{"capability", "status"},
		),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nexus",
				Name:      "tool_calls_total",
				Help:      "Total number of MCP tool invocations by service",
			},
			[]string{"service"},
		),
		retrievalPoints: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nexus",
				Name:      "retrieval_points",
				Help:      "Fused retrieval point counts per RAG invocation",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
	}

	registry.MustRegister(m.requestsTotal, m.toolCallsTotal, m.retrievalPoints)
	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(capability, status string) {
	m.requestsTotal.WithLabelValues(capability, status).Inc()
}

// ObserveToolCall records one MCP tool invocation.
func (m *Metrics) ObserveToolCall(service string) {
	m.toolCallsTotal.WithLabelValues(service).Inc()
}

// ObserveRetrieval records the fused point count of one RAG run.
func (m *Metrics) ObserveRetrieval(points int) {
	m.retrievalPoints.Observe(float64(points))
}

// Handler serves the /metrics endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

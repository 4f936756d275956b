// Copyright 2025 Joseph Cumines
//
// Prometheus metrics for the MCP server

package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors, registered on a private registry so
// tests and multiple servers in one process never collide.
type Metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	rpcRequests  *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status code.",
		}, []string{"path", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcp",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp",
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and status.",
		}, []string{"method", "status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool and outcome kind.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcp",
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation latency by tool.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpLatency,
		m.rpcRequests,
		m.toolCalls,
		m.toolDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(path string, code int, d time.Duration) {
	switch path {
	case "/mcp", "/health", "/metrics":
	default:
		// bound label cardinality
		path = "other"
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveRequest records one JSON-RPC request. Status is "ok" or "error".
func (m *Metrics) ObserveRequest(method, status string) {
	m.rpcRequests.WithLabelValues(method, status).Inc()
}

// ObserveTool records one tool invocation. Outcome is "ok" or an error kind.
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

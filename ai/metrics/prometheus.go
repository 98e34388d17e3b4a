// Package metrics provides Prometheus metrics export for the note service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// Namespace prefixes every metric name.
const Namespace = "notecrew"

// PrometheusExporter exports flow, agent, LLM and HTTP metrics.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Flow metrics
	crewExecution *prometheus.HistogramVec
	agentErrors   *prometheus.CounterVec
	queueDepth    prometheus.Gauge

	// LLM metrics
	tokenUsage *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// CrewBuckets for the flow duration histogram (in seconds)
	CrewBuckets []float64

	// LatencyBuckets for the LLM latency histogram (in seconds)
	LatencyBuckets []float64

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		CrewBuckets:       []float64{0.5, 1, 2, 5, 10, 30, 60},
		LatencyBuckets:    []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		RuntimeCollectors: true,
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	defaults := DefaultConfig()
	if len(cfg.CrewBuckets) == 0 {
		cfg.CrewBuckets = defaults.CrewBuckets
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = defaults.LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.crewExecution = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "crew_execution_seconds",
			Help:      "End-to-end flow execution time in seconds",
			Buckets:   cfg.CrewBuckets,
		},
		[]string{"flow_name"},
	)

	e.agentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ai_agent_error_total",
			Help:      "Total number of crew failures per agent role",
		},
		[]string{"agent_role", "error_type"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "ai_task_queue_depth",
			Help:      "Number of crew tasks waiting to start",
		},
	)

	e.tokenUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ai_token_usage_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "agent_role"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ai_llm_latency_seconds",
			Help:      "LLM request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Register all metrics
	registry.MustRegister(
		e.crewExecution,
		e.agentErrors,
		e.queueDepth,
		e.tokenUsage,
		e.llmLatency,
		e.httpRequests,
	)
	if cfg.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

// ObserveCrewExecution records the duration of one flow run.
func (e *PrometheusExporter) ObserveCrewExecution(flowName string, d time.Duration) {
	e.crewExecution.WithLabelValues(flowName).Observe(d.Seconds())
}

// IncAgentError records a crew failure attributed to an agent role.
func (e *PrometheusExporter) IncAgentError(agentRole, errorType string) {
	e.agentErrors.WithLabelValues(agentRole, errorType).Inc()
}

// SetTaskQueueDepth sets the number of tasks waiting to start.
func (e *PrometheusExporter) SetTaskQueueDepth(depth int) {
	e.queueDepth.Set(float64(depth))
}

// ObserveLLMCall records token usage and latency of one LLM request.
func (e *PrometheusExporter) ObserveLLMCall(stats llm.CallStats) {
	role := stats.AgentRole
	if role == "" {
		role = "unknown"
	}
	if stats.TotalTokens > 0 {
		e.tokenUsage.WithLabelValues(stats.Model, role).Add(float64(stats.TotalTokens))
	}
	e.llmLatency.WithLabelValues(stats.Model).Observe(stats.Duration.Seconds())
}

// RecordHTTPRequest counts one served HTTP request. path should be the route
// template, not the raw URL, to keep label cardinality bounded.
func (e *PrometheusExporter) RecordHTTPRequest(method, path string, status int) {
	e.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the nexmath tutoring gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets are histogram buckets for chat-completion latencies,
// from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// PlotBuckets cover interpreter runs up to the execution timeout.
var PlotBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15}

var (
	// RequestsTotal counts HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexmath_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks open SSE chat streams.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexmath_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ChatTurnsTotal counts tutoring turns by mode and outcome.
	ChatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_chat_turns_total",
			Help: "Chat turns",
		},
		[]string{"mode", "outcome"},
	)

	// ProviderRequestsTotal counts calls to the chat-completion backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency records backend latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexmath_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider"},
	)

	// ProviderTokensTotal counts tokens by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)

	// PlotExecutionsTotal counts plot renders by executor and outcome
	// (success, failed, timeout).
	PlotExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_plot_executions_total",
			Help: "Plot executions",
		},
		[]string{"executor", "outcome"},
	)

	// PlotExecutionDuration records plot render time in seconds.
	PlotExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexmath_plot_execution_duration_seconds",
			Help:    "Plot execution duration",
			Buckets: PlotBuckets,
		},
		[]string{"executor"},
	)

	// InterpreterProbesTotal counts interpreter discovery probes.
	InterpreterProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_interpreter_probes_total",
			Help: "Interpreter probes",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexmath_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ChatTurnsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		PlotExecutionsTotal,
		PlotExecutionDuration,
		InterpreterProbesTotal,
		RateLimitRejectedTotal,
	)
}

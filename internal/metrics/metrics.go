// Package metrics defines Prometheus metrics for cary-services.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cary_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_query_errors_total",
			Help: "Log store errors swallowed by the query layer, by operation",
		},
		[]string{"op"},
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_agent_tool_calls_total",
			Help: "Tool invocations made by the admin chat agent",
		},
		[]string{"tool"},
	)

	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_agent_runs_total",
			Help: "Admin chat agent runs by outcome",
		},
		[]string{"outcome"},
	)

	LogWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_log_writes_total",
			Help: "API call log writes by result",
		},
		[]string{"result"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cary_llm_requests_total",
			Help: "LLM provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, QueryErrors,
		ToolCalls, AgentRuns, LogWrites, LLMRequests,
	)
}

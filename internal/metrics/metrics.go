// Package metrics exposes the Prometheus series the core emits. Grounded
// near-verbatim on the teacher's internal/metrics/metrics.go (same
// promauto pattern), trimmed to this repo's components and renamed to the
// brand-intelligence domain. LLMRequestDuration, SchedulerRunsTotal and
// SchedulerSkippedTotal are registered but nothing in the tree records to
// them; LLMRequestsTotal is recorded with status "ok" or "error" only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool dispatch (internal/tools)
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandintel_tool_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"tool"},
	)

	ToolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_tool_errors_total",
			Help: "Total number of tool invocation errors by kind",
		},
		[]string{"tool", "kind"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_cache_hits_total",
			Help: "Total number of tool invocations by cache hit/miss",
		},
		[]string{"tool", "hit"},
	)

	// Orchestrator (internal/orchestrator)
	TurnsPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brandintel_orchestrator_turns",
			Help:    "Number of agentic turns consumed per request",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	LoopBreaksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandintel_orchestrator_loop_breaks_total",
			Help: "Total number of requests terminated by the repeat-loop breaker",
		},
	)

	AllFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brandintel_orchestrator_all_failed_total",
			Help: "Total number of turns short-circuited because every tool call failed",
		},
	)

	// Session store (internal/session)
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "brandintel_sessions_active",
			Help: "Current number of sessions held in the session store",
		},
	)

	SessionsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_sessions_evicted_total",
			Help: "Total number of sessions evicted, by reason",
		},
		[]string{"reason"}, // reason: idle_ttl, lru_pressure
	)

	// LLM stream adapter (internal/llm)
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_llm_requests_total",
			Help: "Total number of LLM streaming requests",
		},
		[]string{"status"}, // status: ok, error, cancelled
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brandintel_llm_request_duration_seconds",
			Help:    "LLM streaming request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// Scheduler (internal/scheduler)
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_scheduler_runs_total",
			Help: "Total number of scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandintel_scheduler_skipped_total",
			Help: "Total number of scheduler ticks skipped because the previous run was still in flight",
		},
		[]string{"job"},
	)
)

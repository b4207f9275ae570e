// Package metrics exposes the Prometheus counters and histograms the
// Tool Executor and Sampling Loop record against. A single *Metrics is
// created at startup and threaded into the session.Processor; instruments
// are registered once with promauto's default registerer and are safe
// for concurrent use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide instruments for the orchestration core.
type Metrics struct {
	// ToolExecutionDuration measures how long each tool dispatch takes.
	// Labels: tool, outcome (success|error|denied)
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool dispatches by tool and outcome.
	ToolExecutionCounter *prometheus.CounterVec

	// LLMRequestDuration measures provider CreateCompletion latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider requests by provider, model, status.
	LLMRequestCounter *prometheus.CounterVec

	// LoopIterations counts sampling-loop steps taken per session run,
	// labeled by how the run ended (completed|max_steps|error|aborted).
	LoopIterations *prometheus.CounterVec

	// ActiveSessions tracks the number of sessions currently processing.
	ActiveSessions prometheus.Gauge

	// DelegationDuration measures subagent dispatch latency via the
	// Subagent Coordinator.
	// Labels: status (success|error)
	DelegationDuration *prometheus.HistogramVec
}

// New creates and registers all instruments. Call once at startup.
func New() *Metrics {
	return &Metrics{
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool", "outcome"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tool_executions_total",
				Help: "Total number of tool executions by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_llm_request_duration_seconds",
				Help:    "Duration of provider CreateCompletion calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_llm_requests_total",
				Help: "Total number of provider requests by provider, model and status",
			},
			[]string{"provider", "model", "status"},
		),
		LoopIterations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_loop_iterations_total",
				Help: "Total sampling-loop steps taken, labeled by how the run ended",
			},
			[]string{"outcome"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_active_sessions",
				Help: "Number of sessions currently processing",
			},
		),
		DelegationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_delegation_duration_seconds",
				Help:    "Duration of subagent delegations in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
	}
}

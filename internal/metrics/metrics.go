// Package metrics exposes the Prometheus counters, histograms, and gauges
// the orchestrator and its collaborators report against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide collection of orchestration metrics.
//
// Usage:
//
//	m := metrics.New()
//	defer m.LLMRequestDuration.WithLabelValues("anthropic", "claude-opus-4").Observe(elapsed)
type Metrics struct {
	// TurnsTotal counts orchestrator turns by outcome (continued|final|
	// protocol_error|max_turns).
	TurnsTotal *prometheus.CounterVec

	// LLMRequestDuration measures provider round-trip latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestTotal counts LLM requests by provider, model, and status
	// (success|assembler_error|error).
	LLMRequestTotal *prometheus.CounterVec

	// LLMTokensTotal tracks token consumption by provider, model, and
	// direction (input|output).
	LLMTokensTotal *prometheus.CounterVec

	// ToolCallTotal counts tool-call lifecycle outcomes.
	// Labels: tool_name, error_code (empty for success)
	ToolCallTotal *prometheus.CounterVec

	// ToolCallDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolCallDuration *prometheus.HistogramVec

	// PolicyBlockTotal counts tool calls the policy engine refused.
	// Labels: tool_name, reason (risk_gate|blocked_pattern)
	PolicyBlockTotal *prometheus.CounterVec

	// ConfirmationTotal counts confirmation prompts by decision
	// (approved|denied).
	ConfirmationTotal *prometheus.CounterVec

	// ContextTokensUsed tracks packed context size in tokens per call.
	ContextTokensUsed prometheus.Histogram

	// ActiveSessions is a gauge of sessions currently running a turn loop.
	ActiveSessions prometheus.Gauge

	// ArtifactBytesStored tracks cumulative artifact bytes written.
	ArtifactBytesStored prometheus.Counter
}

// New creates and registers every metric against the default Prometheus
// registry. Call once at process startup.
func New() *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_turns_total",
				Help: "Total orchestrator turns by outcome",
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexusengine_llm_request_duration_seconds",
				Help:    "Duration of LLM ChatComplete calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_llm_requests_total",
				Help: "Total LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and direction",
			},
			[]string{"provider", "model", "direction"},
		),

		ToolCallTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_tool_calls_total",
				Help: "Total tool call lifecycle outcomes by tool and error code",
			},
			[]string{"tool_name", "error_code"},
		),

		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexusengine_tool_call_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PolicyBlockTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_policy_blocks_total",
				Help: "Total tool calls refused by the policy engine",
			},
			[]string{"tool_name", "reason"},
		),

		ConfirmationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusengine_confirmations_total",
				Help: "Total confirmation prompts by decision",
			},
			[]string{"decision"},
		),

		ContextTokensUsed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexusengine_context_tokens_used",
				Help:    "Tokens occupied by the packed context window per turn",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexusengine_active_sessions",
				Help: "Sessions currently executing a turn loop",
			},
		),

		ArtifactBytesStored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nexusengine_artifact_bytes_stored_total",
				Help: "Cumulative bytes written to the artifact store",
			},
		),
	}
}

// RecordLLMRequest records the outcome of a single ChatComplete call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestTotal.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolCall records a completed tool-call lifecycle outcome.
// errorCode is empty on success.
func (m *Metrics) RecordToolCall(toolName, errorCode string, durationSeconds float64) {
	m.ToolCallTotal.WithLabelValues(toolName, errorCode).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPolicyBlock records a policy-engine refusal.
func (m *Metrics) RecordPolicyBlock(toolName, reason string) {
	m.PolicyBlockTotal.WithLabelValues(toolName, reason).Inc()
}

// RecordConfirmation records a confirmation prompt's outcome.
func (m *Metrics) RecordConfirmation(approved bool) {
	decision := "denied"
	if approved {
		decision = "approved"
	}
	m.ConfirmationTotal.WithLabelValues(decision).Inc()
}

// RecordTurn records an orchestrator turn's outcome.
func (m *Metrics) RecordTurn(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

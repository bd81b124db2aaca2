package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	channelSendTotal    *prometheus.CounterVec
	channelSendDuration *prometheus.HistogramVec
	channelRetriesTotal *prometheus.CounterVec
	channelReconnects   *prometheus.CounterVec
	channelTransitions  *prometheus.CounterVec
	channelPending      prometheus.Gauge
	channelDiscarded    prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	llmStreamTotal    *prometheus.CounterVec
	llmStreamDuration *prometheus.HistogramVec
	llmSkippedChunks  *prometheus.CounterVec

	agentRunTotal       *prometheus.CounterVec
	agentRunDuration    *prometheus.HistogramVec
	agentIterationTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			channelSendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "channel_send_total",
					Help: "Total command sends by capability and status.",
				},
				[]string{"capability", "status"},
			),
			channelSendDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "channel_send_duration_seconds",
					Help:    "Command round trip duration in seconds by capability.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"capability"},
			),
			channelRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "channel_retries_total",
					Help: "Total command send retries by capability.",
				},
				[]string{"capability"},
			),
			channelReconnects: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "channel_reconnects_total",
					Help: "Total reconnect attempts by outcome.",
				},
				[]string{"status"},
			),
			channelTransitions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "channel_state_transitions_total",
					Help: "Total session state transitions by target state.",
				},
				[]string{"state"},
			),
			channelPending: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "channel_pending_requests",
					Help: "Current number of commands awaiting a response.",
				},
			),
			channelDiscarded: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "channel_discarded_responses_total",
					Help: "Total responses discarded because no request was waiting.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			llmStreamTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_stream_total",
					Help: "Total model streams by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmStreamDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_stream_duration_seconds",
					Help:    "Model stream duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			llmSkippedChunks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_skipped_chunks_total",
					Help: "Total malformed stream chunks skipped by provider.",
				},
				[]string{"provider"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by outcome.",
				},
				[]string{"status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by outcome.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"status"},
			),
			agentIterationTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "agent_iteration_total",
					Help: "Total agent loop iterations.",
				},
			),
		}

		prometheus.MustRegister(
			m.channelSendTotal,
			m.channelSendDuration,
			m.channelRetriesTotal,
			m.channelReconnects,
			m.channelTransitions,
			m.channelPending,
			m.channelDiscarded,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.llmStreamTotal,
			m.llmStreamDuration,
			m.llmSkippedChunks,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentIterationTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordChannelSend(capability string, duration time.Duration, success bool) {
	m := getMetrics()
	m.channelSendTotal.WithLabelValues(capability, statusLabel(success)).Inc()
	m.channelSendDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

func RecordChannelRetry(capability string) {
	getMetrics().channelRetriesTotal.WithLabelValues(capability).Inc()
}

func RecordReconnect(success bool) {
	getMetrics().channelReconnects.WithLabelValues(statusLabel(success)).Inc()
}

func RecordStateTransition(state string) {
	getMetrics().channelTransitions.WithLabelValues(state).Inc()
}

func SetPendingRequests(count int) {
	getMetrics().channelPending.Set(float64(count))
}

func RecordDiscardedResponse() {
	getMetrics().channelDiscarded.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordLLMStream(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmStreamTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmStreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordSkippedChunk(provider string) {
	getMetrics().llmSkippedChunks.WithLabelValues(provider).Inc()
}

func RecordAgentIteration() {
	getMetrics().agentIterationTotal.Inc()
}

func RecordAgentRun(status string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(status).Inc()
	m.agentRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

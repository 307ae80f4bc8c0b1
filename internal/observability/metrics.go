package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeConversations prometheus.Gauge
	sweptConversations  prometheus.Counter
	busyHitsTotal       prometheus.Counter

	completionDuration *prometheus.HistogramVec
	completionErrors   *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentRounds      prometheus.Histogram

	webhookRequestsTotal *prometheus.CounterVec
	webhookDuration      *prometheus.HistogramVec
	outboundMessages     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeConversations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_conversations",
					Help: "Current number of live conversations.",
				},
			),
			sweptConversations: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "swept_conversations_total",
					Help: "Conversations removed by the inactivity sweep.",
				},
			),
			busyHitsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "busy_hits_total",
					Help: "Messages answered with a wait notice because a run was in flight.",
				},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "completion_duration_seconds",
					Help:    "Completion call duration in seconds by provider and status.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider", "status"},
			),
			completionErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "completion_errors_total",
					Help: "Total failed completion calls by provider.",
				},
				[]string{"provider"},
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
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by provider.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 60, 120},
				},
				[]string{"provider"},
			),
			agentRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_rounds",
					Help:    "Completion rounds needed per agent run.",
					Buckets: []float64{1, 2, 3, 5, 8, 13, 25},
				},
			),
			webhookRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webhook_requests_total",
					Help: "Total webhook HTTP requests by method, path and status code.",
				},
				[]string{"method", "path", "status"},
			),
			webhookDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "webhook_request_duration_seconds",
					Help:    "Webhook HTTP request duration in seconds by path.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path"},
			),
			outboundMessages: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "outbound_messages_total",
					Help: "WhatsApp API calls by kind and status.",
				},
				[]string{"kind", "status"},
			),
		}

		prometheus.MustRegister(
			m.activeConversations,
			m.sweptConversations,
			m.busyHitsTotal,
			m.completionDuration,
			m.completionErrors,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentRounds,
			m.webhookRequestsTotal,
			m.webhookDuration,
			m.outboundMessages,
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

func SetActiveConversations(count int) {
	m := getMetrics()
	m.activeConversations.Set(float64(count))
}

func RecordSweep(removed int) {
	m := getMetrics()
	m.sweptConversations.Add(float64(removed))
}

func RecordBusyHit() {
	m := getMetrics()
	m.busyHitsTotal.Inc()
}

func RecordCompletion(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.completionDuration.WithLabelValues(provider, statusLabel(success)).Observe(duration.Seconds())
	if !success {
		m.completionErrors.WithLabelValues(provider).Inc()
	}
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordAgentRun(provider string, duration time.Duration, rounds int, success bool) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.agentRounds.Observe(float64(rounds))
}

func RecordWebhookRequest(method, path string, status int, duration time.Duration) {
	m := getMetrics()
	m.webhookRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.webhookDuration.WithLabelValues(path).Observe(duration.Seconds())
}

func RecordOutboundMessage(kind string, success bool) {
	m := getMetrics()
	m.outboundMessages.WithLabelValues(kind, statusLabel(success)).Inc()
}

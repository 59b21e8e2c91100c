// Package metrics holds the Prometheus collectors of the bridge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n8n_mcp",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total number of tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "n8n_mcp",
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "Duration of tool calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"tool"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n8n_mcp",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the workflow engine.",
		},
		[]string{"method", "status"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "n8n_mcp",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests sent to the workflow engine.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method"},
	)

	waitOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "n8n_mcp",
			Subsystem: "monitor",
			Name:      "wait_outcomes_total",
			Help:      "Execution waits by outcome.",
		},
		[]string{"outcome"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "n8n_mcp",
			Subsystem: "stream",
			Name:      "active_subscriptions",
			Help:      "Current number of execution stream subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		toolCalls,
		toolDuration,
		upstreamRequests,
		upstreamDuration,
		waitOutcomes,
		activeSubscriptions,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordToolCall records one dispatched tool call.
func RecordToolCall(tool, outcome string, d time.Duration) {
	toolCalls.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordUpstream records one engine request. Status 0 means no response.
func RecordUpstream(method string, status int, d time.Duration) {
	upstreamRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	upstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordWaitOutcome records how an execution wait ended.
func RecordWaitOutcome(outcome string) {
	waitOutcomes.WithLabelValues(outcome).Inc()
}

// SubscriptionStarted increments the active subscription gauge.
func SubscriptionStarted() {
	activeSubscriptions.Inc()
}

// SubscriptionEnded decrements the active subscription gauge.
func SubscriptionEnded() {
	activeSubscriptions.Dec()
}

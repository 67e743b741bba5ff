// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_tools"

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of sessions held in memory.",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	ModelTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_turns_total",
		Help:      "Chat turns by outcome (answered, cached, limit_reached, error).",
	}, []string{"outcome"})

	PushAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_attempts_total",
		Help:      "Push attempts against remote repositories by provider and outcome.",
	}, []string{"provider", "outcome"})

	PushRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_runs_total",
		Help:      "Commit/push pipeline runs by provider and result.",
	}, []string{"provider", "result"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of outbound provider API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "method", "status"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Credential refreshes by purpose.",
	}, []string{"purpose"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

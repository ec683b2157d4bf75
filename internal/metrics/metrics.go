// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datasmith_http_requests_total",
		Help: "HTTP requests by path, method and status code.",
	}, []string{"path", "method", "status"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datasmith_llm_calls_total",
		Help: "LLM transport calls by operation and outcome.",
	}, []string{"operation", "status"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datasmith_llm_call_duration_seconds",
		Help:    "LLM transport call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datasmith_llm_tokens_total",
		Help: "Tokens consumed and produced by LLM calls.",
	}, []string{"direction"})
)

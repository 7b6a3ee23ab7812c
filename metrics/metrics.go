// Package metrics holds the Prometheus collectors shared across the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Model request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	modelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omniassist_model_requests_total",
		Help: "Generation requests sent to the hosted model, by backend and outcome.",
	}, []string{"backend", "outcome"})

	modelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omniassist_model_request_duration_seconds",
		Help:    "Latency of generation requests sent to the hosted model.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"backend"})

	assistantFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omniassist_assistant_fallbacks_total",
		Help: "Answers that left the structured path, by stage (simple, static).",
	}, []string{"stage"})

	exchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omniassist_chat_exchanges_total",
		Help: "Completed chat exchanges, by outcome.",
	}, []string{"outcome"})

	storeWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omniassist_kv_write_failures_total",
		Help: "Best-effort key-value writes that failed and were dropped.",
	})
)

// ObserveModelRequest records one model call.
func ObserveModelRequest(backend string, seconds float64, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	modelRequests.WithLabelValues(backend, outcome).Inc()
	modelLatency.WithLabelValues(backend).Observe(seconds)
}

func IncAssistantFallback(stage string) {
	assistantFallbacks.WithLabelValues(stage).Inc()
}

func IncExchange(outcome string) {
	exchanges.WithLabelValues(outcome).Inc()
}

func IncStoreWriteFailure() {
	storeWriteFailures.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

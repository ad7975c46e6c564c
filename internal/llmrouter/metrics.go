package llmrouter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_llm_router_requests_total",
			Help: "Total LLM generate calls, labeled by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: success, failure, cache_hit
	)

	latencyMS = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_llm_router_latency_ms",
			Help:    "LLM provider call latency in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)

	costTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_llm_router_cost_total",
			Help: "Cumulative estimated cost of non-cached successful calls",
		},
		[]string{"provider", "model"},
	)

	allProvidersDownTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_llm_router_all_providers_down_total",
			Help: "Number of generate calls that exhausted the entire provider cascade",
		},
	)
)

func recordProviderOutcome(provider Provider, outcome string, latency float64) {
	requestsTotal.WithLabelValues(string(provider), outcome).Inc()
	latencyMS.WithLabelValues(string(provider)).Observe(latency)
}

func recordCost(provider Provider, model string, cost float64) {
	costTotal.WithLabelValues(string(provider), model).Add(cost)
}

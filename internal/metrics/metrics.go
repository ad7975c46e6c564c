// Package metrics holds Prometheus collectors shared across packages that
// don't otherwise own a metrics file of their own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PricingFallbacks counts requests priced via the default per-token rate
// because the requested model had no entry in the pricing table.
var PricingFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "resilience_pricing_fallback_total",
		Help: "Total number of pricing fallbacks (missing/unknown model)",
	},
	[]string{"reason"},
)

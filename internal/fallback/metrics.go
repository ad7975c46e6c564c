package fallback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_fallback_transitions_total",
			Help: "Total number of service mode transitions attempted",
		},
		[]string{"service", "from_mode", "to_mode", "reason", "success"},
	)

	currentMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_fallback_service_mode",
			Help: "Current mode of a service (0=cloud, 1=local)",
		},
		[]string{"service"},
	)

	degradationActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_fallback_degradation_active",
			Help: "Whether an operation is currently degraded (1) or not (0)",
		},
		[]string{"service", "operation"},
	)

	recoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_fallback_recovery_attempts_total",
			Help: "Total number of recovery attempts per service",
		},
		[]string{"service", "success"},
	)
)

func recordTransition(t Transition) {
	success := "false"
	if t.Success {
		success = "true"
	}
	transitionsTotal.WithLabelValues(t.Service, t.FromMode.String(), t.ToMode.String(), t.Reason, success).Inc()
	currentMode.WithLabelValues(t.Service).Set(float64(t.ToMode))
}

func recordDegradationActive(service, operation string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	degradationActive.WithLabelValues(service, operation).Set(v)
}

func recordRecoveryAttempt(service string, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	recoveryAttemptsTotal.WithLabelValues(service, s).Inc()
}

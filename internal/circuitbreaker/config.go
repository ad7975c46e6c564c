package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// CircuitBreakerConfig represents configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests       uint32
	Interval          time.Duration
	Timeout           time.Duration
	FailureThreshold  uint32
	SuccessThreshold  uint32
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	JitterFraction    float64
}

// defaultBackoff fills in the exponential-backoff portion shared by every
// per-class default below; env overrides use a shared CB_BACKOFF_* prefix
// since the backoff shape rarely needs to differ per capability class.
func defaultBackoff() (float64, time.Duration, float64) {
	return getEnvFloat("CB_BACKOFF_MULTIPLIER", 2.0),
		getEnvDuration("CB_BACKOFF_MAX", 300*time.Second),
		getEnvFloat("CB_BACKOFF_JITTER_FRACTION", 0.1)
}

// GetRedisConfig returns Redis circuit breaker configuration from environment variables
func GetRedisConfig() CircuitBreakerConfig {
	mult, maxB, jitter := defaultBackoff()
	return CircuitBreakerConfig{
		MaxRequests:       getEnvUint32("CB_REDIS_MAX_REQUESTS", 5),
		Interval:          getEnvDuration("CB_REDIS_INTERVAL", 30*time.Second),
		Timeout:           getEnvDuration("CB_REDIS_TIMEOUT", 15*time.Second),
		FailureThreshold:  getEnvUint32("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold:  getEnvUint32("CB_REDIS_SUCCESS_THRESHOLD", 1),
		BackoffMultiplier: mult,
		MaxBackoff:        maxB,
		JitterFraction:    jitter,
	}
}

// GetDatabaseConfig returns PostgreSQL circuit breaker configuration from environment variables
func GetDatabaseConfig() CircuitBreakerConfig {
	mult, maxB, jitter := defaultBackoff()
	return CircuitBreakerConfig{
		MaxRequests:       getEnvUint32("CB_DB_MAX_REQUESTS", 3),
		Interval:          getEnvDuration("CB_DB_INTERVAL", 60*time.Second),
		Timeout:           getEnvDuration("CB_DB_TIMEOUT", 30*time.Second),
		FailureThreshold:  getEnvUint32("CB_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold:  getEnvUint32("CB_DB_SUCCESS_THRESHOLD", 1),
		BackoffMultiplier: mult,
		MaxBackoff:        maxB,
		JitterFraction:    jitter,
	}
}

// GetHTTPConfig returns HTTP circuit breaker configuration from environment variables
func GetHTTPConfig() CircuitBreakerConfig {
	mult, maxB, jitter := defaultBackoff()
	return CircuitBreakerConfig{
		MaxRequests:       getEnvUint32("CB_HTTP_MAX_REQUESTS", 5),
		Interval:          getEnvDuration("CB_HTTP_INTERVAL", 30*time.Second),
		Timeout:           getEnvDuration("CB_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold:  getEnvUint32("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold:  getEnvUint32("CB_HTTP_SUCCESS_THRESHOLD", 1),
		BackoffMultiplier: mult,
		MaxBackoff:        maxB,
		JitterFraction:    jitter,
	}
}

// GetLLMConfig returns the default per-provider LLM circuit breaker
// configuration from environment variables.
func GetLLMConfig() CircuitBreakerConfig {
	mult, maxB, jitter := defaultBackoff()
	return CircuitBreakerConfig{
		MaxRequests:       getEnvUint32("CB_LLM_MAX_REQUESTS", 2),
		Interval:          getEnvDuration("CB_LLM_INTERVAL", 60*time.Second),
		Timeout:           getEnvDuration("CB_LLM_TIMEOUT", 30*time.Second),
		FailureThreshold:  getEnvUint32("CB_LLM_FAILURE_THRESHOLD", 3),
		SuccessThreshold:  getEnvUint32("CB_LLM_SUCCESS_THRESHOLD", 1),
		BackoffMultiplier: mult,
		MaxBackoff:        maxB,
		JitterFraction:    jitter,
	}
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:       cbc.MaxRequests,
		Interval:          cbc.Interval,
		Timeout:           cbc.Timeout,
		FailureThreshold:  cbc.FailureThreshold,
		SuccessThreshold:  cbc.SuccessThreshold,
		BackoffMultiplier: cbc.BackoffMultiplier,
		MaxBackoff:        cbc.MaxBackoff,
		JitterFraction:    cbc.JitterFraction,
		OnStateChange:     nil, // set by the wrapper/registry that owns this breaker
	}
}

// Helper functions for environment variable parsing

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

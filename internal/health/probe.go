package health

import (
	"context"
	"time"
)

// CustomChecker adapts an arbitrary check function into a Checker. This is
// the mechanism capability providers use to plug a probe into the manager
// without the manager knowing anything about the concrete dependency being
// probed — callers never look for an adapter-specific checker type.
type CustomChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomChecker creates a checker backed by checkFn.
func NewCustomChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomChecker {
	return &CustomChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomChecker) Name() string           { return c.name }
func (c *CustomChecker) IsCritical() bool       { return c.critical }
func (c *CustomChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}

// BreakerProbe is the minimal capability a guarded dependency must expose to
// be health-checked: whether its circuit breaker is currently open. Any
// wrapper in internal/circuitbreaker (HTTPWrapper, RedisWrapper) or a
// provider-specific client satisfies this without the health package
// depending on their concrete types.
type BreakerProbe interface {
	IsCircuitBreakerOpen() bool
}

// NewBreakerChecker builds a Checker that reports unhealthy whenever probe's
// circuit breaker is open, and healthy otherwise. It never calls the guarded
// dependency directly — the breaker's own state is the signal.
func NewBreakerChecker(name string, critical bool, timeout time.Duration, probe BreakerProbe) *CustomChecker {
	return NewCustomChecker(name, critical, timeout, func(ctx context.Context) CheckResult {
		now := time.Now()
		if probe.IsCircuitBreakerOpen() {
			return CheckResult{
				Status:    StatusUnhealthy,
				Message:   "circuit breaker open",
				Component: name,
				Critical:  critical,
				Timestamp: now,
			}
		}
		return CheckResult{
			Status:    StatusHealthy,
			Component: name,
			Critical:  critical,
			Timestamp: now,
		}
	})
}

// Package rerrors defines the resilience core's error taxonomy. Every
// boundary inside the core (breaker → coordinator, coordinator → router,
// router → caller) returns one of these wrapped sentinels instead of raising
// an exception-shaped control-flow error; only the outermost caller API
// decides whether to translate a value into something else.
package rerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream wraps an error returned by the user-supplied function itself.
	ErrUpstream = errors.New("upstream error")

	// ErrUnavailable means the coordinator cannot satisfy a request through
	// any mode: the preferred capability is breaker-open and no alternative
	// capability exists.
	ErrUnavailable = errors.New("service unavailable in any mode")

	// ErrConfigError means the targeted mode has no registered capability.
	ErrConfigError = errors.New("no capability registered for mode")

	// ErrAllProvidersDown means the LLM router exhausted its provider cascade.
	ErrAllProvidersDown = errors.New("all providers down")

	// ErrDegradationExhausted means a degradation window expired without the
	// underlying service recovering; the caller must force a full fallback.
	ErrDegradationExhausted = errors.New("degradation window exhausted")
)

// Upstream wraps cause as an ErrUpstream, preserving it for errors.Is/As.
func Upstream(cause error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, cause)
}

// Unavailable reports that service has no viable mode, naming the reason.
func Unavailable(service, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, service, reason)
}

// ConfigError reports a missing capability binding for service in mode.
func ConfigError(service, mode string) error {
	return fmt.Errorf("%w: %s has no %s capability registered", ErrConfigError, service, mode)
}

// AllProvidersDown wraps the last underlying provider error, per spec: the
// message must include it.
func AllProvidersDown(lastErr error) error {
	return fmt.Errorf("%w: last error: %v", ErrAllProvidersDown, lastErr)
}

// DegradationExhausted reports that a service's degradation window for
// operation has expired.
func DegradationExhausted(service, operation string) error {
	return fmt.Errorf("%w: %s.%s", ErrDegradationExhausted, service, operation)
}

package circuitbreaker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen    = errors.New("circuit breaker is open")
	ErrTooManyRequests       = errors.New("too many requests in half-open state")
	ErrCircuitBreakerTimeout = errors.New("circuit breaker call timed out")
)

// Config holds circuit breaker configuration.
//
// Timeout serves double duty, matching the source this was ported from: it
// bounds every call executed under the breaker (Error{timeout} on
// exceedance) *and* is the backoff base for the exponential reopen delay
// computed on entry to Open.
type Config struct {
	MaxRequests      uint32        // Max requests admitted in half-open state before rejecting
	Interval         time.Duration // Interval to clear the request counter in closed state (0 = never)
	Timeout          time.Duration // Per-call timeout, and backoff base for reopening from Open
	FailureThreshold uint32        // Consecutive-failure threshold in closed state
	SuccessThreshold uint32        // Consecutive-success threshold in half-open state to close

	BackoffMultiplier float64 // Exponential backoff multiplier (default 2.0)
	MaxBackoff        time.Duration // Clamp on the computed reopen delay (default 300s)
	JitterFraction    float64 // Symmetric jitter applied to the delay, as a fraction (default 0.1)

	OnStateChange func(name string, from State, to State)

	// Rand supplies the jitter source; defaults to a package-level rand.Rand
	// when nil. Tests that need deterministic backoff set this explicitly.
	Rand func() float64
}

// DefaultConfig returns sensible defaults for circuit breaker
func DefaultConfig() Config {
	return Config{
		MaxRequests:       3,
		Interval:          60 * time.Second,
		Timeout:           10 * time.Second,
		FailureThreshold:  5,
		SuccessThreshold:  1,
		BackoffMultiplier: 2.0,
		MaxBackoff:        300 * time.Second,
		JitterFraction:    0.1,
	}
}

// Counts holds the circuit breaker statistics (the spec's Stats entity).
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	TotalTimeouts        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	StateChanges         uint32
	LastFailureAt        time.Time
	LastSuccessAt        time.Time
}

// SuccessRate returns succeeded/total, or 1.0 when there have been no calls.
// A timeout is counted in TotalFailures as well as TotalTimeouts, so it is
// not added a second time here.
func (c Counts) SuccessRate() float64 {
	total := c.TotalSuccesses + c.TotalFailures
	if total == 0 {
		return 1.0
	}
	return float64(c.TotalSuccesses) / float64(total)
}

// CircuitBreaker implements the closed/open/half-open state machine
// described in the spec's Circuit Breaker Engine, admission and transitions
// linearized under a single mutex, the guarded function always invoked
// outside of it.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mutex      sync.RWMutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time

	// openStreak counts consecutive entries into Open since the last
	// successful close; it is the backoff exponent's `n`, and survives
	// generation rollover (unlike Counts, which is zeroed every generation).
	openStreak uint32
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
	return cb
}

// Execute runs fn under the breaker. fn is bounded by the breaker's
// configured Timeout (when set), and the admission check never blocks on
// fn's execution: the mutex is released before fn runs.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if cb.config.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cb.config.Timeout)
		defer cancel()
	}

	type outcome struct {
		err      error
		panicVal interface{}
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panicVal: r}
			}
		}()
		done <- outcome{err: fn()}
	}()

	select {
	case res := <-done:
		if res.panicVal != nil {
			cb.afterRequest(generation, false, false)
			panic(res.panicVal)
		}
		cb.afterRequest(generation, res.err == nil, false)
		return res.err
	case <-callCtx.Done():
		cb.afterRequest(generation, false, true)
		return ErrCircuitBreakerTimeout
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Counts returns a snapshot of the current statistics.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.counts
}

// ForceOpen is an operational override: it bypasses the normal failure
// threshold but still records a state change, per spec.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	now := time.Now()
	prev := cb.state
	cb.openStreak++
	cb.state = StateOpen
	cb.toNewGeneration(now)
	cb.counts.StateChanges++
	if prev != StateOpen {
		cb.notifyStateChange(prev, StateOpen)
	}
}

// ForceClose is an operational override: it restores Closed and resets the
// failure counters and backoff streak regardless of current state.
func (cb *CircuitBreaker) ForceClose() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	now := time.Now()
	prev := cb.state
	cb.openStreak = 0
	cb.state = StateClosed
	cb.toNewGeneration(now)
	cb.counts.StateChanges++
	if prev != StateClosed {
		cb.notifyStateChange(prev, StateClosed)
	}
}

// beforeRequest checks if request can proceed.
func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	if state == StateOpen {
		return generation, ErrCircuitBreakerOpen
	} else if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return generation, ErrTooManyRequests
	}

	cb.counts.Requests++
	return generation, nil
}

// afterRequest updates the circuit breaker state after request completion.
func (cb *CircuitBreaker) afterRequest(before uint64, success bool, timedOut bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		return
	}

	if timedOut {
		cb.counts.TotalTimeouts++
		cb.counts.LastFailureAt = now
		cb.onFailure(state, now)
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

// currentState returns the current state, lazily transitioning on read.
func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

// onSuccess handles a successful request.
func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	cb.counts.LastSuccessAt = now
	switch state {
	case StateClosed:
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		if cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.openStreak = 0
			cb.setState(StateClosed, now)
		}
	}
}

// onFailure handles a failed request.
func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	cb.counts.LastFailureAt = now
	switch state {
	case StateClosed:
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.openStreak++
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.openStreak++
		cb.setState(StateOpen, now)
	}
}

// setState transitions to a new state, linearized under the caller's lock.
func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.counts.StateChanges++

	cb.toNewGeneration(now)
	cb.notifyStateChange(prev, state)
}

func (cb *CircuitBreaker) notifyStateChange(from, to State) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// toNewGeneration resets the rolling counters and recomputes expiry for the
// (already-assigned) current state.
func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	changes := cb.counts.StateChanges
	lastFail := cb.counts.LastFailureAt
	lastOK := cb.counts.LastSuccessAt
	cb.counts = Counts{StateChanges: changes, LastFailureAt: lastFail, LastSuccessAt: lastOK}

	var zero time.Time
	switch cb.state {
	case StateClosed:
		if cb.config.Interval == 0 {
			cb.expiry = zero
		} else {
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.calculateBackoff())
	default: // StateHalfOpen
		cb.expiry = zero
	}
}

// calculateBackoff computes the exponential-backoff-with-jitter reopen
// delay for the current openStreak:
//
//	delay  = min(Timeout * BackoffMultiplier^(n-1), MaxBackoff)
//	jitter = uniform(-JitterFraction, +JitterFraction) * delay
func (cb *CircuitBreaker) calculateBackoff() time.Duration {
	base := cb.config.Timeout
	if base <= 0 {
		base = 10 * time.Second
	}
	mult := cb.config.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	n := cb.openStreak
	if n == 0 {
		n = 1
	}

	delay := float64(base) * math.Pow(mult, float64(n-1))
	if maxBackoff := cb.config.MaxBackoff; maxBackoff > 0 && delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	jitterFrac := cb.config.JitterFraction
	if jitterFrac > 0 {
		r := cb.jitterSource()
		jitter := (r*2 - 1) * jitterFrac * delay
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (cb *CircuitBreaker) jitterSource() float64 {
	if cb.config.Rand != nil {
		return cb.config.Rand()
	}
	return rand.Float64()
}

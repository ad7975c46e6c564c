package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
	"github.com/shannon-labs/resilientd/internal/rerrors"
	"go.uber.org/zap"
)

// OperationInvoker calls an operation on the capability Get selected.
type OperationInvoker func(ctx context.Context, capability Capability) (interface{}, error)

// Coordinator translates breaker/health signals into a per-service cloud/local
// mode, executes transitions, optionally degrades specific operations
// instead of switching wholesale, and supervises recovery back to cloud.
type Coordinator struct {
	registry *ServiceRegistry
	breakers *circuitbreaker.Registry
	config   Config
	recovery *RecoveryCoordinator
	logger   *zap.Logger

	mutex         sync.RWMutex
	mode          map[string]Mode
	fallbackSince map[string]time.Time
	degradation   map[string]*DegradationState
	history       []Transition

	onTransition func(Transition)
}

// OnTransition registers fn to be called, best-effort and non-blocking from
// the coordinator's own perspective, after every recorded transition. Typical
// use is forwarding to an external sink; fn must not block.
func (c *Coordinator) OnTransition(fn func(Transition)) {
	c.mutex.Lock()
	c.onTransition = fn
	c.mutex.Unlock()
}

// NewCoordinator wires a Coordinator from its dependencies. probe supplies
// the health signal the recovery task polls.
func NewCoordinator(registry *ServiceRegistry, breakers *circuitbreaker.Registry, config Config, probe HealthProbe, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		registry:      registry,
		breakers:      breakers,
		config:        config,
		logger:        logger,
		mode:          make(map[string]Mode),
		fallbackSince: make(map[string]time.Time),
		degradation:   make(map[string]*DegradationState),
	}
	c.recovery = NewRecoveryCoordinator(config, probe, c.executeRecovery, logger)
	return c
}

func (c *Coordinator) modeOf(service string) Mode {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if m, ok := c.mode[service]; ok {
		return m
	}
	return ModeCloud
}

// Get returns the capability currently bound to service, applying mode,
// breaker, and availability rules.
func (c *Coordinator) Get(ctx context.Context, service string) (Capability, error) {
	cap, _, err := c.get(ctx, service)
	return cap, err
}

func (c *Coordinator) get(ctx context.Context, service string) (Capability, Mode, error) {
	state := c.breakers.Get(service).State()

	var target Mode
	switch state {
	case circuitbreaker.StateOpen:
		target = ModeLocal
		if c.modeOf(service) != ModeLocal {
			c.executeFallback(ctx, service, "breaker_open")
		}
	case circuitbreaker.StateHalfOpen:
		target = ModeCloud
	default:
		target = c.modeOf(service)
	}

	cap := c.registry.Get(service, target)
	if cap == nil {
		other := ModeLocal
		if target == ModeLocal {
			other = ModeCloud
		}
		cap = c.registry.Get(service, other)
		if cap == nil {
			return nil, target, rerrors.Unavailable(service, "no capability registered in any mode")
		}
		target = other
	}
	return cap, target, nil
}

// Call combines Get, breaker protection, degradation, and fallback retry
// into a single high-level invocation.
func (c *Coordinator) Call(ctx context.Context, service, op string, invoke OperationInvoker, args Args) (interface{}, error) {
	if c.isDegraded(service, op) {
		if c.degradationExpired(service) {
			c.executeFallback(ctx, service, "degradation_timeout")
			c.clearDegradation(service)
		} else {
			recordDegradationActive(service, op, true)
			if handler, ok := c.config.IsDegradable(service, op); ok {
				return handler(ctx, c.registry, service, c.modeOf(service), args)
			}
		}
	}

	cap, mode, err := c.get(ctx, service)
	if err != nil {
		return nil, err
	}

	var result interface{}
	if mode == ModeCloud {
		cb := c.breakers.Get(service)
		execErr := cb.Execute(ctx, func() error {
			var innerErr error
			result, innerErr = invoke(ctx, cap)
			return innerErr
		})
		err = execErr
	} else {
		// Local is in-process and not circuit-guarded, per the coordinator's
		// decision algorithm: the breaker only protects the cloud path.
		result, err = invoke(ctx, cap)
	}

	if err == nil {
		if mode == ModeLocal {
			c.considerRecovery(ctx, service)
		}
		return result, nil
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		c.logger.Warn("circuit breaker open, executing fallback", zap.String("service", service))
		c.executeFallback(ctx, service, "circuit_breaker_triggered")
		return c.retryLocal(ctx, service, invoke)
	}

	if handler, ok := c.config.IsDegradable(service, op); ok {
		c.startDegradation(service, op)
		return handler(ctx, c.registry, service, mode, args)
	}

	c.logger.Error("operation failed, executing fallback",
		zap.String("service", service), zap.String("op", op), zap.Error(err))
	c.executeFallback(ctx, service, fmt.Sprintf("method_error: %v", err))
	return c.retryLocal(ctx, service, invoke)
}

func (c *Coordinator) retryLocal(ctx context.Context, service string, invoke OperationInvoker) (interface{}, error) {
	localCap := c.registry.Get(service, ModeLocal)
	if localCap == nil {
		return nil, rerrors.Unavailable(service, "no local capability registered")
	}
	return invoke(ctx, localCap)
}

// executeFallback transitions service to local mode, recording the attempt
// whether or not it succeeds. A no-op if service is already local.
func (c *Coordinator) executeFallback(ctx context.Context, service, reason string) {
	start := time.Now()

	c.mutex.Lock()
	current := c.mode[service]
	if current == ModeLocal {
		c.mutex.Unlock()
		return
	}
	if !c.registry.Has(service, ModeLocal) {
		c.mutex.Unlock()
		c.appendTransition(Transition{
			Service: service, FromMode: current, ToMode: ModeLocal,
			Strategy: c.config.Strategy, At: start, Reason: reason,
			Success: false, Error: "no local capability registered",
		})
		c.logger.Error("failed to execute fallback", zap.String("service", service), zap.String("reason", reason))
		return
	}
	c.mode[service] = ModeLocal
	c.fallbackSince[service] = start
	c.mutex.Unlock()

	c.recovery.Start(ctx, service)

	c.appendTransition(Transition{
		Service: service, FromMode: current, ToMode: ModeLocal,
		Strategy: c.config.Strategy, At: start, Reason: reason,
		Success: true, Elapsed: time.Since(start),
	})
	c.logger.Warn("executed fallback", zap.String("service", service), zap.String("reason", reason))
}

func (c *Coordinator) considerRecovery(ctx context.Context, service string) {
	c.mutex.RLock()
	_, inFallback := c.fallbackSince[service]
	c.mutex.RUnlock()
	if !inFallback {
		return
	}
	if c.recovery.IsMonitoring(service) {
		return
	}
	if !c.recovery.CanAttempt(service) {
		c.logger.Warn("maximum recovery attempts reached", zap.String("service", service))
		return
	}
	c.recovery.Start(ctx, service)
}

// executeRecovery performs the actual transition back to cloud mode. It is
// invoked both by ForceRecovery and, synchronously, by the recovery task
// once a service has crossed its healthy-probe threshold.
func (c *Coordinator) executeRecovery(ctx context.Context, service string) bool {
	c.mutex.RLock()
	current := c.mode[service]
	c.mutex.RUnlock()
	if current != ModeLocal {
		return true
	}

	start := time.Now()
	c.breakers.Get(service).ForceClose()

	cloudCap := c.registry.Get(service, ModeCloud)
	if cloudCap == nil {
		c.appendTransition(Transition{
			Service: service, FromMode: ModeLocal, ToMode: ModeCloud,
			Strategy: c.config.Strategy, At: start, Reason: "recovery",
			Success: false, Error: "no cloud capability registered",
		})
		c.logger.Error("failed to recover service", zap.String("service", service))
		return false
	}

	c.mutex.Lock()
	c.mode[service] = ModeCloud
	delete(c.fallbackSince, service)
	delete(c.degradation, service)
	c.mutex.Unlock()

	c.appendTransition(Transition{
		Service: service, FromMode: ModeLocal, ToMode: ModeCloud,
		Strategy: c.config.Strategy, At: start, Reason: "recovery",
		Success: true, Elapsed: time.Since(start),
	})
	c.logger.Info("recovered service to cloud mode", zap.String("service", service))
	return true
}

// ForceFallback is an operational override that forces service into local mode.
func (c *Coordinator) ForceFallback(ctx context.Context, service, reason string) bool {
	if reason == "" {
		reason = "manual"
	}
	c.executeFallback(ctx, service, "forced: "+reason)
	return c.modeOf(service) == ModeLocal
}

// ForceRecovery is an operational override that forces service back to cloud mode.
func (c *Coordinator) ForceRecovery(ctx context.Context, service string) bool {
	ok := c.executeRecovery(ctx, service)
	if ok {
		c.recovery.Stop(service)
	}
	return ok
}

func (c *Coordinator) startDegradation(service, op string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.degradation[service]
	if !ok {
		state = newDegradationState()
		c.degradation[service] = state
	}
	state.Operations[op] = struct{}{}
	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now()
	}
	c.logger.Warn("started graceful degradation", zap.String("service", service), zap.String("op", op))
}

func (c *Coordinator) clearDegradation(service string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.degradation, service)
}

func (c *Coordinator) isDegraded(service, op string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.degradation[service]
	if !ok {
		return false
	}
	return state.has(op)
}

func (c *Coordinator) degradationExpired(service string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.degradation[service]
	if !ok {
		return false
	}
	return time.Since(state.StartedAt) >= c.config.DegradationTimeout
}

func (c *Coordinator) appendTransition(t Transition) {
	c.mutex.Lock()
	c.history = append(c.history, t)
	if limit := c.config.HistoryLimit; limit > 0 && len(c.history) > limit {
		c.history = c.history[len(c.history)-limit:]
	}
	onTransition := c.onTransition
	c.mutex.Unlock()

	recordTransition(t)
	if onTransition != nil {
		onTransition(t)
	}
}

// History returns the most recent transitions, optionally filtered by service.
func (c *Coordinator) History(service string, limit int) []Transition {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var filtered []Transition
	for i := len(c.history) - 1; i >= 0; i-- {
		t := c.history[i]
		if service != "" && t.Service != service {
			continue
		}
		filtered = append(filtered, t)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// Status returns a full snapshot of every known service's mode, breaker
// state, degradation, and recovery status. Every field is an already
// resolved value — nothing here is a pending task or future.
func (c *Coordinator) Status() Snapshot {
	c.mutex.RLock()
	services := make(map[string]struct{})
	for s := range c.mode {
		services[s] = struct{}{}
	}
	for s := range c.fallbackSince {
		services[s] = struct{}{}
	}
	for s := range c.degradation {
		services[s] = struct{}{}
	}
	c.mutex.RUnlock()
	for _, s := range c.registry.Services() {
		services[s] = struct{}{}
	}

	perService := make(map[string]ServiceStatus, len(services))
	for service := range services {
		c.mutex.RLock()
		mode := c.mode[service]
		since, inFallback := c.fallbackSince[service]
		var degradedOps []string
		if state, ok := c.degradation[service]; ok {
			for op := range state.Operations {
				degradedOps = append(degradedOps, op)
			}
		}
		c.mutex.RUnlock()

		perService[service] = ServiceStatus{
			Mode:            mode,
			BreakerState:    c.breakers.Get(service).State().String(),
			DegradedOps:     degradedOps,
			InFallback:      inFallback,
			RecoveryRunning: c.recovery.IsMonitoring(service),
			FallbackSince:   since,
		}
	}

	return Snapshot{
		PerService:  perService,
		HistoryTail: c.History("", 100),
	}
}

// Shutdown cancels all in-flight recovery tasks. In-flight calls are not
// interrupted; callers are expected to bound their own ctx.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mutex.RLock()
	services := make([]string, 0, len(c.fallbackSince))
	for s := range c.fallbackSince {
		services = append(services, s)
	}
	c.mutex.RUnlock()

	for _, s := range services {
		c.recovery.Stop(s)
	}
	c.logger.Info("fallback coordinator shutdown")
}

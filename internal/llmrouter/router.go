package llmrouter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
	"github.com/shannon-labs/resilientd/internal/rerrors"
	"go.uber.org/zap"
)

// healthAlpha is the exponential-moving-average smoothing factor applied to
// per-provider latency samples.
const healthAlpha = 0.3

// Config holds the router's tunables.
type Config struct {
	Priority         []Provider // failover order when the caller's primary is exhausted
	FailureThreshold int        // consecutive failures before a provider is marked unavailable
	CacheTTL         time.Duration
}

// DefaultConfig returns the documented provider cascade and thresholds.
func DefaultConfig() Config {
	return Config{
		Priority:         []Provider{ProviderBedrock, ProviderOpenAI, ProviderLocal},
		FailureThreshold: 3,
		CacheTTL:         DefaultCacheTTL,
	}
}

// Router cascades generate calls across providers, each independently
// guarded by its own circuit breaker, with caching, cost accounting, and
// health tracking layered on top.
type Router struct {
	breakers  *circuitbreaker.Registry
	functions map[Provider]ProviderFunc
	streams   map[Provider]StreamFunc
	cache     *Cache
	config    Config
	logger    *zap.Logger

	mutex  sync.Mutex
	health map[Provider]*ProviderHealth

	onUsage func(UsageRecord)
}

// NewRouter wires a Router from its provider functions and dependencies.
// onUsage, if non-nil, receives a UsageRecord for every non-cached success.
// It is called synchronously on the request path, so a slow onUsage delays
// Generate (a sink's write queue hand-off keeps it short).
func NewRouter(breakers *circuitbreaker.Registry, functions map[Provider]ProviderFunc, streams map[Provider]StreamFunc, cache *Cache, config Config, onUsage func(UsageRecord), logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	health := make(map[Provider]*ProviderHealth, len(config.Priority))
	for _, p := range config.Priority {
		health[p] = &ProviderHealth{Provider: p, Available: true}
	}
	return &Router{
		breakers:  breakers,
		functions: functions,
		streams:   streams,
		cache:     cache,
		config:    config,
		logger:    logger,
		health:    health,
		onUsage:   onUsage,
	}
}

func (r *Router) order(primary Provider) []Provider {
	order := make([]Provider, 0, len(r.config.Priority)+1)
	order = append(order, primary)
	for _, p := range r.config.Priority {
		if p != primary {
			order = append(order, p)
		}
	}
	return order
}

// Generate cascades req across providers in priority order (primary first),
// applying the response cache ahead of the cascade and cost accounting on
// fresh success.
func (r *Router) Generate(ctx context.Context, req Request) (Result, error) {
	fingerprint := Fingerprint(req.Tenant, req.Model, req.Temperature, req.MaxTokens, req.Prompt)
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, req.Tenant, fingerprint); ok {
			requestsTotal.WithLabelValues("cache", "cache_hit").Inc()
			return cached, nil
		}
	}

	result, provider, err := r.cascade(ctx, req)
	if err != nil {
		return Result{}, err
	}

	result.Provider = provider
	result.EstimatedCost = estimateCost(req.Model, result.PromptTokens, result.CompletionTokens, result.Tokens)
	recordCost(provider, req.Model, result.EstimatedCost)

	if r.cache != nil {
		r.cache.Set(ctx, req.Tenant, fingerprint, result)
	}
	if r.onUsage != nil {
		r.onUsage(UsageRecord{
			Tenant:       req.Tenant,
			Agent:        req.Agent,
			Provider:     provider,
			Model:        req.Model,
			PromptTokens: result.PromptTokens,
			OutputTokens: result.CompletionTokens,
			Cost:         result.EstimatedCost,
			At:           time.Now(),
		})
	}
	return result, nil
}

// GenerateStream cascades like Generate but bypasses the cache and skips
// post-call cost accounting, per the streaming failure semantics: once the
// first chunk has been delivered, no further failover is attempted and any
// subsequent error surfaces directly to the caller.
func (r *Router) GenerateStream(ctx context.Context, req Request, onToken func(chunk string)) (Result, error) {
	order := r.order(req.Primary)
	var lastErr error

	for _, provider := range order {
		streamFn, ok := r.streams[provider]
		if !ok {
			continue
		}
		cb := r.breakers.Get(string(provider))
		if cb.State() == circuitbreaker.StateOpen {
			continue
		}

		started := false
		wrappedOnToken := func(chunk string) {
			started = true
			onToken(chunk)
		}

		start := time.Now()
		var result Result
		execErr := cb.Execute(ctx, func() error {
			var innerErr error
			result, innerErr = streamFn(ctx, req, wrappedOnToken)
			return innerErr
		})
		latency := float64(time.Since(start).Milliseconds())

		if execErr == nil {
			r.onSuccess(provider, latency)
			result.Provider = provider
			return result, nil
		}

		lastErr = execErr
		if started {
			// First token already reached the caller; cascading further
			// would silently mix partial output from two providers.
			r.onFailure(provider, execErr)
			return Result{}, rerrors.Upstream(execErr)
		}

		if errors.Is(execErr, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(execErr, circuitbreaker.ErrTooManyRequests) {
			continue
		}
		r.onFailure(provider, execErr)
	}

	allProvidersDownTotal.Inc()
	return Result{}, rerrors.AllProvidersDown(lastErr)
}

func (r *Router) cascade(ctx context.Context, req Request) (Result, Provider, error) {
	order := r.order(req.Primary)
	var lastErr error

	for _, provider := range order {
		fn, ok := r.functions[provider]
		if !ok {
			continue
		}
		cb := r.breakers.Get(string(provider))
		if cb.State() == circuitbreaker.StateOpen {
			r.logger.Debug("skipping provider with open breaker", zap.String("provider", string(provider)))
			continue
		}

		start := time.Now()
		var result Result
		execErr := cb.Execute(ctx, func() error {
			var innerErr error
			result, innerErr = fn(ctx, req)
			return innerErr
		})
		latency := float64(time.Since(start).Milliseconds())

		if execErr == nil {
			r.onSuccess(provider, latency)
			return result, provider, nil
		}

		lastErr = execErr
		r.onFailure(provider, execErr)

		if errors.Is(execErr, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(execErr, circuitbreaker.ErrTooManyRequests) {
			r.logger.Warn("provider breaker open mid-cascade", zap.String("provider", string(provider)))
		}
	}

	allProvidersDownTotal.Inc()
	r.logger.Error("all LLM providers failed", zap.Error(lastErr))
	return Result{}, "", rerrors.AllProvidersDown(lastErr)
}

func (r *Router) onSuccess(provider Provider, latencyMSSample float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	h := r.healthLocked(provider)
	h.Available = true
	h.LastSuccessAt = time.Now()
	h.ConsecutiveFailures = 0
	h.TotalRequests++
	h.SuccessfulRequests++
	if h.AverageLatencyMS == 0 {
		h.AverageLatencyMS = latencyMSSample
	} else {
		h.AverageLatencyMS = healthAlpha*latencyMSSample + (1-healthAlpha)*h.AverageLatencyMS
	}
	recordProviderOutcome(provider, "success", latencyMSSample)
}

func (r *Router) onFailure(provider Provider, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	h := r.healthLocked(provider)
	h.LastFailureAt = time.Now()
	h.ConsecutiveFailures++
	h.TotalRequests++
	h.FailedRequests++
	if h.ConsecutiveFailures >= r.config.FailureThreshold {
		h.Available = false
		r.logger.Warn("provider marked unavailable", zap.String("provider", string(provider)), zap.Int("consecutive_failures", h.ConsecutiveFailures))
	}
	recordProviderOutcome(provider, "failure", 0)
}

func (r *Router) healthLocked(provider Provider) *ProviderHealth {
	h, ok := r.health[provider]
	if !ok {
		h = &ProviderHealth{Provider: provider, Available: true}
		r.health[provider] = h
	}
	return h
}

// ProviderHealth returns a snapshot of the named provider's health counters.
func (r *Router) ProviderHealth(provider Provider) ProviderHealth {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if h, ok := r.health[provider]; ok {
		return *h
	}
	return ProviderHealth{Provider: provider, Available: true}
}

// AllProviderHealth returns a snapshot of every tracked provider's health.
func (r *Router) AllProviderHealth() map[Provider]ProviderHealth {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make(map[Provider]ProviderHealth, len(r.health))
	for p, h := range r.health {
		out[p] = *h
	}
	return out
}

// HealthSummary aggregates per-provider state into one overview, mirroring
// the shape of the coordinator's Status snapshot.
type HealthSummary struct {
	AvailableProviders []Provider
	TotalProviders     int
	TotalRequests      int64
	OverallSuccessRate float64
	ProviderStates     map[Provider]circuitbreaker.State
	ProviderHealth     map[Provider]ProviderHealth
}

// Health returns the router's full health summary.
func (r *Router) Health() HealthSummary {
	allHealth := r.AllProviderHealth()

	var available []Provider
	var totalRequests, totalSuccess int64
	states := make(map[Provider]circuitbreaker.State, len(allHealth))
	for p, h := range allHealth {
		if h.Available {
			available = append(available, p)
		}
		totalRequests += h.TotalRequests
		totalSuccess += h.SuccessfulRequests
		states[p] = r.breakers.Get(string(p)).State()
	}

	successRate := 100.0
	if totalRequests > 0 {
		successRate = float64(totalSuccess) / float64(totalRequests) * 100.0
	}

	return HealthSummary{
		AvailableProviders: available,
		TotalProviders:     len(allHealth),
		TotalRequests:      totalRequests,
		OverallSuccessRate: successRate,
		ProviderStates:     states,
		ProviderHealth:     allHealth,
	}
}

// ForceProviderRecovery force-closes provider's breaker and clears its
// consecutive-failure counter, without waiting for a natural success.
func (r *Router) ForceProviderRecovery(provider Provider) {
	r.breakers.Get(string(provider)).ForceClose()

	r.mutex.Lock()
	h := r.healthLocked(provider)
	h.Available = true
	h.ConsecutiveFailures = 0
	r.mutex.Unlock()

	r.logger.Info("forced provider recovery", zap.String("provider", string(provider)))
}

// ResetProviderStats clears accumulated health counters for provider, or
// every tracked provider if provider is empty.
func (r *Router) ResetProviderStats(provider Provider) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if provider != "" {
		r.health[provider] = &ProviderHealth{Provider: provider, Available: true}
		return
	}
	for p := range r.health {
		r.health[p] = &ProviderHealth{Provider: p, Available: true}
	}
}

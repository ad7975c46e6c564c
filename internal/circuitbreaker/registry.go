package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry lazily creates and owns one CircuitBreaker per logical service
// name, handing out the same instance on every subsequent lookup. It is
// constructed explicitly by whatever composes the process (see main.go) and
// passed to callers that need breaker-guarded calls; there is no
// package-level instance.
type Registry struct {
	mutex    sync.Mutex
	breakers map[string]*CircuitBreaker
	config   Config
	logger   *zap.Logger
	metrics  *MetricsCollector
	service  string
}

// NewRegistry creates a registry that lazily builds breakers with config,
// tagging each with the given service label for metrics, and registering
// each with metrics if non-nil.
func NewRegistry(service string, config Config, logger *zap.Logger, metrics *MetricsCollector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
		metrics:  metrics,
		service:  service,
	}
}

// Get returns the breaker for name, creating it with the registry's default
// config on first reference.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, r.config, r.logger)
	r.breakers[name] = cb
	if r.metrics != nil {
		r.metrics.RegisterCircuitBreaker(name, r.service, cb)
	}
	r.logger.Info("created circuit breaker", zap.String("name", name), zap.String("service", r.service))
	return cb
}

// ForceOpen forces the named breaker open, creating it if it does not exist.
func (r *Registry) ForceOpen(name string) {
	r.Get(name).ForceOpen()
}

// ForceClose forces the named breaker closed, creating it if it does not exist.
func (r *Registry) ForceClose(name string) {
	r.Get(name).ForceClose()
}

// States returns the current state of every breaker that has been referenced.
func (r *Registry) States() map[string]State {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	states := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State()
	}
	return states
}

// Stats returns the current Counts of every breaker that has been referenced.
func (r *Registry) Stats() map[string]Counts {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stats := make(map[string]Counts, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Counts()
	}
	return stats
}

// ResetAll replaces every existing breaker with a fresh instance under the
// registry's default config, discarding accumulated statistics and state.
func (r *Registry) ResetAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for name := range r.breakers {
		cb := NewCircuitBreaker(name, r.config, r.logger)
		r.breakers[name] = cb
		if r.metrics != nil {
			r.metrics.RegisterCircuitBreaker(name, r.service, cb)
		}
	}
}

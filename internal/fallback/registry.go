package fallback

import (
	"sync"

	"go.uber.org/zap"
)

// Capability is any cloud or local implementation bound into the registry.
// The coordinator treats it as opaque and invokes operations on it through
// reflection-free typed accessors supplied by the caller (see Coordinator.Call).
type Capability interface{}

// ServiceRegistry holds the cloud and local capability instances for every
// logical service known to the coordinator. It never decides which one is
// active — that's the coordinator's job — it only stores and retrieves.
type ServiceRegistry struct {
	mutex  sync.RWMutex
	cloud  map[string]Capability
	local  map[string]Capability
	logger *zap.Logger
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger *zap.Logger) *ServiceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceRegistry{
		cloud:  make(map[string]Capability),
		local:  make(map[string]Capability),
		logger: logger,
	}
}

// RegisterCloud binds the cloud-mode implementation of service.
func (r *ServiceRegistry) RegisterCloud(service string, impl Capability) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cloud[service] = impl
	r.logger.Debug("registered cloud capability", zap.String("service", service))
}

// RegisterLocal binds the local-mode implementation of service.
func (r *ServiceRegistry) RegisterLocal(service string, impl Capability) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.local[service] = impl
	r.logger.Debug("registered local capability", zap.String("service", service))
}

// Get returns the capability instance for service in mode, or nil if none
// is registered.
func (r *ServiceRegistry) Get(service string, mode Mode) Capability {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	switch mode {
	case ModeCloud:
		return r.cloud[service]
	case ModeLocal:
		return r.local[service]
	default:
		return nil
	}
}

// Has reports whether service has a registered capability in mode.
func (r *ServiceRegistry) Has(service string, mode Mode) bool {
	return r.Get(service, mode) != nil
}

// Services returns the union of service names registered in either mode.
func (r *ServiceRegistry) Services() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]struct{}, len(r.cloud)+len(r.local))
	for name := range r.cloud {
		seen[name] = struct{}{}
	}
	for name := range r.local {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

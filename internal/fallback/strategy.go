package fallback

import (
	"context"
	"fmt"
	"strings"
)

// Args carries op-specific arguments through Call into a DegradedHandler.
// It mirrors the flexibility of a dynamic-language *args/**kwargs call
// without requiring the coordinator to know about every capability's
// concrete method signature.
type Args map[string]interface{}

func (a Args) str(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a Args) filters() map[string]interface{} {
	if v, ok := a["filters"].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// DegradedHandler produces a result for an operation that has been marked
// degraded, using whatever capability is bound in mode (never the breaker).
type DegradedHandler func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error)

// degradableOp identifies one (service, operation) pair eligible for
// graceful degradation instead of a full mode switch.
type degradableOp struct {
	service string
	op      string
}

// defaultDegradableOperations is the spec's minimum required table: for
// each entry, the degraded behavior substituted for the real call.
func defaultDegradableOperations() map[degradableOp]DegradedHandler {
	return map[degradableOp]DegradedHandler{
		{"search", "hybrid_search"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			cap := reg.Get(service, mode)
			search, ok := cap.(SearchCapability)
			if !ok || search == nil {
				return nil, fmt.Errorf("degraded search capability missing for mode %s", mode)
			}
			return search.Search(ctx, args.str("tenant"), args.str("query"), args.filters())
		},
		{"cache", "get"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			return nil, nil // not present, no error
		},
		{"cache", "exists"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			return false, nil
		},
		{"cache", "set"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			return true, nil // success without side effect
		},
		{"cache", "delete"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			return true, nil
		},
		{"storage", "list_objects"}: func(ctx context.Context, reg *ServiceRegistry, service string, mode Mode, args Args) (interface{}, error) {
			return []string{}, nil
		},
	}
}

// DefaultDegradableOpNames returns the default table's keys as
// "service.op" strings, in the form the configuration surface's
// degradable_operations list uses.
func DefaultDegradableOpNames() []string {
	defaults := defaultDegradableOperations()
	names := make([]string, 0, len(defaults))
	for op := range defaults {
		names = append(names, op.service+"."+op.op)
	}
	return names
}

// FilterDegradableOps restricts the built-in degraded-operation table to the
// "service.op" names listed in the configuration surface's
// degradable_operations entry. Unknown names are ignored: the handlers
// themselves are fixed Go code, the config only gates which are active.
func FilterDegradableOps(names []string) map[degradableOp]DegradedHandler {
	defaults := defaultDegradableOperations()
	filtered := make(map[degradableOp]DegradedHandler, len(names))
	for _, name := range names {
		service, op, ok := strings.Cut(name, ".")
		if !ok {
			continue
		}
		key := degradableOp{service, op}
		if handler, ok := defaults[key]; ok {
			filtered[key] = handler
		}
	}
	return filtered
}

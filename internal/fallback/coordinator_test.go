package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
	"go.uber.org/zap/zaptest"
)

type fakeSearch struct {
	name      string
	err       error
	hybridErr error
}

func (f *fakeSearch) IndexDocument(ctx context.Context, tenant, id string, doc interface{}) error {
	return f.err
}
func (f *fakeSearch) Search(ctx context.Context, tenant, query string, filters map[string]interface{}) (interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.name + ":" + query, nil
}
func (f *fakeSearch) HybridSearch(ctx context.Context, tenant, query string, filters map[string]interface{}) (interface{}, error) {
	if f.hybridErr != nil {
		return nil, f.hybridErr
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.name + ":hybrid:" + query, nil
}
func (f *fakeSearch) DeleteDocument(ctx context.Context, tenant, id string) error { return f.err }

func newTestCoordinator(t *testing.T, probe HealthProbe) (*Coordinator, *ServiceRegistry, *circuitbreaker.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := NewServiceRegistry(logger)

	bcfg := circuitbreaker.DefaultConfig()
	bcfg.FailureThreshold = 1
	bcfg.Timeout = 50 * time.Millisecond
	breakers := circuitbreaker.NewRegistry("search", bcfg, logger, nil)

	fcfg := DefaultConfig()
	fcfg.RecoveryProbeInterval = 10 * time.Millisecond
	fcfg.RecoveryThreshold = 1

	if probe == nil {
		probe = func(ctx context.Context, service string) bool { return true }
	}

	c := NewCoordinator(reg, breakers, fcfg, probe, logger)
	return c, reg, breakers
}

func TestCoordinatorGetUsesCloudByDefault(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud"})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	cap, err := c.Get(context.Background(), "search")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := cap.(*fakeSearch)
	if s.name != "cloud" {
		t.Fatalf("expected cloud capability by default, got %s", s.name)
	}
}

func TestCoordinatorGetUnavailableWithNoCapabilities(t *testing.T) {
	c, _, _ := newTestCoordinator(t, nil)
	_, err := c.Get(context.Background(), "search")
	if err == nil {
		t.Fatalf("expected error for service with no registered capability")
	}
}

func TestCoordinatorCallFallsBackWhenCloudFails(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud", err: errors.New("boom")})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	invoke := func(ctx context.Context, cap Capability) (interface{}, error) {
		return cap.(*fakeSearch).Search(ctx, "t1", "q", nil)
	}

	result, err := c.Call(context.Background(), "search", "search", invoke, Args{"tenant": "t1", "query": "q"})
	if err != nil {
		t.Fatalf("expected fallback to succeed on local, got error: %v", err)
	}
	if result != "local:q" {
		t.Fatalf("expected local result, got %v", result)
	}
	if c.modeOf("search") != ModeLocal {
		t.Fatalf("expected service to be in local mode after fallback")
	}
}

func TestCoordinatorDegradesHybridSearchInsteadOfFullFallback(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud", hybridErr: errors.New("hybrid unsupported")})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	invoke := func(ctx context.Context, cap Capability) (interface{}, error) {
		return cap.(*fakeSearch).HybridSearch(ctx, "t1", "q", nil)
	}

	_, err := c.Call(context.Background(), "search", "hybrid_search", invoke, Args{"tenant": "t1", "query": "q"})
	if err != nil {
		t.Fatalf("expected degraded handler to succeed, got %v", err)
	}
	if c.modeOf("search") != ModeCloud {
		t.Fatalf("expected service to remain in cloud mode while merely degraded, got %s", c.modeOf("search"))
	}
	if !c.isDegraded("search", "hybrid_search") {
		t.Fatalf("expected hybrid_search to be marked degraded")
	}
}

func TestCoordinatorForceFallbackAndForceRecoveryRoundTrip(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud"})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	if !c.ForceFallback(context.Background(), "search", "manual test") {
		t.Fatalf("expected ForceFallback to succeed")
	}
	if c.modeOf("search") != ModeLocal {
		t.Fatalf("expected local mode after ForceFallback")
	}

	if !c.ForceRecovery(context.Background(), "search") {
		t.Fatalf("expected ForceRecovery to succeed")
	}
	if c.modeOf("search") != ModeCloud {
		t.Fatalf("expected cloud mode after ForceRecovery")
	}

	history := c.History("search", 0)
	if len(history) != 2 {
		t.Fatalf("expected 2 recorded transitions, got %d", len(history))
	}
	for _, tr := range history {
		if !tr.Success {
			t.Fatalf("expected both transitions to have succeeded: %+v", tr)
		}
	}
	if history[0].ToMode != ModeCloud || history[1].ToMode != ModeLocal {
		t.Fatalf("expected most-recent-first ordering, got %+v", history)
	}
}

func TestCoordinatorForceFallbackFailsWithoutLocalCapability(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud"})

	if c.ForceFallback(context.Background(), "search", "manual test") {
		t.Fatalf("expected ForceFallback to fail without a registered local capability")
	}
	history := c.History("search", 1)
	if len(history) != 1 || history[0].Success {
		t.Fatalf("expected one failed transition recorded, got %+v", history)
	}
}

func TestCoordinatorStatusReturnsResolvedValues(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud"})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	c.ForceFallback(context.Background(), "search", "manual test")

	snap := c.Status()
	status, ok := snap.PerService["search"]
	if !ok {
		t.Fatalf("expected search in status snapshot")
	}
	if status.Mode != ModeLocal {
		t.Fatalf("expected local mode in status, got %s", status.Mode)
	}
	if !status.InFallback {
		t.Fatalf("expected InFallback true")
	}
	if status.BreakerState == "" {
		t.Fatalf("expected a resolved breaker state string")
	}
}

func TestCoordinatorOnTransitionFiresForEveryTransition(t *testing.T) {
	c, reg, _ := newTestCoordinator(t, nil)
	reg.RegisterCloud("search", &fakeSearch{name: "cloud"})
	reg.RegisterLocal("search", &fakeSearch{name: "local"})

	var seen []Transition
	c.OnTransition(func(t Transition) {
		seen = append(seen, t)
	})

	c.ForceFallback(context.Background(), "search", "manual test")

	if len(seen) != 1 {
		t.Fatalf("expected 1 transition delivered to the hook, got %d", len(seen))
	}
	if seen[0].Service != "search" || seen[0].ToMode != ModeLocal {
		t.Fatalf("unexpected transition delivered: %+v", seen[0])
	}
}

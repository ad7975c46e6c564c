package circuitbreaker

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestRegistryLazyCreation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := NewRegistry("test-service", DefaultConfig(), logger, nil)

	cb1 := reg.Get("alpha")
	cb2 := reg.Get("alpha")
	if cb1 != cb2 {
		t.Error("expected the same breaker instance on repeated Get")
	}

	cb3 := reg.Get("beta")
	if cb3 == cb1 {
		t.Error("expected distinct breakers for distinct names")
	}
}

func TestRegistryForceOpenCreatesBreaker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := NewRegistry("test-service", DefaultConfig(), logger, nil)

	reg.ForceOpen("gamma")

	states := reg.States()
	if states["gamma"] != StateOpen {
		t.Errorf("expected gamma to be open, got %s", states["gamma"])
	}
}

func TestRegistryStatesAndStats(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := NewRegistry("test-service", DefaultConfig(), logger, nil)

	reg.Get("delta")
	stats := reg.Stats()
	if _, ok := stats["delta"]; !ok {
		t.Error("expected delta to be present in stats snapshot")
	}
}

func TestRegistryResetAll(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := NewRegistry("test-service", DefaultConfig(), logger, nil)

	reg.ForceOpen("epsilon")
	reg.ResetAll()

	states := reg.States()
	if states["epsilon"] != StateClosed {
		t.Errorf("expected epsilon to be reset to closed, got %s", states["epsilon"])
	}
}

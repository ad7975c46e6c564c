package fallback

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestServiceRegistryGetAndHas(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))

	if reg.Has("search", ModeCloud) {
		t.Fatalf("expected no cloud capability registered yet")
	}

	reg.RegisterCloud("search", "cloud-impl")
	reg.RegisterLocal("search", "local-impl")

	if !reg.Has("search", ModeCloud) || !reg.Has("search", ModeLocal) {
		t.Fatalf("expected both modes registered")
	}
	if reg.Get("search", ModeCloud) != "cloud-impl" {
		t.Fatalf("unexpected cloud capability: %v", reg.Get("search", ModeCloud))
	}
	if reg.Get("search", ModeLocal) != "local-impl" {
		t.Fatalf("unexpected local capability: %v", reg.Get("search", ModeLocal))
	}
	if reg.Get("cache", ModeCloud) != nil {
		t.Fatalf("expected nil for unregistered service")
	}
}

func TestServiceRegistryServicesUnion(t *testing.T) {
	reg := NewServiceRegistry(zaptest.NewLogger(t))
	reg.RegisterCloud("search", "a")
	reg.RegisterLocal("cache", "b")

	names := reg.Services()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	if !seen["search"] || !seen["cache"] || len(names) != 2 {
		t.Fatalf("unexpected services: %v", names)
	}
}

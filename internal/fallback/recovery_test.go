package fallback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRecoveryCoordinatorSignalsReadyAfterThreshold(t *testing.T) {
	config := DefaultConfig()
	config.RecoveryThreshold = 2
	config.RecoveryProbeInterval = 10 * time.Millisecond

	var onReadyCalls int32
	onReady := func(ctx context.Context, service string) bool {
		atomic.AddInt32(&onReadyCalls, 1)
		return true
	}
	probe := func(ctx context.Context, service string) bool { return true }

	rc := NewRecoveryCoordinator(config, probe, onReady, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rc.Start(ctx, "search")
	if !rc.IsMonitoring("search") {
		t.Fatalf("expected monitoring to be active immediately after Start")
	}

	select {
	case ev := <-rc.Ready():
		if ev.Service != "search" {
			t.Fatalf("unexpected service in ready event: %s", ev.Service)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for recovery-ready event")
	}

	if atomic.LoadInt32(&onReadyCalls) != 1 {
		t.Fatalf("expected onReady invoked exactly once, got %d", onReadyCalls)
	}
}

func TestRecoveryCoordinatorResetsCounterOnUnhealthyProbe(t *testing.T) {
	config := DefaultConfig()
	config.RecoveryThreshold = 2
	config.RecoveryProbeInterval = 5 * time.Millisecond

	var healthy int32
	probe := func(ctx context.Context, service string) bool {
		return atomic.LoadInt32(&healthy) == 1
	}
	onReady := func(ctx context.Context, service string) bool { return true }

	rc := NewRecoveryCoordinator(config, probe, onReady, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc.Start(ctx, "cache")
	time.Sleep(25 * time.Millisecond) // a few unhealthy probes tick by

	rc.mutex.Lock()
	state := rc.states["cache"]
	rc.mutex.Unlock()
	if state == nil || state.ConsecutiveHealthyProbes != 0 {
		t.Fatalf("expected consecutive healthy probes to stay at zero while unhealthy")
	}

	atomic.StoreInt32(&healthy, 1)
	select {
	case <-rc.Ready():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for recovery after turning healthy")
	}
}

func TestRecoveryCoordinatorStopCancelsMonitoring(t *testing.T) {
	config := DefaultConfig()
	config.RecoveryProbeInterval = 5 * time.Millisecond
	probe := func(ctx context.Context, service string) bool { return false }
	onReady := func(ctx context.Context, service string) bool { return true }

	rc := NewRecoveryCoordinator(config, probe, onReady, zaptest.NewLogger(t))
	rc.Start(context.Background(), "storage")
	if !rc.IsMonitoring("storage") {
		t.Fatalf("expected monitoring active")
	}

	rc.Stop("storage")
	if rc.IsMonitoring("storage") {
		t.Fatalf("expected monitoring stopped")
	}
}

func TestRecoveryCoordinatorCanAttemptRespectsMax(t *testing.T) {
	config := DefaultConfig()
	config.MaxRecoveryAttempts = 1
	probe := func(ctx context.Context, service string) bool { return false }
	onReady := func(ctx context.Context, service string) bool { return true }

	rc := NewRecoveryCoordinator(config, probe, onReady, zaptest.NewLogger(t))
	if !rc.CanAttempt("search") {
		t.Fatalf("expected a fresh service to be attemptable")
	}
	rc.recordAttempt("search", false)
	if rc.CanAttempt("search") {
		t.Fatalf("expected attempts to be exhausted after MaxRecoveryAttempts failures")
	}
}

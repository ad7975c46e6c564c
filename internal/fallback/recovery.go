package fallback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecoveryReadyEvent is emitted when a service's consecutive healthy probes
// cross the recovery threshold. Besides the synchronous recovery attempt the
// monitoring goroutine performs directly, the event is also offered on
// Ready() so external observers (metrics, tests) can watch recovery signals
// without polling coordinator state.
type RecoveryReadyEvent struct {
	Service string
	At      time.Time
}

// HealthProbe reports whether service is currently healthy, per the health
// monitor's latest check.
type HealthProbe func(ctx context.Context, service string) bool

// onRecoveryReady is invoked synchronously from the monitoring goroutine
// once a service is ready to recover; it returns whether the attempt
// succeeded, for attempt-counting purposes.
type onRecoveryReady func(ctx context.Context, service string) bool

// recoveryTask tracks one service's in-flight recovery monitoring.
type recoveryTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// RecoveryCoordinator supervises the per-service task that watches for
// sustained health and drives recovery back to cloud.
type RecoveryCoordinator struct {
	mutex   sync.Mutex
	tasks   map[string]*recoveryTask
	states  map[string]*RecoveryState
	ready   chan RecoveryReadyEvent
	probe   HealthProbe
	onReady onRecoveryReady
	logger  *zap.Logger
	config  Config
}

// NewRecoveryCoordinator creates a coordinator that polls probe and invokes
// onReady once a service crosses the recovery threshold.
func NewRecoveryCoordinator(config Config, probe HealthProbe, onReady onRecoveryReady, logger *zap.Logger) *RecoveryCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryCoordinator{
		tasks:   make(map[string]*recoveryTask),
		states:  make(map[string]*RecoveryState),
		ready:   make(chan RecoveryReadyEvent, 16),
		probe:   probe,
		onReady: onReady,
		logger:  logger,
		config:  config,
	}
}

// Ready returns the channel recovery-ready events are published on.
// Sends are non-blocking: a slow or absent consumer never stalls recovery.
func (rc *RecoveryCoordinator) Ready() <-chan RecoveryReadyEvent {
	return rc.ready
}

// Start begins monitoring service for recovery, if not already monitoring.
func (rc *RecoveryCoordinator) Start(ctx context.Context, service string) {
	rc.mutex.Lock()
	if _, ok := rc.tasks[service]; ok {
		rc.mutex.Unlock()
		return
	}
	if _, ok := rc.states[service]; !ok {
		rc.states[service] = &RecoveryState{}
	}
	taskCtx, cancel := context.WithCancel(ctx)
	task := &recoveryTask{cancel: cancel, done: make(chan struct{})}
	rc.tasks[service] = task
	rc.mutex.Unlock()

	rc.logger.Info("started recovery monitoring", zap.String("service", service))
	go rc.monitor(taskCtx, service, task)
}

// Stop cancels monitoring for service and clears its recovery counters.
func (rc *RecoveryCoordinator) Stop(service string) {
	rc.mutex.Lock()
	task, ok := rc.tasks[service]
	if ok {
		delete(rc.tasks, service)
	}
	delete(rc.states, service)
	rc.mutex.Unlock()

	if ok {
		task.cancel()
		rc.logger.Info("stopped recovery monitoring", zap.String("service", service))
	}
}

// IsMonitoring reports whether a recovery task is currently running for service.
func (rc *RecoveryCoordinator) IsMonitoring(service string) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	_, ok := rc.tasks[service]
	return ok
}

// CanAttempt reports whether service has not yet exhausted max recovery attempts.
func (rc *RecoveryCoordinator) CanAttempt(service string) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	state, ok := rc.states[service]
	if !ok {
		return true
	}
	return state.AttemptsUsed < rc.config.MaxRecoveryAttempts
}

func (rc *RecoveryCoordinator) monitor(ctx context.Context, service string, task *recoveryTask) {
	defer func() {
		rc.mutex.Lock()
		if rc.tasks[service] == task {
			delete(rc.tasks, service)
		}
		rc.mutex.Unlock()
		close(task.done)
	}()

	interval := rc.config.RecoveryProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy := rc.probe(ctx, service)

			rc.mutex.Lock()
			state := rc.states[service]
			if state == nil {
				state = &RecoveryState{}
				rc.states[service] = state
			}
			if healthy {
				state.ConsecutiveHealthyProbes++
			} else {
				state.ConsecutiveHealthyProbes = 0
			}
			ready := state.ConsecutiveHealthyProbes >= rc.config.RecoveryThreshold
			rc.mutex.Unlock()

			if !ready {
				continue
			}

			rc.logger.Info("service ready for recovery",
				zap.String("service", service),
				zap.Int("consecutive_healthy_probes", state.ConsecutiveHealthyProbes),
			)

			success := rc.onReady(ctx, service)
			rc.recordAttempt(service, success)

			select {
			case rc.ready <- RecoveryReadyEvent{Service: service, At: time.Now()}:
			default:
			}

			if success {
				return
			}
			if !rc.CanAttempt(service) {
				rc.logger.Warn("maximum recovery attempts reached", zap.String("service", service))
				return
			}
		}
	}
}

func (rc *RecoveryCoordinator) recordAttempt(service string, success bool) {
	rc.mutex.Lock()
	state := rc.states[service]
	if state == nil {
		state = &RecoveryState{}
		rc.states[service] = state
	}
	if success {
		state.AttemptsUsed = 0
		state.ConsecutiveHealthyProbes = 0
	} else {
		state.AttemptsUsed++
	}
	rc.mutex.Unlock()

	recordRecoveryAttempt(service, success)
}

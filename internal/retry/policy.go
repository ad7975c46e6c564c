package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy holds one service's retry tunables: a standard exponential backoff
// for the common case, plus the two category-specific overrides throttling
// and service-unavailable failures get.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	ThrottlingBaseDelay time.Duration
	ThrottlingMaxDelay  time.Duration

	ServiceUnavailableDelay time.Duration

	JitterFraction float64
}

// DefaultPolicy mirrors the conservative defaults this is grounded on:
// exponential backoff starting at 500ms, throttling backing off further and
// slower, a fixed 5s wait for service-unavailable, and ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:             3,
		BaseDelay:               500 * time.Millisecond,
		MaxDelay:                30 * time.Second,
		Multiplier:              2.0,
		ThrottlingBaseDelay:     2 * time.Second,
		ThrottlingMaxDelay:      5 * time.Minute,
		ServiceUnavailableDelay: 5 * time.Second,
		JitterFraction:          0.25,
	}
}

// Handler executes operations under a Policy, classifying failures with a
// Classifier to decide whether and how long to wait before the next
// attempt. It never retries a Permanent or Credentials failure.
type Handler struct {
	policy     Policy
	classifier *Classifier
	service    string
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewHandler builds a Handler for service using policy and classifier. A nil
// classifier falls back to NewClassifier(); a nil logger is a no-op.
func NewHandler(service string, policy Policy, classifier *Classifier, logger *zap.Logger) *Handler {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		policy:     policy,
		classifier: classifier,
		service:    service,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs op, retrying on classified-retryable failures up to
// policy.MaxAttempts, sleeping between attempts per the category-specific
// delay. It returns the last error if every attempt fails, or if ctx is
// cancelled while waiting between attempts.
func (h *Handler) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < h.policy.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		errType := h.classifier.Classify(lastErr)
		h.logger.Warn("operation attempt failed",
			zap.String("service", h.service),
			zap.Int("attempt", attempt+1),
			zap.String("error_type", errType.String()),
			zap.Error(lastErr),
		)

		if !h.classifier.ShouldRetry(lastErr) {
			h.logger.Error("non-retryable error, giving up",
				zap.String("service", h.service), zap.Error(lastErr))
			return lastErr
		}

		if attempt == h.policy.MaxAttempts-1 {
			break
		}

		delay := h.delayFor(attempt, errType)
		if err := h.sleep(ctx, delay); err != nil {
			return err
		}
	}

	h.logger.Error("all attempts failed",
		zap.String("service", h.service),
		zap.Int("attempts", h.policy.MaxAttempts),
		zap.Error(lastErr))
	return lastErr
}

func (h *Handler) delayFor(attempt int, errType ErrorType) time.Duration {
	var delay time.Duration
	switch errType {
	case Throttling:
		delay = expBackoff(h.policy.ThrottlingBaseDelay, 2.0, attempt, h.policy.ThrottlingMaxDelay)
	case ServiceUnavailable:
		delay = h.policy.ServiceUnavailableDelay
	default:
		delay = expBackoff(h.policy.BaseDelay, h.policy.Multiplier, attempt, h.policy.MaxDelay)
	}
	return applyJitter(delay, h.policy.JitterFraction)
}

func expBackoff(base time.Duration, multiplier float64, attempt int, max time.Duration) time.Duration {
	d := float64(base) * math.Pow(multiplier, float64(attempt))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

func applyJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	jitterRange := float64(d) * fraction
	jittered := float64(d) + (rand.Float64()*2-1)*jitterRange
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

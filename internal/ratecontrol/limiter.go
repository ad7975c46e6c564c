package ratecontrol

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TokenBucketGate enforces the RPM side of RateLimit with a real token
// bucket per (tenant, provider) pair, lazily created and sized from
// LimitForTier/LimitForProvider at first use. TPM is not enforced here, since
// a token bucket has no notion of a call's variable token cost;
// DelayForRequest computes an estimate-based delay that covers TPM, and
// nothing in this module calls it.
type TokenBucketGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucketGate returns an empty gate; buckets are created on demand.
func NewTokenBucketGate() *TokenBucketGate {
	return &TokenBucketGate{limiters: make(map[string]*rate.Limiter)}
}

func bucketKey(tenant, provider string) string {
	return tenant + "|" + provider
}

// Wait blocks until a request slot for (tenant, tier, provider) opens up or
// ctx is cancelled. A combined limit of zero RPM disables the bucket
// entirely (Wait returns immediately) rather than stalling every request.
func (g *TokenBucketGate) Wait(ctx context.Context, tenant, tier, provider string) error {
	limiter := g.limiterFor(tenant, tier, provider)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (g *TokenBucketGate) limiterFor(tenant, tier, provider string) *rate.Limiter {
	combined := CombineLimits(LimitForTier(tier), LimitForProvider(provider))
	if combined.RPM <= 0 {
		return nil
	}

	key := bucketKey(tenant, provider)

	g.mu.Lock()
	defer g.mu.Unlock()
	if limiter, ok := g.limiters[key]; ok {
		return limiter
	}
	burst := combined.RPM
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(float64(combined.RPM)/60.0), burst)
	g.limiters[key] = limiter
	return limiter
}

// Reset discards every tracked bucket, so limits re-derive from the
// current configuration on next use. Called after Reload.
func (g *TokenBucketGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters = make(map[string]*rate.Limiter)
}

var defaultGate = NewTokenBucketGate()

// Wait blocks on the package-level gate until a slot for (tenant, tier,
// provider) is available, ahead of handing the call to the LLM cascade.
func Wait(ctx context.Context, tenant, tier, provider string) error {
	return defaultGate.Wait(ctx, tenant, tier, provider)
}

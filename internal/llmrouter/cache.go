package llmrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
)

// DefaultCacheTTL is the spec's documented default response-cache lifetime.
const DefaultCacheTTL = time.Hour

// Cache stores successful, non-streaming generate results keyed by
// (tenant, fingerprint). It is backed by Redis through the same breaker
// wrapper every other remote dependency in this module uses.
type Cache struct {
	redis *circuitbreaker.RedisWrapper
	ttl   time.Duration
}

// NewCache creates a response cache over redis with the given default TTL
// (zero selects DefaultCacheTTL).
func NewCache(redisWrapper *circuitbreaker.RedisWrapper, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{redis: redisWrapper, ttl: ttl}
}

// Fingerprint computes the stable cache key input: tenant is always first,
// so a cross-tenant collision is impossible by construction.
func Fingerprint(tenant, model string, temperature float64, maxTokens int, prompt string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.4f|%d|%s", tenant, model, temperature, maxTokens, prompt)
	return hex.EncodeToString(h.Sum(nil))
}

func cacheKey(tenant, fingerprint string) string {
	return "llmrouter:cache:" + tenant + ":" + fingerprint
}

// Get looks up a cached result for (tenant, fingerprint). The second return
// value is false on any miss, including a breaker-open/backend error — a
// cache failure degrades to a fresh call, never an error surfaced to the
// caller.
func (c *Cache) Get(ctx context.Context, tenant, fingerprint string) (Result, bool) {
	if c == nil || c.redis == nil {
		return Result{}, false
	}
	cmd := c.redis.Get(ctx, cacheKey(tenant, fingerprint))
	raw, err := cmd.Result()
	if err != nil {
		return Result{}, false
	}
	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Result{}, false
	}
	result := entry.Result
	result.Cached = true
	return result, true
}

// Set stores result for (tenant, fingerprint) with the cache's TTL. Only
// called on fresh, non-streaming success; a failed write is ignored and not
// logged — a write miss just means the next lookup misses too.
func (c *Cache) Set(ctx context.Context, tenant, fingerprint string, result Result) {
	if c == nil || c.redis == nil {
		return
	}
	now := time.Now()
	entry := CacheEntry{Result: result, StoredAt: now, ExpiresAt: now.Add(c.ttl)}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	c.redis.Set(ctx, cacheKey(tenant, fingerprint), raw, c.ttl)
}

// Package llmrouter cascades generate/generate_stream calls across an
// ordered list of LLM providers, each guarded by its own circuit breaker,
// with response caching, cost accounting, and per-provider health tracking
// layered on top.
package llmrouter

import (
	"context"
	"time"
)

// Provider identifies one upstream LLM backend in the cascade.
type Provider string

const (
	ProviderBedrock Provider = "aws_bedrock"
	ProviderOpenAI  Provider = "openai"
	ProviderGoogle  Provider = "google_genai"
	ProviderLocal   Provider = "local"
)

// ProviderHealth tracks a provider's rolling success/failure counters and
// exponentially weighted average latency, independent of its breaker state.
type ProviderHealth struct {
	Provider            Provider
	Available           bool
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	ConsecutiveFailures int
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	AverageLatencyMS    float64
}

// SuccessRate returns the percentage of requests that succeeded, or 100 if
// no requests have been recorded yet.
func (h ProviderHealth) SuccessRate() float64 {
	if h.TotalRequests == 0 {
		return 100.0
	}
	return float64(h.SuccessfulRequests) / float64(h.TotalRequests) * 100.0
}

// Request describes one generate call.
type Request struct {
	Tenant      string
	Agent       string
	Primary     Provider
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Format      string
}

// Result is what generate/generate_stream returns to the caller.
type Result struct {
	Content          string
	Model            string
	Tokens           int
	PromptTokens     int
	CompletionTokens int
	Provider         Provider
	Cached           bool
	EstimatedCost    float64
}

// CacheEntry is one stored response, keyed by (tenant, fingerprint).
type CacheEntry struct {
	Result    Result
	StoredAt  time.Time
	ExpiresAt time.Time
}

// UsageRecord is emitted for every non-cached successful generate call, for
// downstream accounting. It is forwarded to an external sink, best-effort,
// and never re-read by the router itself.
type UsageRecord struct {
	Tenant       string
	Agent        string
	Provider     Provider
	Model        string
	PromptTokens int
	OutputTokens int
	Cost         float64
	At           time.Time
}

// ProviderFunc performs the actual provider call. Implementations are
// supplied by the caller (adapters); the router never imports a concrete
// SDK.
type ProviderFunc func(ctx context.Context, req Request) (Result, error)

// StreamFunc performs a streaming provider call, invoking onToken for each
// chunk as it arrives. Returns once the stream completes or fails.
type StreamFunc func(ctx context.Context, req Request, onToken func(chunk string)) (Result, error)

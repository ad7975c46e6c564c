// Package sink best-effort persists usage records and fallback transitions
// to an external store. Nothing in the resilience core reads this data
// back: a write that is lost because the sink is unreachable or its queue is
// full never affects a request in flight, only operational visibility.
package sink

import (
	"time"

	"github.com/google/uuid"

	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
)

// UsageRow is the durable shape of an llmrouter.UsageRecord, stamped with a
// fresh UUID when the row is built.
type UsageRow struct {
	ID           uuid.UUID `db:"id"`
	Tenant       string    `db:"tenant"`
	Agent        string    `db:"agent"`
	Provider     string    `db:"provider"`
	Model        string    `db:"model"`
	PromptTokens int       `db:"prompt_tokens"`
	OutputTokens int       `db:"output_tokens"`
	Cost         float64   `db:"cost"`
	At           time.Time `db:"at"`
}

// usageRowFrom copies an llmrouter.UsageRecord into a durable row.
func usageRowFrom(rec llmrouter.UsageRecord) *UsageRow {
	return &UsageRow{
		ID:           uuid.New(),
		Tenant:       rec.Tenant,
		Agent:        rec.Agent,
		Provider:     string(rec.Provider),
		Model:        rec.Model,
		PromptTokens: rec.PromptTokens,
		OutputTokens: rec.OutputTokens,
		Cost:         rec.Cost,
		At:           rec.At,
	}
}

// TransitionRow is the durable shape of a fallback.Transition.
type TransitionRow struct {
	ID       uuid.UUID     `db:"id"`
	Service  string        `db:"service"`
	FromMode string        `db:"from_mode"`
	ToMode   string        `db:"to_mode"`
	Strategy string        `db:"strategy"`
	At       time.Time     `db:"at"`
	Reason   string        `db:"reason"`
	Success  bool          `db:"success"`
	Error    string        `db:"error"`
	ElapsedMs int64        `db:"elapsed_ms"`
}

func transitionRowFrom(t fallback.Transition) *TransitionRow {
	return &TransitionRow{
		ID:        uuid.New(),
		Service:   t.Service,
		FromMode:  t.FromMode.String(),
		ToMode:    t.ToMode.String(),
		Strategy:  t.Strategy.String(),
		At:        t.At,
		Reason:    t.Reason,
		Success:   t.Success,
		Error:     t.Error,
		ElapsedMs: t.Elapsed.Milliseconds(),
	}
}

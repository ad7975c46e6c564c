package sink

import (
	"context"
	"fmt"
)

func (s *Sink) saveUsageRow(ctx context.Context, row *UsageRow) error {
	const query = `
		INSERT INTO llm_usage_records (
			id, tenant, agent, provider, model,
			prompt_tokens, output_tokens, cost, at
		) VALUES (
			:id, :tenant, :agent, :provider, :model,
			:prompt_tokens, :output_tokens, :cost, :at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save usage record: %w", err)
	}
	return nil
}

func (s *Sink) saveTransitionRow(ctx context.Context, row *TransitionRow) error {
	const query = `
		INSERT INTO fallback_transitions (
			id, service, from_mode, to_mode, strategy,
			at, reason, success, error, elapsed_ms
		) VALUES (
			:id, :service, :from_mode, :to_mode, :strategy,
			:at, :reason, :success, :error, :elapsed_ms
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("save transition: %w", err)
	}
	return nil
}

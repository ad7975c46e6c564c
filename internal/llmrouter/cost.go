package llmrouter

import "github.com/shannon-labs/resilientd/internal/pricing"

// defaultInputRatio is the fraction of total_tokens assumed to be input
// tokens when a provider only reports a combined count.
const defaultInputRatio = 0.5

// estimateCost computes estimated_cost for a completed, non-cached call.
// When prompt/completion tokens are both known it prices them separately;
// otherwise it splits totalTokens by defaultInputRatio.
func estimateCost(model string, promptTokens, completionTokens, totalTokens int) float64 {
	if promptTokens > 0 || completionTokens > 0 {
		return pricing.CostForSplit(model, promptTokens, completionTokens)
	}
	input := int(float64(totalTokens) * defaultInputRatio)
	output := totalTokens - input
	return pricing.CostForSplit(model, input, output)
}

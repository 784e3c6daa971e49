// Package metering tracks token usage and dollar cost across model
// calls. Usage comes from provider responses when available and falls
// back to a character-count estimate when it is not; estimated numbers
// are flagged so downstream reporting never mistakes them for billed
// figures.
package metering

// TokenUsage counts tokens for one or more model calls.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	IsEstimated      bool `json:"is_estimated"`
}

// Add accumulates other into u. A single estimated sample taints the
// whole total.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.IsEstimated = u.IsEstimated || other.IsEstimated
}

// CostBreakdown is the dollar cost derived from a TokenUsage and a
// pricing table.
type CostBreakdown struct {
	PromptCost     float64 `json:"prompt_cost_usd"`
	CompletionCost float64 `json:"completion_cost_usd"`
	TotalCost      float64 `json:"total_cost_usd"`
}

// Add accumulates other into c.
func (c *CostBreakdown) Add(other CostBreakdown) {
	c.PromptCost += other.PromptCost
	c.CompletionCost += other.CompletionCost
	c.TotalCost += other.TotalCost
}

// Metering aggregates usage and cost over a tick or burst.
type Metering struct {
	Calls int           `json:"calls"`
	Usage TokenUsage    `json:"usage"`
	Cost  CostBreakdown `json:"cost"`
	Model string        `json:"model,omitempty"`
}

// Add folds one call (or another aggregate) into m.
func (m *Metering) Add(other Metering) {
	m.Calls += other.Calls
	m.Usage.Add(other.Usage)
	m.Cost.Add(other.Cost)
	if m.Model == "" {
		m.Model = other.Model
	}
}

// estimateDivisor approximates tokens from characters for providers
// that omit usage in responses.
const estimateDivisor = 4

// EstimateTokens approximates a token count from raw text length.
func EstimateTokens(text string) int {
	n := len([]rune(text)) / estimateDivisor
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// Meter builds a Metering record for one call. promptTokens and
// completionTokens of 0 with non-empty fallback text switch the record
// to estimation.
func Meter(model string, promptTokens, completionTokens int, promptText, completionText string, table *PricingTable) Metering {
	usage := TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
	if promptTokens == 0 && completionTokens == 0 {
		usage.PromptTokens = EstimateTokens(promptText)
		usage.CompletionTokens = EstimateTokens(completionText)
		usage.IsEstimated = true
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	m := Metering{Calls: 1, Usage: usage, Model: model}
	if table != nil {
		m.Cost = table.Cost(model, usage)
	}
	return m
}

package models

// TokenUsage is the per-response token accounting triple described in
// spec §3. TotalTokens and TotalAllTokens are derived, not independently
// settable; use NewTokenUsage or Add to keep them consistent.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	ThoughtTokens            int `json:"thought_tokens"`

	// TotalTokens = input + output.
	TotalTokens int `json:"total_tokens"`

	// TotalAllTokens = input + output + cacheCreation + cacheRead + thinking.
	TotalAllTokens int `json:"total_all_tokens"`
}

// NewTokenUsage builds a TokenUsage with its derived totals computed.
func NewTokenUsage(input, output, cacheCreation, cacheRead, thought int) TokenUsage {
	u := TokenUsage{
		InputTokens:              input,
		OutputTokens:             output,
		CacheCreationInputTokens: cacheCreation,
		CacheReadInputTokens:     cacheRead,
		ThoughtTokens:            thought,
	}
	u.recompute()
	return u
}

func (u *TokenUsage) recompute() {
	u.TotalTokens = u.InputTokens + u.OutputTokens
	u.TotalAllTokens = u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.ThoughtTokens
}

// Add accumulates other into u in place, recomputing derived totals.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.ThoughtTokens += other.ThoughtTokens
	u.recompute()
}

// Reset zeroes all fields of u.
func (u *TokenUsage) Reset() {
	*u = TokenUsage{}
}

// CacheImpact summarizes the cost savings attributable to cache reads and
// cache writes for a single response (spec §4.1).
type CacheImpact struct {
	PotentialCost     int     `json:"potential_cost"`
	ActualCost        int     `json:"actual_cost"`
	Savings           int     `json:"savings"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// ComputeCacheImpact derives the cache-impact figures for a usage snapshot.
func ComputeCacheImpact(u TokenUsage) CacheImpact {
	potential := u.InputTokens + u.OutputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
	actual := u.CacheReadInputTokens + u.CacheCreationInputTokens
	savings := potential - actual
	if savings < 0 {
		savings = 0
	}
	var pct float64
	if potential > 0 {
		pct = 100 * float64(savings) / float64(potential)
	}
	return CacheImpact{
		PotentialCost:     potential,
		ActualCost:        actual,
		Savings:           savings,
		SavingsPercentage: pct,
	}
}

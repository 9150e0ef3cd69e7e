package interaction

import (
	"context"
	"time"

	"github.com/coredesk/llmcore/pkg/models"
)

// accountingState holds the turn-counter and token-usage-triple state
// described in spec §3's Interaction data model. It is zero-valued on
// construction.
type accountingState struct {
	statementCount       int
	statementTurnCount   int
	interactionTurnCount int

	turn        models.TokenUsage
	statement   models.TokenUsage
	interaction models.TokenUsage

	// lastAssistantInputTokens is the InputTokens of the most recently
	// recorded usage, used to compute the differential contribution of
	// the next message (spec §4.1 "Token accounting").
	lastAssistantInputTokens int
}

// TokenUsageRecord is the shape updateTotals writes to the persistence
// sink for every turn: identifying fields for the assistant message and
// interaction state the usage belongs to (spec.md:214-219's persisted
// token-usage record), plus the raw usage, its differential contribution,
// and the cache-impact figures derived from it (spec §4.1, §3).
type TokenUsageRecord struct {
	MessageID          string
	StatementCount     int
	StatementTurnCount int
	Timestamp          time.Time
	Model              string
	Role               models.Role
	Type               string

	Raw          models.TokenUsage
	Differential int
	CacheImpact  models.CacheImpact
}

// updateTotalsLocked implements spec §4.1's "Token accounting": it writes
// a TokenUsageRecord to the persistence sink, then accumulates usage into
// the statement and interaction triples, resetting either triple first if
// its respective turn counter is at zero (start of a new statement or
// interaction). messageID identifies the assistant message this usage was
// billed against. Callers must hold i.mu.
func (i *Interaction) updateTotalsLocked(ctx context.Context, messageID string, usage models.TokenUsage) {
	if i.acct.interactionTurnCount == 0 {
		i.acct.interaction.Reset()
	}
	if i.acct.statementTurnCount == 0 {
		i.acct.statement.Reset()
	}

	i.acct.turn = usage
	i.acct.statement.Add(usage)
	i.acct.interaction.Add(usage)

	record := TokenUsageRecord{
		MessageID:          messageID,
		StatementCount:     i.acct.statementCount,
		StatementTurnCount: i.acct.statementTurnCount,
		Timestamp:          time.Now(),
		Model:              i.Model,
		Role:               models.RoleAssistant,
		Type:               "message",

		Raw:          usage,
		Differential: i.differentialLocked(usage),
		CacheImpact:  models.ComputeCacheImpact(usage),
	}
	if err := i.sink.AppendTokenUsage(ctx, i.ID, record); err != nil {
		i.log.Warn("interaction: failed to persist token usage record",
			"interaction_id", i.ID, "error", err)
	}

	i.acct.lastAssistantInputTokens = usage.InputTokens
	i.acct.statementTurnCount++
	i.acct.interactionTurnCount++
}

// differentialLocked computes the incremental token contribution of this
// usage update: an assistant turn contributes its OutputTokens only,
// since its InputTokens mostly restate context already billed for in a
// prior turn. Any residual InputTokens growth beyond what the previous
// turn already billed for is folded in via the max(0, ...) clamp (spec
// §4.1 "Differential"). Callers must hold i.mu.
func (i *Interaction) differentialLocked(usage models.TokenUsage) int {
	residualInput := usage.InputTokens - i.acct.lastAssistantInputTokens
	if residualInput < 0 {
		residualInput = 0
	}
	return usage.OutputTokens + residualInput
}

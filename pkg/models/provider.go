package models

import "time"

// StopReason is the normalized form of a vendor's finish/stop reason
// (spec §4.2). Adapters translate their vendor-specific value into one of
// these; an unrecognized vendor reason is logged and passed through as
// StopUnknown carrying the raw string in ProviderResponse.RawStopReason.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopStopSequence  StopReason = "stop_sequence"
	StopMaxTokens     StopReason = "max_tokens"
	StopToolUse       StopReason = "tool_use"
	StopContentFilter StopReason = "content_filter"
	StopRefusal       StopReason = "refusal"
	StopToolCalls     StopReason = "tool_calls"
	StopNull          StopReason = "null"
	StopUnknown       StopReason = "unknown"
)

// MessageStop carries the normalized stop reason and, where applicable,
// the literal stop sequence matched.
type MessageStop struct {
	StopReason   StopReason `json:"stop_reason"`
	StopSequence string     `json:"stop_sequence,omitempty"`
}

// RateLimit is a last-seen snapshot of vendor rate-limit headers. Known is
// false when the adapter never observed a rate-limit header for this
// response; a manager keyed by provider must not treat a zero-valued,
// Known=false snapshot as "exhausted" (spec §9 open question).
type RateLimit struct {
	Known             bool      `json:"known"`
	RequestsRemaining int       `json:"requests_remaining"`
	RequestsLimit     int       `json:"requests_limit"`
	RequestsResetDate time.Time `json:"requests_reset_date"`
	TokensRemaining   int       `json:"tokens_remaining"`
	TokensLimit       int       `json:"tokens_limit"`
	TokensResetDate   time.Time `json:"tokens_reset_date"`
}

// ToolValidation tracks the validation lifecycle of a single tool use
// within a ProviderResponse. Validated transitions false -> true exactly
// once, before the corresponding tool result is appended to the
// interaction's message log.
type ToolValidation struct {
	Validated bool   `json:"validated"`
	Results   string `json:"results,omitempty"`
}

// ToolUse is the normalized record of one tool invocation requested by the
// model, carried alongside a ProviderResponse so the transport validator
// and the interaction state machine can both inspect it without
// re-parsing answerContent.
type ToolUse struct {
	ToolUseID      string          `json:"tool_use_id"`
	ToolName       string          `json:"tool_name"`
	ToolInput      []byte          `json:"tool_input"`
	ToolThinking   string          `json:"tool_thinking,omitempty"`
	ToolValidation ToolValidation  `json:"tool_validation"`
}

// ProviderResponse is the normalized shape every adapter produces from its
// vendor's response (spec §4.2 item 3). AnswerContent is the ordered list
// of content parts the vendor produced; Answer is the flattened text
// (or tool-thinking) form transport computes during normalization.
type ProviderResponse struct {
	ID             string        `json:"id"`
	Model          string        `json:"model"`
	AnswerContent  []ContentPart `json:"answer_content"`
	Answer         string        `json:"answer"`
	IsTool         bool          `json:"is_tool"`
	ToolUses       []ToolUse     `json:"tool_uses,omitempty"`
	MessageStop    MessageStop   `json:"message_stop"`
	RawStopReason  string        `json:"raw_stop_reason,omitempty"`
	Usage          TokenUsage    `json:"usage"`
	RateLimit      RateLimit     `json:"rate_limit"`
	ProviderName   string        `json:"provider_name"`
	FromCache      bool          `json:"from_cache"`
	Extra          map[string]any `json:"extra,omitempty"`
}

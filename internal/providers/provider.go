// Package providers implements the LLM provider abstraction (spec §4.2):
// a common contract that every vendor adapter satisfies, so the transport
// core and interaction state machine never see vendor-specific shapes.
package providers

import (
	"context"

	"github.com/coredesk/llmcore/pkg/models"
)

// ExtendedThinking parameterizes a vendor's extended-reasoning mode, when
// supported.
type ExtendedThinking struct {
	Enabled      bool
	BudgetTokens int
}

// MessageRequest is the provider-agnostic request assembled by the
// transport core's prepareMessageRequest (spec §4.3).
type MessageRequest struct {
	Messages          []models.Message
	System            string
	Tools             []models.Tool
	Model             string
	MaxTokens         int
	Temperature       float64
	ExtendedThinking  ExtendedThinking
}

// Provider is the mandatory contract every adapter implements (spec §4.2).
type Provider interface {
	// Name identifies the adapter for logging and cache-key namespacing.
	Name() string

	// SpeakWith sends req to the vendor and returns a normalized response.
	// interactionID is carried through for error context only; adapters
	// must not use it to look up interaction state.
	SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error)

	// AsProviderMessageRequest exposes the vendor-shaped request body an
	// adapter would send, for logging, testing, and the authoritative
	// proxy's dual-transport parity requirement (spec §4.2).
	AsProviderMessageRequest(req MessageRequest) (any, error)
}

// ValidationFailureReason names why the transport validator rejected a
// response (spec §4.3).
type ValidationFailureReason string

const (
	ReasonToolNotFound        ValidationFailureReason = "tool_not_found"
	ReasonToolMaxTokens        ValidationFailureReason = "tool_exceeded_max_tokens"
	ReasonToolInputInvalid     ValidationFailureReason = "tool_input_invalid"
	ReasonEmptyAnswer          ValidationFailureReason = "empty_answer"
	ReasonFatal                ValidationFailureReason = "fatal"
)

// OptionsModifier is an optional adapter hook invoked by the transport
// core when validation fails, so an adapter can steer the next attempt
// (spec §4.3: modifyOptionsOnValidationFailure).
type OptionsModifier interface {
	ModifyOptionsOnValidationFailure(req MessageRequest, reason ValidationFailureReason, detail string) MessageRequest
}

// StopReasonChecker is an optional adapter hook for vendors whose stop
// reason requires extra inspection beyond MessageStop (spec §4.2).
type StopReasonChecker interface {
	CheckStopReason(resp *models.ProviderResponse) models.StopReason
}

// NormalizeStopReason maps a vendor's raw finish-reason string to the
// closed StopReason enum (spec §4.2). Unknown values are passed through
// as StopUnknown with the raw string preserved by the caller.
func NormalizeStopReason(table map[string]models.StopReason, raw string) models.StopReason {
	if reason, ok := table[raw]; ok {
		return reason
	}
	return models.StopUnknown
}

// Package llmerr defines the tagged error kinds used across the
// orchestration core (spec §7). Provider adapters, transport, session and
// interaction raise an *Error carrying one of these kinds rather than an ad
// hoc string or a bare HTTP status code; internal/authboot returns its own
// *ConfigFetchError instead.
package llmerr

import (
	"errors"
	"fmt"

	"github.com/coredesk/llmcore/pkg/models"
)

// Kind is a closed sum type over the language-neutral error tags from
// spec §7. Prefer errors.As over string comparison when branching on kind.
type Kind string

const (
	KindConfigFetch Kind = "ConfigFetch"

	KindLLMBadRequest     Kind = "LLM.BadRequest"
	KindLLMOversize       Kind = "LLM.Oversize"
	KindLLMRateLimit      Kind = "LLM.RateLimit"
	KindLLMServer         Kind = "LLM.Server"
	KindLLMProvider       Kind = "LLM.Provider"
	KindLLMQuotaExceeded  Kind = "LLM.QuotaExceeded"
	KindLLMProtocol       Kind = "LLM.Protocol"

	KindValidationToolSchema   Kind = "Validation.ToolSchema"
	KindValidationToolMissing  Kind = "Validation.ToolMissing"
	KindValidationToolTooLarge Kind = "Validation.ToolTooLarge"
	KindValidationEmptyAnswer  Kind = "Validation.EmptyAnswer"

	KindAuthNotInitialized Kind = "Auth.NotInitialized"
	KindAuthNoSession      Kind = "Auth.NoSession"

	KindCacheOversize Kind = "Cache.Oversize"

	KindInteractionInit     Kind = "Interaction.Init"
	KindInteractionProtocol Kind = "Interaction.Protocol"
)

// Retryable reports whether transport's retry loop should retry a
// response classified with this kind (spec §4.3 status-code policy).
func (k Kind) Retryable() bool {
	switch k {
	case KindLLMRateLimit, KindLLMServer:
		return true
	default:
		return false
	}
}

// Error is the structured error type every layer of the core raises.
// It always carries a Kind and optionally wraps an underlying Cause,
// plus the provider/model/interaction context transport attaches when
// wrapping a non-Error exception (spec §7 propagation rules).
type Error struct {
	Kind          Kind
	Message       string
	Cause         error
	Provider      string
	Model         string
	InteractionID string
	Attempt       int

	// RateLimit carries the vendor's rate-limit snapshot when a
	// KindLLMRateLimit error was raised from a 429 response whose body the
	// adapter could still parse (spec §4.3/S3's reset-date backoff). Zero
	// value when the adapter had no rate-limit header to report.
	RateLimit models.RateLimit
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Provider != "" && e.Model != "":
		return fmt.Sprintf("[%s] %s (provider=%s model=%s)", e.Kind, msg, e.Provider, e.Model)
	case e.Provider != "":
		return fmt.Sprintf("[%s] %s (provider=%s)", e.Kind, msg, e.Provider)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause. If cause is
// already an *Error of the same shape, its context is preserved and only
// missing fields are filled in — wrapping never discards detail a deeper
// layer already attached.
func Wrap(kind Kind, cause error, message string) *Error {
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{
			Kind:          kind,
			Message:       message,
			Cause:         existing,
			Provider:      existing.Provider,
			Model:         existing.Model,
			InteractionID: existing.InteractionID,
			Attempt:       existing.Attempt,
			RateLimit:     existing.RateLimit,
		}
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext returns a copy of e with provider/model/interaction context
// attached, used by transport when wrapping adapter errors.
func (e *Error) WithContext(provider, model, interactionID string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	if cp.Provider == "" {
		cp.Provider = provider
	}
	if cp.Model == "" {
		cp.Model = model
	}
	if cp.InteractionID == "" {
		cp.InteractionID = interactionID
	}
	return &cp
}

// WithAttempt returns a copy of e recording which retry attempt raised it.
func (e *Error) WithAttempt(attempt int) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Attempt = attempt
	return &cp
}

// WithRateLimit returns a copy of e carrying rl, used by adapters that can
// still parse a rate-limit snapshot out of a 429 response body.
func (e *Error) WithRateLimit(rl models.RateLimit) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.RateLimit = rl
	return &cp
}

// Is reports kind equality so errors.Is(err, llmerr.New(kind, "")) works
// for sentinel-style checks that only care about the kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// IsKind reports whether err is or wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// FromHTTPStatus classifies an HTTP status code per spec §4.3's retry
// policy table.
func FromHTTPStatus(status int, message string) *Error {
	switch {
	case status == 400:
		return New(KindLLMBadRequest, message)
	case status == 413:
		return New(KindLLMOversize, message)
	case status == 429:
		return New(KindLLMRateLimit, message)
	case status >= 500:
		return New(KindLLMServer, message)
	default:
		return New(KindLLMProvider, message)
	}
}

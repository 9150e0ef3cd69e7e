// Package transport implements the transport core (spec §4.3): request
// assembly, response caching with opportunistic compression, a
// status-code-aware retry loop, response normalization, and tool-use
// validation against registered JSON schemas.
package transport

import (
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/pkg/models"
)

// hard defaults applied when request assembly leaves maxTokens/temperature
// unset (spec §4.3).
const (
	defaultMaxTokens  = 16384
	defaultTemperature = 0.2
)

// RequestCallbacks supplies the pieces prepareMessageRequest assembles
// into a providers.MessageRequest. Each field is optional; a nil callback
// contributes nothing to the assembled request.
type RequestCallbacks struct {
	Messages         func() []models.Message
	System           func() string
	Tools            func() []models.Tool
	Model            func() string
	MaxTokens        func() (int, bool)
	Temperature      func() (float64, bool)
	ExtendedThinking func() (providers.ExtendedThinking, bool)
}

// PrepareMessageRequest builds the provider-agnostic request from the
// registered callbacks, falling back to the hard defaults for maxTokens
// and temperature when the caller leaves them unset (spec §4.3).
func PrepareMessageRequest(cb RequestCallbacks) providers.MessageRequest {
	req := providers.MessageRequest{
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	if cb.Messages != nil {
		req.Messages = cb.Messages()
	}
	if cb.System != nil {
		req.System = cb.System()
	}
	if cb.Tools != nil {
		req.Tools = cb.Tools()
	}
	if cb.Model != nil {
		req.Model = cb.Model()
	}
	if cb.MaxTokens != nil {
		if v, ok := cb.MaxTokens(); ok {
			req.MaxTokens = v
		}
	}
	if cb.Temperature != nil {
		if v, ok := cb.Temperature(); ok {
			req.Temperature = v
		}
	}
	if cb.ExtendedThinking != nil {
		if v, ok := cb.ExtendedThinking(); ok {
			req.ExtendedThinking = v
		}
	}
	return req
}

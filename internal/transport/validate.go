package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/pkg/models"
)

// maxValidationRetries bounds speakWithRetry's outer, validation-driven
// retry loop (spec §4.3 "speakWithRetry wraps speakWithPlus up to 3
// attempts").
const maxValidationRetries = 3

// ResponseValidator is a caller-supplied check run after every successful
// speakWithPlus call. Returning a non-empty string names the validation
// failure reason; returning providers.ReasonFatal aborts further retries
// (spec §4.3).
type ResponseValidator func(resp *models.ProviderResponse) providers.ValidationFailureReason

// ToolRegistry resolves a tool's JSON schema by name for tool-use
// validation. A missing tool is reported as ReasonToolNotFound.
type ToolRegistry interface {
	Lookup(name string) (models.Tool, bool)
}

// MapToolRegistry is the simplest ToolRegistry: a name -> Tool map.
type MapToolRegistry map[string]models.Tool

func (m MapToolRegistry) Lookup(name string) (models.Tool, bool) {
	t, ok := m[name]
	return t, ok
}

// schemaCache memoizes compiled JSON schemas keyed by their raw bytes, the
// same pattern the rest of the corpus uses for tool/plugin schema
// validation.
var schemaCache sync.Map

func compileToolSchema(raw []byte) (*jsonschema.Schema, error) {
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool-input.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// validateToolUses runs the registered-tool-lookup, max-tokens, and
// JSON-schema checks from spec §4.3's "Validation and outer retry"
// section against every tool use in resp. It mutates
// resp.ToolUses[i].ToolValidation in place and returns the first
// non-empty failure reason and detail encountered, if any.
func validateToolUses(resp *models.ProviderResponse, tools ToolRegistry) (providers.ValidationFailureReason, string) {
	if resp.MessageStop.StopReason == models.StopMaxTokens && resp.IsTool {
		return providers.ReasonToolMaxTokens, "Tool exceeded max tokens"
	}

	var firstReason providers.ValidationFailureReason
	var firstDetail string
	recordFirst := func(reason providers.ValidationFailureReason, detail string) {
		if firstReason == "" {
			firstReason, firstDetail = reason, detail
		}
	}

	for i := range resp.ToolUses {
		tu := &resp.ToolUses[i]
		tool, ok := tools.Lookup(tu.ToolName)
		if !ok {
			tu.ToolValidation = models.ToolValidation{Validated: true, Results: "tool not registered"}
			recordFirst(providers.ReasonToolNotFound, fmt.Sprintf("Tool not found: %s", tu.ToolName))
			continue
		}

		schema, err := compileToolSchema(tool.InputSchema)
		if err != nil {
			tu.ToolValidation = models.ToolValidation{Validated: true, Results: err.Error()}
			recordFirst(providers.ReasonToolInputInvalid, fmt.Sprintf("Tool input validation failed: %v", err))
			continue
		}

		var decoded any
		if err := json.Unmarshal(tu.ToolInput, &decoded); err != nil {
			tu.ToolValidation = models.ToolValidation{Validated: true, Results: err.Error()}
			recordFirst(providers.ReasonToolInputInvalid, fmt.Sprintf("Tool input validation failed: %v", err))
			continue
		}
		if err := schema.Validate(decoded); err != nil {
			tu.ToolValidation = models.ToolValidation{Validated: true, Results: err.Error()}
			recordFirst(providers.ReasonToolInputInvalid, fmt.Sprintf("Tool input validation failed: %v", err))
			continue
		}
		tu.ToolValidation = models.ToolValidation{Validated: true}
	}
	if firstReason != "" {
		return firstReason, firstDetail
	}

	if resp.Answer == "" && !resp.IsTool {
		return providers.ReasonEmptyAnswer, "Empty answer"
	}
	return "", ""
}

// SpeakWithRetry wraps SpeakWithPlus with the validation-driven outer
// retry loop (spec §4.3). After each successful call, tool uses are
// validated against tools; if extraValidator is non-nil it runs only when
// the built-in checks report no failure, and its reason is then used. On a
// non-empty reason, modify is invoked to steer the next attempt; a
// providers.ReasonFatal from extraValidator aborts retries immediately (the
// built-in checks never return it).
func (c *Core) SpeakWithRetry(
	ctx context.Context,
	providerName string,
	req providers.MessageRequest,
	interactionID string,
	tools ToolRegistry,
	extraValidator ResponseValidator,
	modify providers.OptionsModifier,
) (*models.ProviderResponse, error) {
	if tools == nil {
		tools = MapToolRegistry{}
	}

	for attempt := 1; attempt <= maxValidationRetries; attempt++ {
		resp, err := c.SpeakWithPlus(ctx, providerName, req, interactionID)
		if err != nil {
			return nil, err
		}

		reason, detail := validateToolUses(resp, tools)
		if reason == "" && extraValidator != nil {
			reason = extraValidator(resp)
		}
		if reason == "" {
			return resp, nil
		}
		if c.Metrics != nil {
			c.Metrics.RecordValidationFailure(string(reason))
		}
		if reason == providers.ReasonFatal {
			return nil, fmt.Errorf("transport: fatal validation failure: %s", detail)
		}
		if attempt == maxValidationRetries {
			return resp, nil
		}
		if c.Metrics != nil {
			c.Metrics.RecordRetry("validation")
		}
		if modify != nil {
			req = modify.ModifyOptionsOnValidationFailure(req, reason, detail)
		} else {
			req = defaultModifyOnValidationFailure(req, resp, reason, detail)
		}
	}
	return nil, fmt.Errorf("transport: exhausted validation retries")
}

// defaultModifyOnValidationFailure applies the three built-in remediation
// rules from spec §4.3 when no adapter-specific OptionsModifier hook is
// registered.
func defaultModifyOnValidationFailure(req providers.MessageRequest, resp *models.ProviderResponse, reason providers.ValidationFailureReason, detail string) providers.MessageRequest {
	switch reason {
	case providers.ReasonToolInputInvalid:
		if len(resp.ToolUses) > 0 {
			tu := resp.ToolUses[len(resp.ToolUses)-1]
			guidance := models.ToolResultPart(tu.ToolUseID, []models.ContentPart{models.TextPart(detail)}, true)
			req.Messages = append(req.Messages, models.Message{
				ID:      models.NewMessageID(),
				Role:    models.RoleUser,
				Content: []models.ContentPart{guidance},
			})
		}
	case providers.ReasonToolMaxTokens:
		req.Messages = append(req.Messages, models.Message{
			ID:      models.NewMessageID(),
			Role:    models.RoleUser,
			Content: []models.ContentPart{models.TextPart("Please provide a smaller answer.")},
		})
	case providers.ReasonEmptyAnswer:
		req.Temperature += 0.1
		if req.Temperature > 1 {
			req.Temperature = 1
		}
	}
	return req
}

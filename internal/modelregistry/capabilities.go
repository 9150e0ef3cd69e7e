package modelregistry

// ModelCapabilities are the static capabilities the transport core and
// interaction state machine need from the Model Registry (spec §4.6).
// Entries missing from the catalog yield conservative defaults: no tools,
// no images, an 8192-token window.
type ModelCapabilities struct {
	ContextWindow   int
	SupportsThinking bool
	SupportsTools   bool
	SupportsImages  bool

	// InputPrice and OutputPrice are USD per million tokens, 0 when the
	// catalog has no pricing data for the model (treated as free/unknown
	// by cost estimation, not as a confirmed zero price).
	InputPrice  float64
	OutputPrice float64
}

var conservativeDefaults = ModelCapabilities{
	ContextWindow:    8192,
	SupportsThinking: false,
	SupportsTools:    false,
	SupportsImages:   false,
}

// GetModelCapabilities returns the static capabilities registered for id,
// or conservativeDefaults if the catalog has no entry for it.
func GetModelCapabilities(id string) ModelCapabilities {
	return DefaultCatalog.GetModelCapabilities(id)
}

// GetModelCapabilities returns c's static capabilities for id, or
// conservativeDefaults if no entry matches.
func (c *Catalog) GetModelCapabilities(id string) ModelCapabilities {
	model, ok := c.Get(id)
	if !ok {
		return conservativeDefaults
	}
	return ModelCapabilities{
		ContextWindow:    model.ContextWindow,
		SupportsThinking: model.HasCapability(CapReasoning),
		SupportsTools:    model.HasCapability(CapTools),
		SupportsImages:   model.HasCapability(CapVision),
		InputPrice:       model.InputPrice,
		OutputPrice:      model.OutputPrice,
	}
}

// InteractionKind names the three interaction-type default profiles used
// by ResolveParams (spec §4.1).
type InteractionKind string

const (
	InteractionChat         InteractionKind = "chat"
	InteractionConversation InteractionKind = "conversation"
	InteractionBase         InteractionKind = "base"
)

// ResolvedParams are the three values ResolveParams produces.
type ResolvedParams struct {
	MaxTokens        int
	Temperature      float64
	ExtendedThinking bool
}

// ProviderPreferences is the subset of a user's or interaction's stored
// preferences ResolveParams consults. A zero value field means "no
// preference set" for that field.
type ProviderPreferences struct {
	MaxTokens        *int
	Temperature      *float64
	ExtendedThinking *bool
}

// interactionDefaults are the interaction-type defaults from spec §4.1.
var interactionDefaults = map[InteractionKind]ResolvedParams{
	InteractionChat:         {Temperature: 0.7, MaxTokens: 4096, ExtendedThinking: false},
	InteractionConversation: {Temperature: 0.2, MaxTokens: 16384, ExtendedThinking: true},
	InteractionBase:         {Temperature: 0.5, MaxTokens: 8192, ExtendedThinking: false},
}

// ResolveParams resolves (maxTokens, temperature, extendedThinking) using
// the ordered priority chain from spec §4.1: per-call explicit value, then
// user preferences, then interaction-type defaults, then the model's
// capability default. If extended thinking ends up on, temperature is
// coerced to 1 regardless of which tier supplied it.
func ResolveParams(model string, kind InteractionKind, explicit, userPrefs ProviderPreferences) ResolvedParams {
	caps := GetModelCapabilities(model)
	fallback, ok := interactionDefaults[kind]
	if !ok {
		fallback = interactionDefaults[InteractionBase]
	}

	result := ResolvedParams{
		MaxTokens:        firstInt(explicit.MaxTokens, userPrefs.MaxTokens, &fallback.MaxTokens),
		Temperature:      firstFloat(explicit.Temperature, userPrefs.Temperature, &fallback.Temperature),
		ExtendedThinking: firstBool(explicit.ExtendedThinking, userPrefs.ExtendedThinking, &fallback.ExtendedThinking),
	}
	if result.ExtendedThinking && !caps.SupportsThinking {
		result.ExtendedThinking = false
	}
	if result.ExtendedThinking {
		result.Temperature = 1
	}
	return result
}

func firstInt(tiers ...*int) int {
	for _, t := range tiers {
		if t != nil {
			return *t
		}
	}
	return 0
}

func firstFloat(tiers ...*float64) float64 {
	for _, t := range tiers {
		if t != nil {
			return *t
		}
	}
	return 0
}

func firstBool(tiers ...*bool) bool {
	for _, t := range tiers {
		if t != nil {
			return *t
		}
	}
	return false
}

package modelregistry

import "testing"

func TestGetModelCapabilities_KnownModel(t *testing.T) {
	caps := GetModelCapabilities("claude-3-5-sonnet-latest")
	if caps.ContextWindow != 200000 {
		t.Errorf("ContextWindow = %d, want 200000", caps.ContextWindow)
	}
	if !caps.SupportsTools {
		t.Error("expected SupportsTools = true")
	}
}

func TestGetModelCapabilities_UnknownModel_ConservativeDefaults(t *testing.T) {
	caps := GetModelCapabilities("nonexistent-model-xyz")
	if caps != conservativeDefaults {
		t.Errorf("caps = %+v, want conservative defaults %+v", caps, conservativeDefaults)
	}
}

func TestResolveParams_ExplicitWins(t *testing.T) {
	maxTokens := 2048
	result := ResolveParams("gpt-4o", InteractionChat, ProviderPreferences{MaxTokens: &maxTokens}, ProviderPreferences{})
	if result.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048 (explicit)", result.MaxTokens)
	}
}

func TestResolveParams_FallsBackToInteractionDefaults(t *testing.T) {
	result := ResolveParams("gpt-4o", InteractionConversation, ProviderPreferences{}, ProviderPreferences{})
	if result.MaxTokens != 16384 {
		t.Errorf("MaxTokens = %d, want 16384 (conversation default)", result.MaxTokens)
	}
	if result.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", result.Temperature)
	}
}

func TestResolveParams_ThinkingCoercesTemperature(t *testing.T) {
	result := ResolveParams("o3-mini", InteractionConversation, ProviderPreferences{}, ProviderPreferences{})
	if !result.ExtendedThinking {
		t.Fatal("expected extended thinking on for conversation default")
	}
	if result.Temperature != 1 {
		t.Errorf("Temperature = %v, want 1 when thinking is on", result.Temperature)
	}
}

func TestResolveParams_ThinkingDisabledWhenModelDoesNotSupportIt(t *testing.T) {
	result := ResolveParams("gpt-4o-mini", InteractionConversation, ProviderPreferences{}, ProviderPreferences{})
	if result.ExtendedThinking {
		t.Error("expected thinking to be forced off for a model without reasoning support")
	}
}

func TestResolveParams_UserPreferenceBeatsInteractionDefault(t *testing.T) {
	temp := 0.9
	result := ResolveParams("gpt-4o", InteractionChat, ProviderPreferences{}, ProviderPreferences{Temperature: &temp})
	if result.Temperature != 0.9 {
		t.Errorf("Temperature = %v, want 0.9 (user preference)", result.Temperature)
	}
}

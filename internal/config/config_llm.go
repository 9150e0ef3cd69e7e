package config

import "time"

// LLMConfig configures the provider fleet and the parameter-resolution
// priority chain used when an interaction does not pin a specific model.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails to produce a usable answer. Providers are tried in order.
	FallbackChain []string `yaml:"fallback_chain"`

	// Bedrock configures the AWS Bedrock adapter.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// AutoDiscover configures local provider discovery (Ollama-shaped hosts).
	AutoDiscover LLMAutoDiscoverConfig `yaml:"auto_discover"`
}

// LLMProviderConfig configures one provider entry. Profiles let a single
// provider kind (e.g. the OpenAI-shape adapter) be reused against multiple
// base URLs — Azure OpenAI, Groq, OpenRouter — without a distinct Go type
// per vendor.
type LLMProviderConfig struct {
	APIKey       string                              `yaml:"api_key"`
	DefaultModel string                              `yaml:"default_model"`
	BaseURL      string                              `yaml:"base_url"`
	APIVersion   string                              `yaml:"api_version"`
	Profiles     map[string]LLMProviderProfileConfig `yaml:"profiles"`
}

// LLMProviderProfileConfig overrides provider settings for a named profile.
type LLMProviderProfileConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}

// LLMAutoDiscoverConfig configures local provider discovery.
type LLMAutoDiscoverConfig struct {
	Ollama OllamaDiscoverConfig `yaml:"ollama"`
}

// OllamaDiscoverConfig configures discovery of a local ONN-compatible host.
type OllamaDiscoverConfig struct {
	Enabled        bool     `yaml:"enabled"`
	PreferLocal    bool     `yaml:"prefer_local"`
	ProbeLocations []string `yaml:"probe_locations"`
}

// BedrockConfig configures the AWS Bedrock-hosted adapter. Credentials are
// resolved through the standard AWS SDK credential chain; this struct only
// carries the settings the adapter cannot infer from the environment.
type BedrockConfig struct {
	Region               string        `yaml:"region"`
	DefaultContextWindow int           `yaml:"default_context_window"`
	DefaultMaxTokens     int           `yaml:"default_max_tokens"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

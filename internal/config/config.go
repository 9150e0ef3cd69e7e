// Package config loads and validates the orchestration core's configuration.
package config

import "time"

// Config is the root configuration for an llmcore deployment. It is
// decoded from YAML (optionally split across files via $include) and
// validated before any component is constructed from it.
type Config struct {
	// Version pins the config file to a schema revision (see CurrentVersion
	// and ValidateVersion in version.go). A missing or mismatched version
	// fails Load rather than guessing at forward/backward compatibility.
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	LLM           LLMConfig           `yaml:"llm"`
	Cache         CacheConfig         `yaml:"cache"`
	Backoff       BackoffConfig       `yaml:"backoff"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig configures tracing beyond the always-on Prometheus
// metrics in internal/observability/metrics.go.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls the OpenTelemetry span emitted around every
// provider call (spec §4.3's request path). Endpoint empty (the default)
// disables tracing entirely; this never gates whether a request succeeds.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// ServerConfig carries the settings for the thin cmd/llmcore-server
// wiring entrypoint. The core itself does not listen on any port.
type ServerConfig struct {
	MetricsPort int `yaml:"metrics_port"`
}

// LoggingConfig configures the package-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig tunes the response cache (spec §3/§4.3/§9).
type CacheConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	MaxEntries        int           `yaml:"max_entries"`
	CompressThreshold int           `yaml:"compress_threshold_bytes"`
}

// BackoffConfig tunes retry behavior for transient provider failures.
type BackoffConfig struct {
	ServerErrorDelay    time.Duration `yaml:"server_error_delay"`
	ServerErrorMaxTries int           `yaml:"server_error_max_tries"`
	RateLimitMaxWait    time.Duration `yaml:"rate_limit_max_wait"`
}

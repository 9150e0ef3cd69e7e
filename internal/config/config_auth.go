package config

import "time"

// AuthConfig configures the session/API-token registry and the Supabase
// auth bootstrap collaborator.
type AuthConfig struct {
	// APIKeys seeds the token registry with static, pre-issued tokens —
	// useful for service accounts and local development.
	APIKeys []APIKeyConfig `yaml:"api_keys"`

	// Bootstrap configures the remote Supabase config fetch (spec §4.5).
	Bootstrap SupabaseBootstrapConfig `yaml:"bootstrap"`

	// Database configures the pooled Postgres connections
	// SupabaseClientFactory.GetOrCreate opens per (schema, useAuth) pair
	// (spec.md:173-175). Empty Host disables per-user client construction:
	// bootstrapAuth falls back to a nil session.ClientFactory.
	Database SupabaseDBConfig `yaml:"database"`
}

// SupabaseDBConfig is the connection-pool configuration for the Postgres
// instance backing a Supabase project.
type SupabaseDBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	Schema          string        `yaml:"schema"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// APIKeyConfig declares a static API token and its associated identity.
type APIKeyConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
}

// SupabaseBootstrapConfig configures fetchSupabaseConfig (spec §4.5).
type SupabaseBootstrapConfig struct {
	// URL overrides the built-in default config endpoint.
	URL string `yaml:"url"`

	// MaxRetries bounds the number of fetch attempts. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the wait between attempts. Default: 5s.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

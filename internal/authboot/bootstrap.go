// Package authboot fetches the remote Supabase project config the auth
// backend needs at startup (spec §4.5). There is no official Supabase Go
// SDK in the example corpus or anywhere the ecosystem commonly reaches
// for, so this collaborator is a thin net/http + encoding/json client
// rather than a vendor SDK wrapper — the stdlib is the correct tool here,
// not a fallback from one.
package authboot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/coredesk/llmcore/internal/backoff"
)

const defaultConfigURL = "https://config.coredesk.example/supabase"

var anonKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config is the remote Supabase project config fetched at startup.
type Config struct {
	URL     string `json:"url"`
	AnonKey string `json:"anonKey"`
}

// ConfigFetchError is returned when FetchConfig exhausts its retries
// without a valid response, or when its wait between attempts is cancelled.
type ConfigFetchError struct {
	Message string
	Attempt int
}

func (e *ConfigFetchError) Error() string {
	return fmt.Sprintf("authboot: %s (attempt %d)", e.Message, e.Attempt)
}

// FetchOptions parameterizes FetchConfig.
type FetchOptions struct {
	URL        string
	MaxRetries int
	RetryDelay time.Duration
}

// FetchConfig resolves and retrieves the Supabase project config, retrying
// up to opts.MaxRetries times with a flat opts.RetryDelay between
// attempts (spec §4.5). It is pure with respect to external state: two
// successful calls with the same opts.URL return equivalent configs.
func FetchConfig(ctx context.Context, client *http.Client, opts FetchOptions) (*Config, error) {
	resolvedURL := opts.URL
	if resolvedURL == "" {
		resolvedURL = defaultConfigURL
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		cfg, err := fetchOnce(ctx, client, resolvedURL)
		if err == nil {
			return cfg, nil
		}
		lastErr = err

		if attempt == maxRetries {
			return nil, &ConfigFetchError{Message: lastErr.Error(), Attempt: attempt}
		}
		if sleepErr := backoff.SleepWithContext(ctx, retryDelay); sleepErr != nil {
			return nil, &ConfigFetchError{Message: sleepErr.Error(), Attempt: attempt}
		}
	}
	return nil, &ConfigFetchError{Message: lastErr.Error(), Attempt: maxRetries}
}

func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (*Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return validate(&cfg)
}

func validate(cfg *Config) (*Config, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("config url is empty")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("config url %q is not a valid http(s) url", cfg.URL)
	}
	if cfg.AnonKey == "" || !anonKeyPattern.MatchString(cfg.AnonKey) {
		return nil, fmt.Errorf("config anonKey does not match the expected format")
	}
	return cfg, nil
}

// Command llmcore-server wires the orchestration core's collaborators
// together from a config file and runs a smoke-test interaction. Full HTTP
// routing and channel adapters are out of scope for this core (spec §1);
// a real deployment embeds the packages under internal/ behind its own
// transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coredesk/llmcore/internal/authboot"
	"github.com/coredesk/llmcore/internal/cache"
	"github.com/coredesk/llmcore/internal/config"
	"github.com/coredesk/llmcore/internal/interaction"
	"github.com/coredesk/llmcore/internal/modelregistry"
	"github.com/coredesk/llmcore/internal/observability"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/internal/ratelimit"
	"github.com/coredesk/llmcore/internal/session"
	"github.com/coredesk/llmcore/internal/transport"
	"github.com/coredesk/llmcore/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "llmcore-server",
		Short:        "llmcore - LLM orchestration core wiring",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildValidateCmd())
	return rootCmd
}

func buildValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d provider(s), default=%s\n",
				len(cfg.LLM.Providers), cfg.LLM.DefaultProvider)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "llmcore.yaml", "Path to YAML configuration file")
	return cmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Wire the core together, expose /metrics, and run a smoke-test interaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "llmcore.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := slog.Default()

	providerSet, err := buildProviders(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	if err := bootstrapAuth(ctx, cfg, log); err != nil {
		return fmt.Errorf("bootstrap auth: %w", err)
	}

	store := cache.NewStore(cfg.Cache.TTL, cfg.Cache.MaxEntries, log)
	core := transport.NewCore(providerSet, store, ratelimit.NewManager(), log)

	reg := prometheus.NewRegistry()
	core.AttachMetrics(observability.NewMetrics(reg))

	if cfg.Observability.Tracing.Enabled {
		tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
			ServiceName:    cfg.Observability.Tracing.ServiceName,
			Endpoint:       cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SamplingRate,
			EnableInsecure: cfg.Observability.Tracing.Insecure,
		})
		core.AttachTracer(tracer)
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics listening", "addr", metricsAddr)
	}

	return runSmokeInteraction(ctx, core, cfg, log)
}

// bootstrapAuth resolves the Supabase project config (if a bootstrap URL
// is configured) and seeds the token registry with any static API keys
// from config. Neither step is required: a deployment with no HTTP
// surface of its own has nothing to authenticate, so an empty
// auth.api_keys list and an unset bootstrap URL are both valid.
func bootstrapAuth(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Auth.Bootstrap.URL != "" {
		sbCfg, err := authboot.FetchConfig(ctx, nil, authboot.FetchOptions{
			URL:        cfg.Auth.Bootstrap.URL,
			MaxRetries: cfg.Auth.Bootstrap.MaxRetries,
			RetryDelay: cfg.Auth.Bootstrap.RetryDelay,
		})
		if err != nil {
			return err
		}
		log.Info("supabase config resolved", "url", sbCfg.URL)
	}

	if len(cfg.Auth.APIKeys) == 0 {
		return nil
	}

	var clientFactory session.ClientFactory
	if cfg.Auth.Database.Host != "" {
		db := cfg.Auth.Database
		factory := authboot.NewSupabaseClientFactory(authboot.DBConfig{
			Host: db.Host, Port: db.Port, User: db.User, Password: db.Password,
			Database: db.Database, SSLMode: db.SSLMode,
			MaxOpenConns: db.MaxOpenConns, MaxIdleConns: db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime, ConnectTimeout: db.ConnectTimeout,
		}, log)
		clientFactory = &authboot.SessionClientAdapter{Factory: factory, Schema: db.Schema}
	}

	sessions := session.NewRegistry(clientFactory, log)
	tokens := session.NewTokenRegistry(sessions)
	for _, key := range cfg.Auth.APIKeys {
		if err := tokens.Seed(ctx, key.Token, models.User{ID: key.UserID, Email: key.Email}); err != nil {
			return fmt.Errorf("seed api key for user %q: %w", key.UserID, err)
		}
	}
	log.Info("seeded static api keys", "count", len(cfg.Auth.APIKeys))
	return nil
}

// runSmokeInteraction exercises the full request path (interaction ->
// transport -> provider -> accounting) against the configured default
// provider, the way a deployment's first request would, without requiring
// a network listener of its own.
func runSmokeInteraction(ctx context.Context, core *transport.Core, cfg *config.Config, log *slog.Logger) error {
	if cfg.LLM.DefaultProvider == "" {
		log.Info("no default provider configured, skipping smoke interaction")
		return nil
	}

	history := []models.Message{}
	ia, err := interaction.New(
		models.NewMessageID(), "cmd-smoke", "",
		interaction.KindChat, defaultModelFor(cfg), interaction.RoutingLocal,
		interaction.Callbacks{
			Messages:         func() []models.Message { return history },
			System:           func() string { return "You are the llmcore-server smoke test." },
			ProviderForModel: func(string) string { return cfg.LLM.DefaultProvider },
		},
		core, nil, log,
	)
	if err != nil {
		return fmt.Errorf("init smoke interaction: %w", err)
	}

	ia.AddUserContent(models.TextPart("ping"))
	resp, err := ia.Speak(ctx, modelregistry.ProviderPreferences{}, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("smoke interaction: %w", err)
	}
	log.Info("smoke interaction complete", "answer_len", len(resp.Answer))
	return nil
}

func defaultModelFor(cfg *config.Config) string {
	p, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	if !ok {
		return ""
	}
	return p.DefaultModel
}

// buildProviders constructs one providers.Provider per entry in
// cfg.LLM.Providers, keyed by its map key (spec §4.2's provider fleet).
func buildProviders(ctx context.Context, cfg *config.Config, log *slog.Logger) (map[string]providers.Provider, error) {
	out := make(map[string]providers.Provider, len(cfg.LLM.Providers))
	for name, pc := range cfg.LLM.Providers {
		p, err := buildOneProvider(ctx, name, pc, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		if p != nil {
			out[name] = p
		}
	}
	return out, nil
}

func buildOneProvider(ctx context.Context, name string, pc config.LLMProviderConfig, cfg *config.Config, log *slog.Logger) (providers.Provider, error) {
	timeout := 60 * time.Second
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
			RequestTimeout: timeout, Logger: log,
		})
	case "openai":
		return providers.NewOpenAIProvider(name, providers.OpenAIConfig{
			APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
			RequestTimeout: timeout, Logger: log,
		})
	case "google":
		return providers.NewGoogleProvider(ctx, providers.GoogleConfig{
			APIKey: pc.APIKey, DefaultModel: pc.DefaultModel,
			RequestTimeout: timeout, Logger: log,
		})
	case "bedrock":
		return providers.NewBedrockProvider(ctx, providers.BedrockConfig{
			Region: cfg.LLM.Bedrock.Region, DefaultModel: pc.DefaultModel,
			DefaultMaxTokens: cfg.LLM.Bedrock.DefaultMaxTokens,
			RequestTimeout:   orDefault(cfg.LLM.Bedrock.RequestTimeout, timeout),
			Logger:           log,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
			RequestTimeout: timeout, Logger: log,
		}), nil
	default:
		// Azure OpenAI, Groq, OpenRouter, and other OpenAI-shape vendors
		// reuse the OpenAI adapter with a different BaseURL/profile.
		if pc.BaseURL != "" {
			return providers.NewOpenAIProvider(name, providers.OpenAIConfig{
				APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
				RequestTimeout: timeout, Logger: log,
			})
		}
		log.Warn("unrecognized provider entry, skipping", "name", name)
		return nil, nil
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

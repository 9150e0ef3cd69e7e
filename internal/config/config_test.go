package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRaw_SimpleYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  metrics_port: 9090\nllm:\n  default_provider: anthropic\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	raw, err := LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		t.Fatalf("decodeRawConfig: %v", err)
	}
	if got, want := cfg.Server.MetricsPort, 9090; got != want {
		t.Fatalf("MetricsPort = %d, want %d", got, want)
	}
	if got, want := cfg.LLM.DefaultProvider, "anthropic"; got != want {
		t.Fatalf("DefaultProvider = %q, want %q", got, want)
	}
}

func TestLoadRaw_Include(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	childPath := filepath.Join(dir, "llm.yaml")

	if err := os.WriteFile(childPath, []byte("llm:\n  default_provider: openai\n"), 0o600); err != nil {
		t.Fatalf("write child: %v", err)
	}
	if err := os.WriteFile(basePath, []byte("$include: llm.yaml\nserver:\n  metrics_port: 9091\n"), 0o600); err != nil {
		t.Fatalf("write base: %v", err)
	}

	raw, err := LoadRaw(basePath)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		t.Fatalf("decodeRawConfig: %v", err)
	}
	if got, want := cfg.LLM.DefaultProvider, "openai"; got != want {
		t.Fatalf("DefaultProvider = %q, want %q", got, want)
	}
	if got, want := cfg.Server.MetricsPort, 9091; got != want {
		t.Fatalf("MetricsPort = %d, want %d", got, want)
	}
}

func TestLoadRaw_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")

	if err := os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if _, err := LoadRaw(aPath); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestLoadRaw_MissingPath(t *testing.T) {
	if _, err := LoadRaw(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoad_RejectsMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  default_provider: anthropic\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestLoad_AcceptsCurrentVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "version: 1\nserver:\n  metrics_port: 9090\nllm:\n  default_provider: anthropic\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty schema")
	}
}

package authboot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchConfig_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://project.supabase.co","anonKey":"abc123.def-456"}`))
	}))
	defer server.Close()

	cfg, err := FetchConfig(context.Background(), server.Client(), FetchOptions{URL: server.URL})
	if err != nil {
		t.Fatalf("FetchConfig: %v", err)
	}
	if cfg.URL != "https://project.supabase.co" {
		t.Errorf("URL = %q", cfg.URL)
	}
}

func TestFetchConfig_RetriesThenFails(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchConfig(context.Background(), server.Client(), FetchOptions{
		URL: server.URL, MaxRetries: 2, RetryDelay: time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	var fetchErr *ConfigFetchError
	if !asConfigFetchError(err, &fetchErr) {
		t.Fatalf("expected *ConfigFetchError, got %T", err)
	}
	if fetchErr.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", fetchErr.Attempt)
	}
}

func TestFetchConfig_RejectsInvalidAnonKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://project.supabase.co","anonKey":"has a space"}`))
	}))
	defer server.Close()

	_, err := FetchConfig(context.Background(), server.Client(), FetchOptions{
		URL: server.URL, MaxRetries: 1, RetryDelay: time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error for invalid anonKey")
	}
}

func asConfigFetchError(err error, target **ConfigFetchError) bool {
	if ce, ok := err.(*ConfigFetchError); ok {
		*target = ce
		return true
	}
	return false
}

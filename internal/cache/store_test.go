package cache

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestStore_SetGet_RoundTrip(t *testing.T) {
	s := NewStore(time.Minute, 0, nil)
	s.Set("k1", []byte("hello"))

	got, ok := s.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestStore_Get_MissForAbsentKey(t *testing.T) {
	s := NewStore(time.Minute, 0, nil)
	if _, ok := s.Get("nope"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestStore_Set_CompressesAboveThreshold(t *testing.T) {
	s := NewStore(time.Minute, 0, nil)
	large := bytes.Repeat([]byte("a"), gzipThreshold+1)
	s.Set("big", large)

	env, ok := s.ttl.Get("big")
	if !ok {
		t.Fatal("expected entry present")
	}
	if !env.Compressed {
		t.Error("expected entry to be compressed")
	}

	got, ok := s.Get("big")
	if !ok {
		t.Fatal("expected hit on decompress")
	}
	if !bytes.Equal(got, large) {
		t.Error("decompressed payload does not match original")
	}
}

func TestStore_Set_SkipsWhenStillTooLargeAfterCompression(t *testing.T) {
	s := NewStore(time.Minute, 0, nil)
	// Random-ish incompressible payload so gzip cannot shrink it under
	// kvHardLimit.
	incompressible := make([]byte, kvHardLimit+gzipThreshold)
	rand.New(rand.NewSource(17)).Read(incompressible)
	s.Set("toobig", incompressible)

	if _, ok := s.Get("toobig"); ok {
		t.Error("expected write to be skipped for an entry too large even compressed")
	}
}

func TestStore_Entry_ExpiresAfterTTL(t *testing.T) {
	s := NewStore(10*time.Millisecond, 0, nil)
	s.Set("ephemeral", []byte("x"))

	if _, ok := s.Get("ephemeral"); !ok {
		t.Fatal("expected hit immediately after set")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Get("ephemeral"); ok {
		t.Error("expected entry to have expired")
	}
}

func TestMessageRequestKey_DeterministicOnCanonicalJSON(t *testing.T) {
	type req struct {
		Model string `json:"model"`
	}
	canon1, err := CanonicalJSON(req{Model: "claude-3-5-sonnet-latest"})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	canon2, err := CanonicalJSON(req{Model: "claude-3-5-sonnet-latest"})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	k1 := MessageRequestKey("anthropic", canon1)
	k2 := MessageRequestKey("anthropic", canon2)
	if k1 != k2 {
		t.Errorf("expected identical keys for identical canonical bodies, got %q vs %q", k1, k2)
	}
	if !strings.HasPrefix(k1, "messageRequest:anthropic:") {
		t.Errorf("key %q missing expected prefix", k1)
	}
}

func TestMessageRequestKey_DiffersByProvider(t *testing.T) {
	canon, _ := CanonicalJSON(map[string]string{"model": "x"})
	if MessageRequestKey("anthropic", canon) == MessageRequestKey("openai", canon) {
		t.Error("expected different keys for different providers with the same body")
	}
}

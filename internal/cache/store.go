package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// gzipThreshold is the serialized-envelope size above which Set attempts
// gzip compression (spec §4.3 "Cache write").
const gzipThreshold = 30 * 1024

// kvHardLimit is the approximate backing KV size limit. An envelope whose
// gzipped form still exceeds it is dropped rather than written (spec §4.3,
// §9 "do not compress by default (hot path)").
const kvHardLimit = 65 * 1024

// envelope is the discriminated wire format stored under each key (spec
// §9 "store compression as a discriminated envelope").
type envelope struct {
	Compressed bool   `json:"compressed"`
	Data       []byte `json:"data"`
}

// Store is the string-keyed, TTL'd, opportunistically-gzipped cache the
// transport core uses for message-response caching. Reads and writes are
// concurrency-safe; writes are last-write-wins per key (spec §5).
type Store struct {
	ttl   *TTLCache[string, envelope]
	ttlOf time.Duration
	log   *slog.Logger

	// OnWriteSkipped, if set, is called whenever a write is skipped for
	// exceeding kvHardLimit even after compression. Used to feed the
	// transport core's CacheWriteSkipped counter without this package
	// depending on observability directly.
	OnWriteSkipped func()
}

// NewStore constructs a Store. ttl is the default entry lifetime and
// maxEntries bounds the number of distinct keys held (0 = unlimited).
func NewStore(ttl time.Duration, maxEntries int, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		ttl:   NewTTLCache[string, envelope](Config{DefaultTTL: ttl, MaxSize: maxEntries}),
		ttlOf: ttl,
		log:   log,
	}
}

// MessageRequestKey builds the cache key for a provider message request,
// per spec §4.3: ["messageRequest", provider, md5(canonical-json(request))].
// canonicalJSON must already be the canonical JSON encoding of the
// request; identical canonical bytes always yield the same key, so a
// cache hit followed by a miss for the same request body is impossible.
func MessageRequestKey(provider string, canonicalJSON []byte) string {
	sum := md5.Sum(canonicalJSON)
	return fmt.Sprintf("messageRequest:%s:%s", provider, hex.EncodeToString(sum[:]))
}

// Get returns the raw (decompressed) payload stored under key, and
// whether it was found and not expired.
func (s *Store) Get(key string) ([]byte, bool) {
	env, ok := s.ttl.Get(key)
	if !ok {
		return nil, false
	}
	if !env.Compressed {
		return env.Data, true
	}
	raw, err := gunzip(env.Data)
	if err != nil {
		s.log.Warn("cache: failed to decompress entry, treating as miss", "key", key, "error", err)
		s.ttl.Delete(key)
		return nil, false
	}
	return raw, true
}

// Set stores payload under key using the store's default TTL. If the
// serialized payload exceeds gzipThreshold it is gzip-compressed; if the
// compressed form still exceeds kvHardLimit the write is skipped and a
// warning is logged rather than exceeding the backing KV's size limit
// (spec §4.3 "Cache write").
func (s *Store) Set(key string, payload []byte) {
	s.SetWithTTL(key, payload, s.ttlOf)
}

// SetWithTTL is Set with an explicit TTL override.
func (s *Store) SetWithTTL(key string, payload []byte, ttl time.Duration) {
	if len(payload) <= gzipThreshold {
		s.ttl.SetWithTTL(key, envelope{Compressed: false, Data: payload}, ttl)
		return
	}

	compressed, err := gzipBytes(payload)
	if err != nil {
		s.log.Warn("cache: failed to compress large entry, skipping write", "key", key, "size", len(payload), "error", err)
		return
	}
	if len(compressed) > kvHardLimit {
		s.log.Warn("cache: entry exceeds size limit even compressed, skipping write",
			"key", key, "raw_size", len(payload), "compressed_size", len(compressed))
		if s.OnWriteSkipped != nil {
			s.OnWriteSkipped()
		}
		return
	}
	s.ttl.SetWithTTL(key, envelope{Compressed: true, Data: compressed}, ttl)
}

// Delete removes key unconditionally.
func (s *Store) Delete(key string) {
	s.ttl.Delete(key)
}

// Cleanup sweeps expired entries and returns the count removed.
func (s *Store) Cleanup() int {
	return s.ttl.Cleanup()
}

// Stats returns hit/miss/eviction counters for observability.
func (s *Store) Stats() Stats {
	return s.ttl.Stats()
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// CanonicalJSON returns the deterministic JSON encoding of v used to
// build MessageRequestKey. encoding/json already sorts map keys and
// emits struct fields in declaration order, which is sufficient
// determinism for the request shapes the transport core serializes.
func CanonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

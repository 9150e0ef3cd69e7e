// Package ratelimit keeps the last-observed rate-limit snapshot per
// provider for observability. It is bookkeeping only: nothing in this
// core admission-controls requests against it (spec §4.3).
package ratelimit

import (
	"sync"

	"github.com/coredesk/llmcore/pkg/models"
)

// Manager tracks the most recently observed models.RateLimit per
// provider. Writes are last-write-wins; there is no ordering guarantee
// across concurrent responses for the same provider beyond "last call to
// Record wins" (spec §5).
type Manager struct {
	mu    sync.RWMutex
	byKey map[string]models.RateLimit
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{byKey: make(map[string]models.RateLimit)}
}

// Record stores limit as the latest snapshot for provider. A snapshot
// with Known=false still overwrites a prior Known=true snapshot — the
// manager reflects "what did we last see", not "the best we've seen".
func (m *Manager) Record(provider string, limit models.RateLimit) {
	m.mu.Lock()
	m.byKey[provider] = limit
	m.mu.Unlock()
}

// Snapshot returns the last-recorded rate limit for provider. The second
// return value is false if Record has never been called for it, in which
// case the returned RateLimit is the zero value (Known=false).
func (m *Manager) Snapshot(provider string) (models.RateLimit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit, ok := m.byKey[provider]
	return limit, ok
}

// All returns a copy of every recorded provider -> snapshot pair.
func (m *Manager) All() map[string]models.RateLimit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.RateLimit, len(m.byKey))
	for k, v := range m.byKey {
		out[k] = v
	}
	return out
}

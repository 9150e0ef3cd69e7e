// Package session implements the session and API-token registry (spec
// §4.4): idempotent per-user session lifecycle, token issuance/validation,
// and the explicit-context-passing discipline the transport core relies
// on for any state-mutating call.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coredesk/llmcore/pkg/models"
)

// ClientFactory builds whatever per-user collaborators a session needs
// once it is registered — e.g. the schema-scoped clients described in
// spec §4.5. Registered sessions hold onto what the factory returns and
// tear it down on RemoveSession/Shutdown.
type ClientFactory interface {
	Build(ctx context.Context, session *models.UserAuthSession) (client Closer, err error)
}

// Closer is the minimal lifecycle a per-user client must expose so the
// registry can tear it down on RemoveSession/Shutdown.
type Closer interface {
	Close() error
}

// Registry tracks one UserAuthSession per user and the per-user clients a
// ClientFactory constructed for it. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	factory  ClientFactory
	log      *slog.Logger
}

type entry struct {
	session *models.UserAuthSession
	client  Closer
}

// NewRegistry constructs an empty Registry. factory may be nil, in which
// case RegisterSession skips per-user client construction.
func NewRegistry(factory ClientFactory, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{sessions: map[string]*entry{}, factory: factory, log: log}
}

// RegisterSession idempotently creates a UserAuthSession bound to userID.
// A second call for the same user returns the existing session unchanged.
func (r *Registry) RegisterSession(ctx context.Context, user models.User, accessToken, refreshToken string) (*models.UserAuthSession, error) {
	r.mu.Lock()
	if existing, ok := r.sessions[user.ID]; ok {
		r.mu.Unlock()
		return existing.session, nil
	}
	r.mu.Unlock()

	sess := &models.UserAuthSession{User: user, AccessToken: accessToken, RefreshToken: refreshToken}
	ent := &entry{session: sess}

	if r.factory != nil {
		client, err := r.factory.Build(ctx, sess)
		if err != nil {
			return nil, err
		}
		ent.client = client
	}

	r.mu.Lock()
	if existing, ok := r.sessions[user.ID]; ok {
		r.mu.Unlock()
		if ent.client != nil {
			_ = ent.client.Close()
		}
		return existing.session, nil
	}
	r.sessions[user.ID] = ent
	r.mu.Unlock()

	return sess, nil
}

// RemoveSession clears the session for userID and closes its per-user
// client, if any. It is a no-op if no session is registered.
func (r *Registry) RemoveSession(userID string) {
	r.mu.Lock()
	ent, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if ok && ent.client != nil {
		if err := ent.client.Close(); err != nil {
			r.log.Warn("session: close failed", "user_id", userID, "error", err)
		}
	}
}

// Session returns the registered session for userID, if any.
func (r *Registry) Session(userID string) (*models.UserAuthSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return ent.session, true
}

// Shutdown destroys every registered session concurrently. Individual
// close failures are logged but never stop the rest of shutdown from
// proceeding (spec §4.4).
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make(map[string]*entry, len(r.sessions))
	for k, v := range r.sessions {
		entries[k] = v
	}
	r.sessions = map[string]*entry{}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for userID, ent := range entries {
		if ent.client == nil {
			continue
		}
		wg.Add(1)
		go func(userID string, client Closer) {
			defer wg.Done()
			if err := client.Close(); err != nil {
				r.log.Warn("session: shutdown close failed", "user_id", userID, "error", err)
			}
		}(userID, ent.client)
	}
	wg.Wait()
}

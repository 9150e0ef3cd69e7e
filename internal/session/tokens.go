package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

const tokenPrefix = "bb_"

// DefaultScopes is used by Generate when the caller supplies none.
var DefaultScopes = map[string]bool{"default": true}

// TokenRegistry issues, validates, and revokes API tokens (spec §4.4). It
// requires an active session before a token can be generated or validated
// for a user. All token maps are guarded by a single RWMutex; lookups are
// not striped.
type TokenRegistry struct {
	sessions *Registry

	mu         sync.RWMutex
	byTokenID  map[string]*tokenEntry
	byUser     map[string]map[string]struct{}
	literal    map[string]string // raw token string -> user id, for Seed
}

type tokenEntry struct {
	token  *models.ApiToken
	secret string
}

// NewTokenRegistry constructs a TokenRegistry backed by sessions: a token
// can only be generated or validated for a user with a live session.
func NewTokenRegistry(sessions *Registry) *TokenRegistry {
	return &TokenRegistry{
		sessions:  sessions,
		byTokenID: map[string]*tokenEntry{},
		byUser:    map[string]map[string]struct{}{},
		literal:   map[string]string{},
	}
}

// Seed registers a session for user and binds a static, pre-issued token
// string to it (config's auth.api_keys, spec §4.4/§4.5 service-account
// case). Unlike Generate, the caller supplies the token verbatim rather
// than receiving a minted bb_-prefixed one; Validate checks seeded tokens
// before falling back to the generated-token scheme.
func (tr *TokenRegistry) Seed(ctx context.Context, token string, user models.User) error {
	if strings.TrimSpace(token) == "" {
		return llmerr.New(llmerr.KindAuthNotInitialized, "session: seed token must not be empty")
	}
	if _, err := tr.sessions.RegisterSession(ctx, user, token, ""); err != nil {
		return err
	}
	tr.mu.Lock()
	tr.literal[token] = user.ID
	tr.mu.Unlock()
	return nil
}

// Generate issues a new token for userID, requiring an active session.
// The returned string has the form bb_{tokenId}_{secret}. The secret is
// kept in memory as plaintext and is neither salted nor hashed. A nonzero
// ttl sets the expiry to now+ttl (a negative ttl yields a token that is
// already expired); a zero ttl means the token does not expire.
func (tr *TokenRegistry) Generate(userID string, scopes map[string]bool, ttl time.Duration, metadata map[string]any) (string, *models.ApiToken, error) {
	if _, ok := tr.sessions.Session(userID); !ok {
		return "", nil, llmerr.New(llmerr.KindAuthNoSession, "session: generate requires an active session for "+userID)
	}
	if scopes == nil {
		scopes = DefaultScopes
	}

	tokenID := uuid.NewString()
	secret := uuid.NewString()

	record := &models.ApiToken{
		UserID:    userID,
		TokenID:   tokenID,
		Secret:    secret,
		Scopes:    scopes,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if ttl != 0 {
		expiry := record.CreatedAt.Add(ttl)
		record.ExpiresAt = &expiry
	}

	tr.mu.Lock()
	tr.byTokenID[tokenID] = &tokenEntry{token: record, secret: secret}
	if tr.byUser[userID] == nil {
		tr.byUser[userID] = map[string]struct{}{}
	}
	tr.byUser[userID][tokenID] = struct{}{}
	tr.mu.Unlock()

	return fmt.Sprintf("%s%s_%s", tokenPrefix, tokenID, secret), record, nil
}

// Validate checks token, purging it if expired, and returns a UserContext
// scoped to the token's user. The associated session must still be live.
func (tr *TokenRegistry) Validate(token string) (*models.UserContext, error) {
	tr.mu.RLock()
	userID, seeded := tr.literal[token]
	tr.mu.RUnlock()
	if seeded {
		sess, ok := tr.sessions.Session(userID)
		if !ok {
			return nil, llmerr.New(llmerr.KindAuthNoSession, "session: no live session for seeded token user")
		}
		return &models.UserContext{UserID: userID, User: sess.User, Session: sess}, nil
	}

	if !strings.HasPrefix(token, tokenPrefix) {
		return nil, llmerr.New(llmerr.KindAuthNotInitialized, "session: token does not have the expected prefix")
	}
	rest := strings.TrimPrefix(token, tokenPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return nil, llmerr.New(llmerr.KindAuthNotInitialized, "session: malformed token")
	}
	tokenID, secret := parts[0], parts[1]

	tr.mu.RLock()
	ent, ok := tr.byTokenID[tokenID]
	tr.mu.RUnlock()
	if !ok {
		return nil, llmerr.New(llmerr.KindAuthNotInitialized, "session: unknown token")
	}
	if subtle.ConstantTimeCompare([]byte(ent.secret), []byte(secret)) != 1 {
		return nil, llmerr.New(llmerr.KindAuthNotInitialized, "session: token secret mismatch")
	}
	if ent.token.Expired(time.Now()) {
		tr.revokeLocked(ent.token.UserID, tokenID)
		return nil, llmerr.New(llmerr.KindAuthNotInitialized, "session: token expired")
	}

	sess, ok := tr.sessions.Session(ent.token.UserID)
	if !ok {
		return nil, llmerr.New(llmerr.KindAuthNoSession, "session: no live session for token user")
	}

	return &models.UserContext{UserID: ent.token.UserID, User: sess.User, Session: sess}, nil
}

// Revoke invalidates a single token string.
func (tr *TokenRegistry) Revoke(token string) error {
	rest := strings.TrimPrefix(token, tokenPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return llmerr.New(llmerr.KindAuthNotInitialized, "session: malformed token")
	}
	tokenID := parts[0]

	tr.mu.Lock()
	defer tr.mu.Unlock()
	ent, ok := tr.byTokenID[tokenID]
	if !ok {
		return nil
	}
	tr.revokeLocked(ent.token.UserID, tokenID)
	return nil
}

// RevokeAllFor invalidates every token issued to userID.
func (tr *TokenRegistry) RevokeAllFor(userID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for tokenID := range tr.byUser[userID] {
		tr.revokeLocked(userID, tokenID)
	}
}

// Cleanup scans for and purges expired tokens, returning the count removed.
func (tr *TokenRegistry) Cleanup() int {
	now := time.Now()
	tr.mu.Lock()
	defer tr.mu.Unlock()

	removed := 0
	for tokenID, ent := range tr.byTokenID {
		if ent.token.Expired(now) {
			tr.revokeLocked(ent.token.UserID, tokenID)
			removed++
		}
	}
	return removed
}

// revokeLocked removes a token's bookkeeping. Callers must hold tr.mu.
func (tr *TokenRegistry) revokeLocked(userID, tokenID string) {
	delete(tr.byTokenID, tokenID)
	if users := tr.byUser[userID]; users != nil {
		delete(users, tokenID)
		if len(users) == 0 {
			delete(tr.byUser, userID)
		}
	}
}

package models

import "time"

// User identifies an authenticated principal.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserAuthSession is the Supabase-backed auth session bound to a user
// (spec §3, §4.4). Sessions are created idempotently by RegisterSession
// and torn down by RemoveSession.
type UserAuthSession struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session's access token has passed its
// expiry at the given instant.
func (s *UserAuthSession) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}

// UserContext is the explicit, request-scoped handle passed down the
// stack into any code path that mutates session state (spec §4.4, §9).
// A process-wide "current context" pointer exists only as a read-only
// convenience for leaf-level access; mutation always takes an explicit
// UserContext parameter.
type UserContext struct {
	UserID  string
	User    User
	Session *UserAuthSession

	ProjectID      string
	CollaborationID string
	InteractionID  string
}

// ApiToken is an issued API token record (spec §3, §4.4). The token
// string format is bb_{tokenId}_{secret}; TokenID is the uuid embedded in
// that string, used as the table key.
type ApiToken struct {
	UserID    string         `json:"user_id"`
	TokenID   string         `json:"token_id"`
	Secret    string         `json:"-"`
	Scopes    map[string]bool `json:"scopes,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Expired reports whether the token has passed its expiry at the given
// instant. A token with a nil ExpiresAt never expires.
func (t *ApiToken) Expired(now time.Time) bool {
	if t == nil || t.ExpiresAt == nil {
		return false
	}
	return now.After(*t.ExpiresAt)
}

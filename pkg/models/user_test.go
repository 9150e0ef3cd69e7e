package models

import (
	"testing"
	"time"
)

func TestUserAuthSession_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		s    *UserAuthSession
		want bool
	}{
		{"nil session", nil, false},
		{"zero expiry", &UserAuthSession{}, false},
		{"not yet expired", &UserAuthSession{ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", &UserAuthSession{ExpiresAt: now.Add(-time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApiToken_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name string
		tok  *ApiToken
		want bool
	}{
		{"nil token", nil, false},
		{"no expiry", &ApiToken{}, false},
		{"future expiry", &ApiToken{ExpiresAt: &future}, false},
		{"past expiry", &ApiToken{ExpiresAt: &past}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

package sessions

import "time"

// Session holds the per-user login state: the provider-issued bearer
// credentials, their expiry bookkeeping and the identity claims resolved at
// login. The CSRF state is kept here between /login and the redirect.
type Session struct {
	ID                   string                 `json:"id"`
	State                string                 `json:"state,omitempty"`
	AccessToken          string                 `json:"accessToken,omitempty"`
	AccessTokenExpiresAt time.Time              `json:"accessTokenExpiresAt,omitempty"`
	RefreshToken         string                 `json:"refreshToken,omitempty"`
	Claims               map[string]interface{} `json:"claims,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	ExpiresAt            time.Time              `json:"expiresAt"`
}

// TokenSnapshot is an immutable copy of the session's token material, taken
// when a deferred job is scheduled. Keeping the refresh token in the snapshot
// lets a job whose access token expired before fire time mint a fresh one.
type TokenSnapshot struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string
}

// Snapshot captures the current token material of the session.
func (s *Session) Snapshot() TokenSnapshot {
	return TokenSnapshot{
		AccessToken:  s.AccessToken,
		ExpiresAt:    s.AccessTokenExpiresAt,
		RefreshToken: s.RefreshToken,
	}
}

// UserPrincipal returns a display label for the logged-in user, used to tag
// uploads. Claims are labels only, never authorization input.
func (s *Session) UserPrincipal() string {
	for _, k := range []string{"preferred_username", "upn", "oid"} {
		if v, ok := s.Claims[k].(string); ok && v != "" {
			return v
		}
	}
	return "anonymous"
}

package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/pkg/logger"
)

// ErrAuthRequired is returned when no valid access token exists and none can
// be minted from a refresh token. Callers translate it into HTTP 401.
var ErrAuthRequired = errors.New("authentication required")

// Refresher exchanges a refresh token for a new access token. One round trip,
// no retries.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error)
}

// Manager owns the access-token lifecycle for sessions and deferred-job
// snapshots.
type Manager struct {
	sessions  *sessions.Service
	refresher Refresher
}

func NewManager(s *sessions.Service, r Refresher) *Manager {
	return &Manager{sessions: s, refresher: r}
}

// ValidAccessToken returns the session's access token, refreshing it first
// when expired. A refresh failure does not clear the refresh token: the
// exchange may be transiently unavailable and the next request can retry.
// At most one network round trip per call.
func (m *Manager) ValidAccessToken(ctx context.Context, sess *sessions.Session) (string, error) {
	if sess.AccessToken != "" && time.Now().UTC().Before(sess.AccessTokenExpiresAt) {
		return sess.AccessToken, nil
	}
	if sess.RefreshToken == "" {
		return "", ErrAuthRequired
	}
	access, exp, err := m.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		logger.Warnf("token refresh failed for session %s: %v", sess.ID, err)
		return "", ErrAuthRequired
	}
	sess.AccessToken = access
	sess.AccessTokenExpiresAt = exp
	if err := m.sessions.Save(ctx, sess); err != nil {
		return "", err
	}
	return access, nil
}

// SnapshotToken resolves a usable access token from a deferred-job snapshot.
// An expired snapshot is refreshed once via its captured refresh token; a
// stale token without one is returned as-is and left for the upstream API to
// reject.
func (m *Manager) SnapshotToken(ctx context.Context, snap sessions.TokenSnapshot) (string, error) {
	if snap.AccessToken != "" && time.Now().UTC().Before(snap.ExpiresAt) {
		return snap.AccessToken, nil
	}
	if snap.RefreshToken == "" {
		if snap.AccessToken != "" {
			return snap.AccessToken, nil
		}
		return "", ErrAuthRequired
	}
	access, _, err := m.refresher.Refresh(ctx, snap.RefreshToken)
	if err != nil {
		return "", err
	}
	return access, nil
}

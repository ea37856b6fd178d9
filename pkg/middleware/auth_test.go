package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/internal/tokens"
)

type fakeRefresher struct {
	calls  int
	access string
	exp    time.Time
	err    error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.access, f.exp, nil
}

func newAuthTestRouter(t *testing.T, ref tokens.Refresher) (*gin.Engine, *sessions.Service) {
	t.Helper()
	svc := sessions.NewService(sessions.NewMemoryRepository(), time.Hour)
	mgr := tokens.NewManager(svc, ref)

	r := gin.New()
	r.GET("/protected", RequireSession("sid", svc, mgr), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": TokenFrom(c), "user": SessionFrom(c).UserPrincipal()})
	})
	return r, svc
}

func TestRequireSession_NoCookie(t *testing.T) {
	r, _ := newAuthTestRouter(t, &fakeRefresher{})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "please login via /login")
}

func TestRequireSession_UnknownSession(t *testing.T) {
	r, _ := newAuthTestRouter(t, &fakeRefresher{})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "does-not-exist"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_ValidTokenInContext(t *testing.T) {
	ref := &fakeRefresher{}
	r, svc := newAuthTestRouter(t, ref)

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.AccessToken = "live"
	sess.AccessTokenExpiresAt = time.Now().UTC().Add(time.Hour)
	sess.Claims = map[string]interface{}{"preferred_username": "alice@example.com"}
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token":"live"`)
	require.Contains(t, w.Body.String(), "alice@example.com")
	require.Equal(t, 0, ref.calls)
}

func TestRequireSession_RefreshesExpiredToken(t *testing.T) {
	ref := &fakeRefresher{access: "minted", exp: time.Now().UTC().Add(time.Hour)}
	r, svc := newAuthTestRouter(t, ref)

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.AccessToken = "stale"
	sess.AccessTokenExpiresAt = time.Now().UTC().Add(-time.Minute)
	sess.RefreshToken = "rt"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token":"minted"`)
	require.Equal(t, 1, ref.calls)
}

func TestRequireSession_RefreshFailureIs401(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("exchange down")}
	r, svc := newAuthTestRouter(t, ref)

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.AccessToken = "stale"
	sess.AccessTokenExpiresAt = time.Now().UTC().Add(-time.Minute)
	sess.RefreshToken = "rt"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailbridge/mailbridge/internal/config"
	"github.com/mailbridge/mailbridge/internal/graph"
	"github.com/mailbridge/mailbridge/internal/msauth"
	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/internal/tokens"
	"github.com/mailbridge/mailbridge/pkg/middleware"
)

// fake refresher shared by the handler tests
type fakeRefresher struct {
	calls  int
	access string
	exp    time.Time
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	f.calls++
	return f.access, f.exp, nil
}

func testConfig(authority string) *config.Config {
	cfg := &config.Config{}
	cfg.Azure = config.AzureConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		TenantID:     "common",
		Authority:    authority,
		RedirectPath: "/auth/redirect",
		RedirectURI:  "http://localhost:5000/auth/redirect",
		Scopes:       []string{"User.Read", "Mail.Send", "offline_access"},
	}
	cfg.Session = config.SessionConfig{CookieName: "sid", TTL: time.Hour}
	return cfg
}

func newSessionService() *sessions.Service {
	return sessions.NewService(sessions.NewMemoryRepository(), time.Hour)
}

// authedSession stores a session holding a live access token.
func authedSession(t *testing.T, svc *sessions.Service, token string) *sessions.Session {
	t.Helper()
	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.AccessToken = token
	sess.AccessTokenExpiresAt = time.Now().UTC().Add(time.Hour)
	sess.Claims = map[string]interface{}{"preferred_username": "alice@example.com"}
	require.NoError(t, svc.Save(context.Background(), sess))
	return sess
}

func unsignedJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	hdr, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	body, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func newAuthRouter(cfg *config.Config, svc *sessions.Service, g *graph.Client) *gin.Engine {
	oauth := msauth.NewClient(&cfg.Azure, nil)
	mgr := tokens.NewManager(svc, &fakeRefresher{})
	requireAuth := middleware.RequireSession(cfg.Session.CookieName, svc, mgr)

	r := gin.New()
	NewAuthHandler(cfg, oauth, svc, g).Register(r, requireAuth)
	return r
}

func TestLogin_CreatesSessionWithState(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	req := httptest.NewRequest("GET", "/login", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)

	// cookie carries the new session id
	var sid string
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" {
			sid = c.Value
		}
	}
	require.NotEmpty(t, sid, "session cookie not set")

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "select_account", loc.Query().Get("prompt"))

	// the state in the redirect matches the stored session
	sess, err := svc.Get(context.Background(), sid)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, state, sess.State)
}

func TestRedirect_RejectsMutatedState(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.State = "good-state"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/auth/redirect?state=evil-state&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid state")
}

func TestRedirect_RejectsMissingSessionOrState(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	// no cookie at all
	req := httptest.NewRequest("GET", "/auth/redirect?state=s&code=abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// session without a pending state
	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	req2 := httptest.NewRequest("GET", "/auth/redirect?state=&code=abc", nil)
	req2.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestRedirect_MissingCode(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.State = "good-state"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/auth/redirect?state=good-state", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing code")
}

func TestRedirect_SuccessPopulatesSession(t *testing.T) {
	idToken := unsignedJWT(t, map[string]interface{}{"preferred_username": "alice@example.com"})
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at",
			"refresh_token": "rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"id_token":      idToken,
		})
	}))
	defer tokenSrv.Close()

	cfg := testConfig(tokenSrv.URL)
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.State = "good-state"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/auth/redirect?state=good-state&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/me", w.Header().Get("Location"))

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "at", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.Equal(t, "alice@example.com", got.Claims["preferred_username"])
	assert.Empty(t, got.State, "state must be single-use")
	assert.True(t, got.AccessTokenExpiresAt.After(time.Now().UTC().Add(30*time.Minute)))
}

func TestRedirect_ExchangeFailure(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenSrv.Close()

	cfg := testConfig(tokenSrv.URL)
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	sess, err := svc.Create(context.Background())
	require.NoError(t, err)
	sess.State = "good-state"
	require.NoError(t, svc.Save(context.Background(), sess))

	req := httptest.NewRequest("GET", "/auth/redirect?state=good-state&code=bad", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "auth error")
}

func TestLogout_DestroysSession(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	sess := authedSession(t, svc, "at")

	req := httptest.NewRequest("GET", "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Nil(t, got, "session must be deleted")
}

func TestMe_ProxiesProfile(t *testing.T) {
	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"displayName": "Alice"})
	}))
	defer graphSrv.Close()

	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient(graphSrv.URL, time.Second))

	sess := authedSession(t, svc, "at")

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sess.ID})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Alice")
}

func TestMe_Unauthenticated(t *testing.T) {
	cfg := testConfig("https://issuer.example.com/t")
	svc := newSessionService()
	r := newAuthRouter(cfg, svc, graph.NewClient("http://unused", time.Second))

	req := httptest.NewRequest("GET", "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "please login via /login")
}

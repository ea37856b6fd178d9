package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailbridge/mailbridge/internal/config"
	"github.com/mailbridge/mailbridge/internal/graph"
	"github.com/mailbridge/mailbridge/internal/msauth"
	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/pkg/logger"
	"github.com/mailbridge/mailbridge/pkg/middleware"
)

// AuthHandler owns the browser-facing login flow: the redirect to the
// identity provider, the callback that exchanges the code, logout and the
// profile proxy.
type AuthHandler struct {
	cfg      *config.Config
	oauth    *msauth.Client
	sessions *sessions.Service
	graph    *graph.Client
}

func NewAuthHandler(cfg *config.Config, oauth *msauth.Client, s *sessions.Service, g *graph.Client) *AuthHandler {
	return &AuthHandler{cfg: cfg, oauth: oauth, sessions: s, graph: g}
}

// Register wires the auth routes. The callback path is configurable because
// it must match the provider app registration.
func (h *AuthHandler) Register(r *gin.Engine, requireAuth gin.HandlerFunc) {
	r.GET("/login", h.Login)
	r.GET(h.cfg.Azure.RedirectPath, h.Redirect)
	r.GET("/logout", h.Logout)
	r.GET("/me", requireAuth, h.Me)
}

// Login creates a session carrying a fresh anti-forgery state value and
// redirects the browser to the provider's authorization endpoint.
func (h *AuthHandler) Login(c *gin.Context) {
	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	sess.State = uuid.NewString()
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store session"})
		return
	}
	h.setSessionCookie(c, sess.ID, int(h.cfg.Session.TTL.Seconds()))
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(sess.State))
}

// Redirect is the authorization-code callback. The state check is a hard
// invariant: any mismatch aborts before a single network call is made.
func (h *AuthHandler) Redirect(c *gin.Context) {
	id, _ := c.Cookie(h.cfg.Session.CookieName)
	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	state := c.Query("state")
	if sess == nil || state == "" || state != sess.State {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	ts, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		logger.Errorf("authorization code exchange failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "auth error", "details": err.Error()})
		return
	}

	// state is single-use
	sess.State = ""
	sess.AccessToken = ts.AccessToken
	sess.AccessTokenExpiresAt = ts.ExpiresAt
	sess.RefreshToken = ts.RefreshToken
	sess.Claims = ts.Claims
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store session"})
		return
	}
	c.Redirect(http.StatusFound, "/me")
}

// Logout destroys the session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if id, err := c.Cookie(h.cfg.Session.CookieName); err == nil && id != "" {
		if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
			logger.Warnf("failed to delete session %s: %v", id, err)
		}
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me proxies the identity provider's profile endpoint for the logged-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	token := middleware.TokenFrom(c)
	profile, err := h.graph.Me(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "graph error", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(h.cfg.Session.CookieName, value, maxAge, "/", "", false, true)
}

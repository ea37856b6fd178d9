package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/internal/tokens"
)

// Context keys populated by RequireSession.
const (
	SessionKey = "session"
	TokenKey   = "token"
)

// RequireSession is the auth gate: it resolves the session cookie and a valid
// access token, refreshing once when expired. Requests that cannot produce a
// token are aborted with 401 and a login hint. No additional policy lives
// here.
func RequireSession(cookieName string, svc *sessions.Service, mgr *tokens.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err != nil || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized, please login via /login"})
			return
		}
		sess, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized, please login via /login"})
			return
		}
		token, err := mgr.ValidAccessToken(c.Request.Context(), sess)
		if err != nil {
			if errors.Is(err, tokens.ErrAuthRequired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized, please login via /login"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token resolution failed"})
			return
		}
		c.Set(SessionKey, sess)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession, or nil.
func SessionFrom(c *gin.Context) *sessions.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok2 := v.(*sessions.Session); ok2 {
			return s
		}
	}
	return nil
}

// TokenFrom returns the access token stored by RequireSession, or "".
func TokenFrom(c *gin.Context) string {
	if v, ok := c.Get(TokenKey); ok {
		if t, ok2 := v.(string); ok2 {
			return t
		}
	}
	return ""
}

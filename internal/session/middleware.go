package session

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// contextKey is the gin context key holding the request's session.
const contextKey = "mm_session"

// Middleware loads the client's session from the cookie into the gin
// context, creating a fresh one when absent or unreadable. Handlers that
// mutate the session must call Save before writing the response body.
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(store.CookieName())
		sess := store.Load(token)
		if sess == nil {
			sess = store.New()
		}
		c.Set(contextKey, sess)
		c.Next()
	}
}

// FromContext returns the request's session. Always non-nil under Middleware.
func FromContext(c *gin.Context) *Session {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}

// Save commits the session and attaches the cookie to the response.
// Call after the last Set for the request and before any body write.
// A no-op for sessions that were never mutated.
func Save(c *gin.Context, store *Store, logger *zap.Logger) {
	sess := FromContext(c)
	if sess == nil || !sess.Dirty() {
		return
	}
	token, err := store.Commit(sess)
	if err != nil {
		if logger != nil {
			logger.Warn("session commit failed", zap.Error(err))
		}
		return
	}
	c.SetSameSite(store.sameSite)
	ck := store.Cookie(token)
	c.SetCookie(ck.Name, ck.Value, ck.MaxAge, ck.Path, "", ck.Secure, ck.HttpOnly)
}

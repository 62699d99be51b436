package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(store *Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(store))
	r.GET("/set", func(c *gin.Context) {
		sess := FromContext(c)
		sess.Set("code", c.Query("code"))
		Save(c, store, zap.NewNop())
		c.String(http.StatusOK, "ok")
	})
	r.GET("/get", func(c *gin.Context) {
		sess := FromContext(c)
		v, _ := sess.Get("code")
		c.String(http.StatusOK, v)
	})
	return r
}

func TestMiddlewareRoundtrip(t *testing.T) {
	store := newTestStore(time.Hour)
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/set?code=a1b2c3d4", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, store.CookieName(), ck.Name)
	assert.True(t, ck.HttpOnly)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(ck)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a1b2c3d4", w.Body.String())
}

func TestMiddlewareBadCookieYieldsFreshSession(t *testing.T) {
	store := newTestStore(time.Hour)
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(&http.Cookie{Name: store.CookieName(), Value: "tampered.token.value"})
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestSaveSkipsCleanSessions(t *testing.T) {
	store := newTestStore(time.Hour)
	router := newTestRouter(store)

	// A read-only request must not emit a Set-Cookie header.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Result().Cookies())
}

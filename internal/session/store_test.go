package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration) *Store {
	return NewStore("test-secret", "mm_session", ttl, true, "lax")
}

func TestCommitLoadRoundtrip(t *testing.T) {
	store := newTestStore(time.Hour)

	sess := store.New()
	sess.Set("affiliate_code", "a1b2c3d4")
	sess.Set("visitor", "v-42")
	require.True(t, sess.Dirty())

	token, err := store.Commit(sess)
	require.NoError(t, err)
	assert.False(t, sess.Dirty())

	loaded := store.Load(token)
	require.NotNil(t, loaded)
	v, ok := loaded.Get("affiliate_code")
	assert.True(t, ok)
	assert.Equal(t, "a1b2c3d4", v)
	v, ok = loaded.Get("visitor")
	assert.True(t, ok)
	assert.Equal(t, "v-42", v)
}

func TestLoadMalformedToken(t *testing.T) {
	store := newTestStore(time.Hour)
	for _, token := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 4096)} {
		assert.Nil(t, store.Load(token), "token %q", token)
	}
}

func TestLoadTamperedToken(t *testing.T) {
	store := newTestStore(time.Hour)
	sess := store.New()
	sess.Set("k", "v")
	token, err := store.Commit(sess)
	require.NoError(t, err)

	// Flip a character in the signature segment.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	assert.Nil(t, store.Load(tampered))
}

func TestLoadWrongSecret(t *testing.T) {
	store := newTestStore(time.Hour)
	sess := store.New()
	sess.Set("k", "v")
	token, err := store.Commit(sess)
	require.NoError(t, err)

	other := NewStore("other-secret", "mm_session", time.Hour, true, "lax")
	assert.Nil(t, other.Load(token))
}

func TestExpiredTokenIsNoSession(t *testing.T) {
	store := newTestStore(time.Minute)
	base := time.Now()
	store.now = func() time.Time { return base }

	sess := store.New()
	sess.Set("k", "v")
	token, err := store.Commit(sess)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(30 * time.Second) }
	assert.NotNil(t, store.Load(token))

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Nil(t, store.Load(token))
}

func TestSlidingExpiry(t *testing.T) {
	store := newTestStore(time.Minute)
	base := time.Now()
	store.now = func() time.Time { return base }

	sess := store.New()
	sess.Set("k", "v")
	token, err := store.Commit(sess)
	require.NoError(t, err)

	// Re-commit near the deadline pushes the expiry forward.
	store.now = func() time.Time { return base.Add(50 * time.Second) }
	loaded := store.Load(token)
	require.NotNil(t, loaded)
	token2, err := store.Commit(loaded)
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(100 * time.Second) }
	assert.Nil(t, store.Load(token))
	assert.NotNil(t, store.Load(token2))
}

func TestDelete(t *testing.T) {
	store := newTestStore(time.Hour)
	sess := store.New()
	sess.Set("k", "v")
	token, err := store.Commit(sess)
	require.NoError(t, err)

	loaded := store.Load(token)
	require.NotNil(t, loaded)
	assert.False(t, loaded.Dirty())
	loaded.Delete("k")
	assert.True(t, loaded.Dirty())
	_, ok := loaded.Get("k")
	assert.False(t, ok)

	// Deleting an absent key does not dirty the session.
	fresh := store.New()
	fresh.Delete("missing")
	assert.False(t, fresh.Dirty())
}

func TestCookieAttributes(t *testing.T) {
	store := newTestStore(time.Hour)
	ck := store.Cookie("tok")
	assert.Equal(t, "mm_session", ck.Name)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, 3600, ck.MaxAge)

	// Empty token expires the cookie.
	assert.Equal(t, -1, store.Cookie("").MaxAge)
}

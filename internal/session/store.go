// Package session implements the signed cookie session store: a string
// key/value mapping serialized into an HS256-signed token carried by the
// client. Each request works on its own deserialized copy; concurrent
// requests from the same client racing on overlapping keys resolve
// last-committer-wins (no cross-request locking).
package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store loads and commits cookie-backed sessions. Tokens expire TTL
// after their last commit (sliding expiry): every commit re-signs with
// a fresh deadline.
type Store struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	sameSite   http.SameSite

	now func() time.Time // injectable for tests
}

// Session is one request's private copy of the client's session mapping.
type Session struct {
	values    map[string]string
	createdAt time.Time
	dirty     bool
}

type claims struct {
	Values map[string]string `json:"vals"`
	jwt.RegisteredClaims
}

// NewStore creates a session store. sameSite is "strict", "none", or
// anything else for lax.
func NewStore(secret, cookieName string, ttl time.Duration, secure bool, sameSite string) *Store {
	ss := http.SameSiteLaxMode
	switch sameSite {
	case "strict":
		ss = http.SameSiteStrictMode
	case "none":
		ss = http.SameSiteNoneMode
	}
	return &Store{
		secret:     []byte(secret),
		ttl:        ttl,
		cookieName: cookieName,
		secure:     secure,
		sameSite:   ss,
		now:        time.Now,
	}
}

// CookieName returns the configured session cookie attribute name.
func (s *Store) CookieName() string { return s.cookieName }

// New returns a fresh empty session.
func (s *Store) New() *Session {
	return &Session{values: make(map[string]string), createdAt: s.now()}
}

// Load deserializes a session token. Missing, expired, malformed, or
// tampered tokens all yield nil — they are treated as "no session",
// never as an error.
func (s *Store) Load(token string) *Session {
	if token == "" {
		return nil
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil
	}
	sess := &Session{values: c.Values, createdAt: s.now()}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	if c.IssuedAt != nil {
		sess.createdAt = c.IssuedAt.Time
	}
	return sess
}

// Commit serializes and signs the session, returning the token to store
// as the client cookie. The caller must attach it to the response before
// the body is written.
func (s *Store) Commit(sess *Session) (string, error) {
	now := s.now()
	c := claims{
		Values: sess.values,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(sess.createdAt),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	sess.dirty = false
	return signed, nil
}

// Cookie builds the client cookie for a committed token with HttpOnly,
// Secure, and SameSite applied. An empty token produces an expiring
// cookie (session invalidation).
func (s *Store) Cookie(token string) *http.Cookie {
	maxAge := int(s.ttl / time.Second)
	if token == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
	}
}

// Get returns the value for key, or empty string and false when unset.
func (sess *Session) Get(key string) (string, bool) {
	v, ok := sess.values[key]
	return v, ok
}

// Set stores a value in the in-memory copy only; nothing is persisted
// until Commit.
func (sess *Session) Set(key, value string) {
	sess.values[key] = value
	sess.dirty = true
}

// Delete removes a key from the in-memory copy.
func (sess *Session) Delete(key string) {
	if _, ok := sess.values[key]; ok {
		delete(sess.values, key)
		sess.dirty = true
	}
}

// Dirty reports whether the session was mutated since load/commit.
func (sess *Session) Dirty() bool { return sess.dirty }

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is the cookie used when a client does not send a bearer
// token.
const DefaultCookieName = "mf_session"

// Manager issues and resolves sessions over a Store. It accepts the token
// either as an Authorization bearer header or as a cookie.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
}

// Config holds session manager configuration.
type Config struct {
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"mf_session"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, cfg Config) *Manager {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{store: store, cookieName: cookieName, ttl: ttl}
}

// Resolve returns the user and session for the request's token.
// No token and unknown or expired tokens yield (nil, nil, nil); only a
// failing store produces an error.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*User, *Session, error) {
	token := m.tokenFromRequest(r)
	if token == "" {
		return nil, nil, nil
	}

	sess, err := m.store.Find(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, nil
	}
	if sess.IsExpired() {
		// Best effort; an expired record disappears on its own in Redis.
		_ = m.store.Delete(ctx, token)
		return nil, nil, nil
	}

	user := sess.User
	return &user, sess, nil
}

// Issue creates and persists a new session for the user.
func (m *Manager) Issue(ctx context.Context, user User) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	sess := &Session{
		Token:     token,
		User:      user,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke deletes the session with the given token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

func (m *Manager) tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Package session resolves bearer-token sessions for the request pipeline.
// A session record carries a snapshot of the user it belongs to, so that
// authentication does not need a database round trip.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Platform-wide user roles. Organization roles are a separate axis, see the
// tenant package.
const (
	RoleUser          = "user"
	RoleCreator       = "creator"
	RolePlatformOwner = "platform_owner"
)

// User is the session's snapshot of an account.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// Session is one authenticated browser or API client.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// Package tenant defines the multi-tenancy boundary: organizations, the
// membership relation between users and organizations, and resolution of an
// organization from a request hostname.
//
// The Directory interface lives here, away from both the pipeline and the
// storage layer, so that either side can depend on it without importing the
// other.
package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Membership statuses. Only active memberships grant access.
const (
	StatusActive    = "active"
	StatusInvited   = "invited"
	StatusSuspended = "suspended"
)

// Organization roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization is a multi-tenancy boundary; most domain data is scoped to one.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership is the relationship between one user and one organization.
type Membership struct {
	OrgID    uuid.UUID `json:"org_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// IsActive reports whether the membership currently grants access.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == StatusActive
}

// CanManage reports whether the membership role allows organization
// management operations.
func (m *Membership) CanManage() bool {
	return m != nil && (m.Role == RoleOwner || m.Role == RoleAdmin)
}

// Directory looks up organizations and memberships. A miss is (nil, nil),
// never an error; errors mean the lookup itself failed.
type Directory interface {
	// OrgBySlug returns the organization with the given slug, or nil.
	OrgBySlug(ctx context.Context, slug string) (*Organization, error)

	// Membership returns the membership row linking the user to the
	// organization, or nil when the user is not a member.
	Membership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error)

	// FirstMembershipForUser returns the user's oldest membership row, or
	// nil when the user belongs to no organization. Platform owners fall
	// back to it when no explicit organization is targeted.
	FirstMembershipForUser(ctx context.Context, userID uuid.UUID) (*Membership, error)
}

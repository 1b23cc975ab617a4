package pipeline

import "slices"

// AuthLevel governs whether a session is required for a route and whether
// elevated organization access is granted.
type AuthLevel string

const (
	// AuthNone skips authentication entirely.
	AuthNone AuthLevel = "none"
	// AuthOptional resolves the session when present but never rejects.
	AuthOptional AuthLevel = "optional"
	// AuthRequired demands a valid session.
	AuthRequired AuthLevel = "required"
	// AuthWorker authenticates background workers via shared secret; this
	// path never touches session state.
	AuthWorker AuthLevel = "worker"
	// AuthPlatformOwner demands a session whose user holds the
	// platform_owner role, with cross-tenant override capability.
	AuthPlatformOwner AuthLevel = "platform_owner"
)

// Policy is the immutable per-route security configuration.
// The zero value means: session required, no role restriction, no
// organization requirement, no rate limiting, no IP allowlist.
type Policy struct {
	Auth AuthLevel
	// Roles restricts authenticated callers to the listed platform roles.
	Roles []string
	// RequireOrgContext resolves the target organization (hostname, or
	// override for platform owners) without verifying membership. Routes
	// serving fans of an organization use it.
	RequireOrgContext    bool
	RequireOrgMembership bool
	RequireOrgManagement bool
	RateLimitTier        string
	AllowedIPs           []string
}

// withDefaults fills unset fields; Auth defaults to required.
func (p Policy) withDefaults() Policy {
	if p.Auth == "" {
		p.Auth = AuthRequired
	}
	return p
}

// allowsRole reports whether the policy's role set admits the given role.
// An empty set admits every role.
func (p Policy) allowsRole(role string) bool {
	return len(p.Roles) == 0 || slices.Contains(p.Roles, role)
}

// allowsIP reports whether the policy's IP allowlist admits the given
// client IP. An empty allowlist admits everyone.
func (p Policy) allowsIP(ip string) bool {
	return len(p.AllowedIPs) == 0 || slices.Contains(p.AllowedIPs, ip)
}

// needsOrg reports whether enforcement must resolve an organization.
func (p Policy) needsOrg() bool {
	return p.RequireOrgContext || p.RequireOrgMembership || p.RequireOrgManagement
}

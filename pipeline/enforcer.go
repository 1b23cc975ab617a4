package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pkg/clientip"
	"github.com/mixforge/platform/pkg/logger"
	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/pkg/tenant"
)

// OrgOverrideParam is the route parameter platform owners may use to target
// an arbitrary organization, bypassing membership verification.
const OrgOverrideParam = "orgID"

// SessionResolver resolves the caller's session from a request. Absence of
// a session is (nil, nil, nil); an error means the resolver's transport
// failed.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*session.User, *session.Session, error)
}

// WorkerVerifier authenticates background-worker callbacks.
type WorkerVerifier interface {
	Verify(r *http.Request) bool
}

// Access is the outcome of successful policy enforcement: who the caller
// is and which organization, if any, the request is scoped to.
type Access struct {
	User     *session.User
	Session  *session.Session
	ClientIP string
	// OrgID is guaranteed non-nil whenever the policy requires organization
	// membership or the auth level is platform_owner.
	OrgID   uuid.UUID
	OrgRole string
}

// Enforcer executes the authentication/authorization decision procedure for
// one request against one route policy.
type Enforcer struct {
	sessions SessionResolver
	workers  WorkerVerifier
	dir      tenant.Directory
	tenants  *tenant.Resolver
	log      *slog.Logger
}

// NewEnforcer wires the enforcer's collaborators.
func NewEnforcer(sessions SessionResolver, workers WorkerVerifier, dir tenant.Directory, tenants *tenant.Resolver, log *slog.Logger) *Enforcer {
	if log == nil {
		log = slog.Default()
	}
	return &Enforcer{sessions: sessions, workers: workers, dir: dir, tenants: tenants, log: log}
}

// Enforce runs the decision procedure, in order: IP allowlist, auth level,
// platform-owner checks, role check, organization membership/management.
// It returns the resolved access on success and a *core.Error otherwise.
// No domain service may be constructed before Enforce returns successfully.
func (e *Enforcer) Enforce(r *http.Request, p Policy) (*Access, error) {
	p = p.withDefaults()
	ctx := r.Context()

	access := &Access{ClientIP: clientip.FromRequest(r)}

	if !p.allowsIP(access.ClientIP) {
		return nil, core.Forbidden("ip address not allowed")
	}

	if p.Auth == AuthNone {
		return access, nil
	}

	if p.Auth == AuthWorker {
		if !WorkerAuthenticated(ctx) && (e.workers == nil || !e.workers.Verify(r)) {
			return nil, core.Unauthorized("worker authentication failed")
		}
		// Workers hold the shared secret and act across tenants; the route
		// names the organization they operate on.
		if id, ok := overrideOrgID(r); ok {
			access.OrgID = id
		}
		return access, nil
	}

	user, sess, err := e.sessions.Resolve(ctx, r)
	if err != nil {
		if p.Auth != AuthOptional {
			return nil, errors.Join(core.Unauthorized("could not resolve session"), err)
		}
		// Optional auth must not fail the request over a flaky session
		// backend; proceed unauthenticated.
		e.log.WarnContext(ctx, "session resolution failed on optional route",
			logger.Error(err), logger.Component("enforcer"))
		user, sess = nil, nil
	}
	access.User = user
	access.Session = sess

	if user == nil && p.Auth != AuthOptional {
		return nil, core.Unauthorized("authentication required")
	}

	if p.Auth == AuthPlatformOwner {
		if user.Role != session.RolePlatformOwner {
			return nil, core.Forbidden("platform owner access required")
		}
		if err := e.resolveOwnerOrg(ctx, r, access); err != nil {
			return nil, err
		}
	}

	// Role restrictions apply to authenticated callers; an anonymous caller
	// on an optional route passes through.
	if user != nil && !p.allowsRole(user.Role) {
		return nil, core.Forbidden("insufficient role")
	}

	if p.needsOrg() {
		if err := e.resolveOrgAccess(ctx, r, p, access); err != nil {
			return nil, err
		}
	}

	return access, nil
}

// resolveOwnerOrg establishes organization context for a platform owner:
// an explicit override parameter wins, then the request hostname, then the
// owner's own home membership. The adopted role is always platform_owner.
func (e *Enforcer) resolveOwnerOrg(ctx context.Context, r *http.Request, access *Access) error {
	if id, ok := overrideOrgID(r); ok {
		access.OrgID = id
		access.OrgRole = session.RolePlatformOwner
		return nil
	}

	if id := e.tenants.OrgFromHost(ctx, r.Host); id != uuid.Nil {
		access.OrgID = id
		access.OrgRole = session.RolePlatformOwner
		return nil
	}

	m, err := e.dir.FirstMembershipForUser(ctx, access.User.ID)
	if err != nil {
		return errors.Join(core.Internal(), err)
	}
	if m.IsActive() {
		access.OrgID = m.OrgID
		access.OrgRole = session.RolePlatformOwner
	}
	return nil
}

// resolveOrgAccess determines the target organization and, when the policy
// demands it, verifies the caller's membership in it. Platform owners who
// already hold organization context bypass membership verification.
func (e *Enforcer) resolveOrgAccess(ctx context.Context, r *http.Request, p Policy, access *Access) error {
	if id, ok := overrideOrgID(r); ok {
		// The explicit override is an administrative escape hatch; anyone
		// else attempting it is rejected even if they are a member.
		if access.User == nil || access.User.Role != session.RolePlatformOwner {
			return core.Forbidden("organization override not permitted")
		}
		access.OrgID = id
		access.OrgRole = session.RolePlatformOwner
		return nil
	}

	if access.OrgID == uuid.Nil {
		access.OrgID = e.tenants.OrgFromHost(ctx, r.Host)
	}
	if access.OrgID == uuid.Nil {
		return core.Validation("organization context required")
	}

	if !p.RequireOrgMembership && !p.RequireOrgManagement {
		return nil
	}

	if access.OrgRole == session.RolePlatformOwner {
		return nil
	}

	// Membership can only be verified for an authenticated caller; an
	// anonymous caller admitted by optional auth cannot hold one.
	if access.User == nil {
		return core.Unauthorized("authentication required")
	}

	m, err := e.dir.Membership(ctx, access.OrgID, access.User.ID)
	if err != nil {
		return errors.Join(core.Internal(), err)
	}
	if !m.IsActive() {
		return core.Forbidden("not a member of this organization")
	}
	if p.RequireOrgManagement && !m.CanManage() {
		return core.Forbidden("organization management role required")
	}

	access.OrgRole = m.Role
	return nil
}

// overrideOrgID reads the explicit organization override route parameter,
// valid only when it is UUID-shaped.
func overrideOrgID(r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, OrgOverrideParam)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type workerCtxKey struct{}

// MarkWorkerAuthenticated records on the context that an earlier stage
// already verified the worker's shared secret.
func MarkWorkerAuthenticated(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerCtxKey{}, true)
}

// WorkerAuthenticated reports whether a prior stage marked the request as
// worker-authenticated.
func WorkerAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(workerCtxKey{}).(bool)
	return ok
}

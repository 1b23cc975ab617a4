package pipeline_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pipeline"
	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/pkg/tenant"
	"github.com/mixforge/platform/pkg/workerauth"
)

func newEnforcer(sessions *stubSessions, workers pipeline.WorkerVerifier, dir *stubDirectory) *pipeline.Enforcer {
	return pipeline.NewEnforcer(sessions, workers, dir, tenant.NewResolver(dir, discard), discard)
}

func requireCoreError(t *testing.T, err error, status int, code string) {
	t.Helper()
	coreErr := &core.Error{}
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, status, coreErr.Status)
	assert.Equal(t, code, coreErr.Code)
}

func TestEnforceAuthLevels(t *testing.T) {
	t.Parallel()

	t.Run("none admits without touching sessions", func(t *testing.T) {
		t.Parallel()

		sessions := &stubSessions{err: errors.New("backend down")}
		e := newEnforcer(sessions, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/public", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthNone})

		require.NoError(t, err)
		assert.Nil(t, access.User)
		assert.Zero(t, sessions.calls, "none-level routes must not resolve sessions")
	})

	t.Run("required rejects anonymous", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired})
		requireCoreError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("required rejects when session backend fails", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{err: errors.New("redis down")}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired})
		requireCoreError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("zero policy defaults to required", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/private", nil)
		_, err := e.Enforce(r, pipeline.Policy{})
		requireCoreError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("optional admits anonymous", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/feed", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthOptional})

		require.NoError(t, err)
		assert.Nil(t, access.User)
	})

	t.Run("optional attaches the session when present", func(t *testing.T) {
		t.Parallel()

		user := activeUser(session.RoleUser)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/feed", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthOptional})

		require.NoError(t, err)
		require.NotNil(t, access.User)
		assert.Equal(t, user.ID, access.User.ID)
	})

	t.Run("optional degrades to anonymous when the backend fails", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{err: errors.New("redis down")}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/feed", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthOptional})

		require.NoError(t, err)
		assert.Nil(t, access.User)
	})
}

func TestEnforceWorkerAuth(t *testing.T) {
	t.Parallel()

	t.Run("valid shared secret admits", func(t *testing.T) {
		t.Parallel()

		verifier := workerauth.NewVerifier(workerauth.Config{SharedSecret: "s3cret"})
		e := newEnforcer(&stubSessions{}, verifier, &stubDirectory{})

		r := httptest.NewRequest(http.MethodPost, "/hooks/transcode", nil)
		r.Header.Set(workerauth.Header, "s3cret")

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthWorker})
		require.NoError(t, err)
		assert.Nil(t, access.User, "worker requests carry no user")
	})

	t.Run("wrong secret is unauthorized", func(t *testing.T) {
		t.Parallel()

		verifier := workerauth.NewVerifier(workerauth.Config{SharedSecret: "s3cret"})
		e := newEnforcer(&stubSessions{}, verifier, &stubDirectory{})

		r := httptest.NewRequest(http.MethodPost, "/hooks/transcode", nil)
		r.Header.Set(workerauth.Header, "guess")

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthWorker})
		requireCoreError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("pre-verified context mark admits without re-verification", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{ok: false}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodPost, "/hooks/transcode", nil)
		r = r.WithContext(pipeline.MarkWorkerAuthenticated(r.Context()))

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthWorker})
		require.NoError(t, err)
	})
}

func TestEnforceRolesAndIPs(t *testing.T) {
	t.Parallel()

	t.Run("role outside the allowed set is forbidden", func(t *testing.T) {
		t.Parallel()

		user := activeUser(session.RoleUser)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodPost, "/content", nil)
		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired, Roles: []string{session.RoleCreator}})
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("role inside the allowed set passes", func(t *testing.T) {
		t.Parallel()

		user := activeUser(session.RoleCreator)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodPost, "/content", nil)
		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired, Roles: []string{session.RoleCreator}})
		require.NoError(t, err)
	})

	t.Run("ip allowlist rejects before anything else", func(t *testing.T) {
		t.Parallel()

		sessions := &stubSessions{}
		e := newEnforcer(sessions, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/internal", nil)
		r.RemoteAddr = "203.0.113.7:4242"

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthNone, AllowedIPs: []string{"10.0.0.1"}})
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
		assert.Zero(t, sessions.calls)
	})

	t.Run("allowlisted ip passes", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/internal", nil)
		r.RemoteAddr = "10.0.0.1:4242"

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthNone, AllowedIPs: []string{"10.0.0.1"}})
		require.NoError(t, err)
	})
}

func TestEnforceOrgMembership(t *testing.T) {
	t.Parallel()

	org := &tenant.Organization{ID: uuid.New(), Slug: "acme"}
	user := activeUser(session.RoleCreator)

	newDirWith := func(m *tenant.Membership) *stubDirectory {
		dir := &stubDirectory{
			orgs:        map[string]*tenant.Organization{"acme": org},
			memberships: map[string]*tenant.Membership{},
		}
		if m != nil {
			dir.memberships[membershipKey(org.ID, user.ID)] = m
		}
		return dir
	}

	tenantRequest := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/content", nil)
		r.Host = "acme.mixforge.io"
		return r
	}

	policy := pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgMembership: true}

	t.Run("active member is admitted with org context", func(t *testing.T) {
		t.Parallel()

		dir := newDirWith(&tenant.Membership{OrgID: org.ID, UserID: user.ID, Role: tenant.RoleMember, Status: tenant.StatusActive})
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		access, err := e.Enforce(tenantRequest(), policy)
		require.NoError(t, err)
		assert.Equal(t, org.ID, access.OrgID)
		assert.Equal(t, tenant.RoleMember, access.OrgRole)
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		t.Parallel()

		dir := newDirWith(nil)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		_, err := e.Enforce(tenantRequest(), policy)
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("suspended membership is forbidden", func(t *testing.T) {
		t.Parallel()

		dir := newDirWith(&tenant.Membership{OrgID: org.ID, UserID: user.ID, Role: tenant.RoleMember, Status: tenant.StatusSuspended})
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		_, err := e.Enforce(tenantRequest(), policy)
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("management demands an admin or owner role", func(t *testing.T) {
		t.Parallel()

		mgmt := pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgManagement: true}

		dir := newDirWith(&tenant.Membership{OrgID: org.ID, UserID: user.ID, Role: tenant.RoleMember, Status: tenant.StatusActive})
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)
		_, err := e.Enforce(tenantRequest(), mgmt)
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")

		dir = newDirWith(&tenant.Membership{OrgID: org.ID, UserID: user.ID, Role: tenant.RoleAdmin, Status: tenant.StatusActive})
		e = newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)
		access, err := e.Enforce(tenantRequest(), mgmt)
		require.NoError(t, err)
		assert.Equal(t, tenant.RoleAdmin, access.OrgRole)
	})

	t.Run("no resolvable org is a validation failure", func(t *testing.T) {
		t.Parallel()

		dir := newDirWith(&tenant.Membership{OrgID: org.ID, UserID: user.ID, Role: tenant.RoleMember, Status: tenant.StatusActive})
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/content", nil)
		r.Host = "api.mixforge.io" // reserved label, never a tenant

		_, err := e.Enforce(r, policy)
		requireCoreError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("unknown subdomain degrades to missing org context", func(t *testing.T) {
		t.Parallel()

		dir := newDirWith(nil)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/content", nil)
		r.Host = "ghost.mixforge.io"

		_, err := e.Enforce(r, policy)
		requireCoreError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestEnforceOrgContext(t *testing.T) {
	t.Parallel()

	org := &tenant.Organization{ID: uuid.New(), Slug: "acme"}
	dir := &stubDirectory{orgs: map[string]*tenant.Organization{"acme": org}}

	t.Run("non-member gets org context without membership", func(t *testing.T) {
		t.Parallel()

		fan := activeUser(session.RoleUser)
		e := newEnforcer(&stubSessions{user: fan, sess: sessionFor(fan)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/catalog", nil)
		r.Host = "acme.mixforge.io"

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgContext: true})
		require.NoError(t, err)
		assert.Equal(t, org.ID, access.OrgID)
		assert.Empty(t, access.OrgRole)
	})

	t.Run("anonymous caller on an optional route gets org context", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/catalog", nil)
		r.Host = "acme.mixforge.io"

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthOptional, RequireOrgContext: true})
		require.NoError(t, err)
		assert.Nil(t, access.User)
		assert.Equal(t, org.ID, access.OrgID)
	})

	t.Run("anonymous caller cannot satisfy a membership requirement", func(t *testing.T) {
		t.Parallel()

		e := newEnforcer(&stubSessions{}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/catalog", nil)
		r.Host = "acme.mixforge.io"

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthOptional, RequireOrgMembership: true})
		requireCoreError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	})
}

func TestEnforceOrgOverride(t *testing.T) {
	t.Parallel()

	org := &tenant.Organization{ID: uuid.New(), Slug: "acme"}
	target := uuid.New()

	t.Run("platform owner may override the organization", func(t *testing.T) {
		t.Parallel()

		owner := activeUser(session.RolePlatformOwner)
		dir := &stubDirectory{orgs: map[string]*tenant.Organization{"acme": org}}
		e := newEnforcer(&stubSessions{user: owner, sess: sessionFor(owner)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/admin/orgs/"+target.String()+"/content", nil)
		r = withRouteParam(r, pipeline.OrgOverrideParam, target.String())

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgMembership: true})
		require.NoError(t, err)
		assert.Equal(t, target, access.OrgID)
		assert.Equal(t, session.RolePlatformOwner, access.OrgRole)
	})

	t.Run("anyone else using the override is forbidden even as a member", func(t *testing.T) {
		t.Parallel()

		user := activeUser(session.RoleCreator)
		dir := &stubDirectory{
			orgs: map[string]*tenant.Organization{"acme": org},
			memberships: map[string]*tenant.Membership{
				membershipKey(target, user.ID): {OrgID: target, UserID: user.ID, Role: tenant.RoleOwner, Status: tenant.StatusActive},
			},
		}
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/admin/orgs/"+target.String()+"/content", nil)
		r = withRouteParam(r, pipeline.OrgOverrideParam, target.String())

		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthRequired, RequireOrgMembership: true})
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
	})
}

func TestEnforcePlatformOwner(t *testing.T) {
	t.Parallel()

	t.Run("non-owner is forbidden", func(t *testing.T) {
		t.Parallel()

		user := activeUser(session.RoleCreator)
		e := newEnforcer(&stubSessions{user: user, sess: sessionFor(user)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		_, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthPlatformOwner})
		requireCoreError(t, err, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("override parameter wins org resolution", func(t *testing.T) {
		t.Parallel()

		owner := activeUser(session.RolePlatformOwner)
		target := uuid.New()
		e := newEnforcer(&stubSessions{user: owner, sess: sessionFor(owner)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/admin/orgs/"+target.String(), nil)
		r = withRouteParam(r, pipeline.OrgOverrideParam, target.String())

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthPlatformOwner})
		require.NoError(t, err)
		assert.Equal(t, target, access.OrgID)
		assert.Equal(t, session.RolePlatformOwner, access.OrgRole)
	})

	t.Run("hostname resolves org when no override given", func(t *testing.T) {
		t.Parallel()

		owner := activeUser(session.RolePlatformOwner)
		org := &tenant.Organization{ID: uuid.New(), Slug: "acme"}
		dir := &stubDirectory{orgs: map[string]*tenant.Organization{"acme": org}}
		e := newEnforcer(&stubSessions{user: owner, sess: sessionFor(owner)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		r.Host = "acme.mixforge.io"

		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthPlatformOwner})
		require.NoError(t, err)
		assert.Equal(t, org.ID, access.OrgID)
	})

	t.Run("falls back to the owner's oldest membership", func(t *testing.T) {
		t.Parallel()

		owner := activeUser(session.RolePlatformOwner)
		home := uuid.New()
		dir := &stubDirectory{
			first: &tenant.Membership{OrgID: home, UserID: owner.ID, Role: tenant.RoleOwner, Status: tenant.StatusActive},
		}
		e := newEnforcer(&stubSessions{user: owner, sess: sessionFor(owner)}, stubWorkers{}, dir)

		r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthPlatformOwner})
		require.NoError(t, err)
		assert.Equal(t, home, access.OrgID)
		assert.Equal(t, session.RolePlatformOwner, access.OrgRole, "adopted role is always platform_owner")
	})

	t.Run("owner with no membership keeps nil org context", func(t *testing.T) {
		t.Parallel()

		owner := activeUser(session.RolePlatformOwner)
		e := newEnforcer(&stubSessions{user: owner, sess: sessionFor(owner)}, stubWorkers{}, &stubDirectory{})

		r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		access, err := e.Enforce(r, pipeline.Policy{Auth: pipeline.AuthPlatformOwner})
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, access.OrgID)
	})
}

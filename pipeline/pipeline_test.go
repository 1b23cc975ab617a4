package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/pkg/tenant"
	"github.com/mixforge/platform/pipeline"
	"github.com/mixforge/platform/services"
)

// discard silences pipeline logging in tests.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubSessions struct {
	user *session.User
	sess *session.Session
	err  error

	calls int
}

func (s *stubSessions) Resolve(context.Context, *http.Request) (*session.User, *session.Session, error) {
	s.calls++
	return s.user, s.sess, s.err
}

type stubWorkers struct{ ok bool }

func (s stubWorkers) Verify(*http.Request) bool { return s.ok }

type stubDirectory struct {
	orgs        map[string]*tenant.Organization
	memberships map[string]*tenant.Membership
	first       *tenant.Membership
	err         error
}

func membershipKey(orgID, userID uuid.UUID) string {
	return orgID.String() + "/" + userID.String()
}

func (d *stubDirectory) OrgBySlug(_ context.Context, slug string) (*tenant.Organization, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.orgs[slug], nil
}

func (d *stubDirectory) Membership(_ context.Context, orgID, userID uuid.UUID) (*tenant.Membership, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.memberships[membershipKey(orgID, userID)], nil
}

func (d *stubDirectory) FirstMembershipForUser(context.Context, uuid.UUID) (*tenant.Membership, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.first, nil
}

type stubLimiter struct {
	allow bool
	err   error

	lastTier string
	lastKey  string
}

func (l *stubLimiter) Allow(_ context.Context, tier, key string) (bool, error) {
	l.lastTier = tier
	l.lastKey = key
	return l.allow, l.err
}

func activeUser(role string) *session.User {
	return &session.User{ID: uuid.New(), Email: "user@example.com", Name: "Test User", Role: role}
}

func sessionFor(u *session.User) *session.Session {
	return &session.Session{Token: "tok", User: *u, ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()}
}

// withRouteParam attaches a chi routing context carrying one URL parameter,
// the way a request looks after the router has matched a pattern.
func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeEnvelope parses a response body into the uniform envelope shape.
type testEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Path    string `json:"path"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error, "expected an error envelope, got %s", rec.Body.String())
	return env.Error.Code
}

// newTestPipeline wires a pipeline around stub collaborators. The registry
// factory hands out empty registries; tests needing cleanup hooks swap it.
func newTestPipeline(sessions *stubSessions, dir *stubDirectory, limiter pipeline.Limiter) *pipeline.Pipeline {
	enforcer := pipeline.NewEnforcer(sessions, stubWorkers{}, dir, tenant.NewResolver(dir, discard), discard)
	factory := func(orgID uuid.UUID) *services.Registry {
		return services.NewRegistry(nil, nil, services.Config{}, orgID, discard)
	}
	return pipeline.New(enforcer, factory, limiter, discard)
}

package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mixforge/platform/core"
	"github.com/mixforge/platform/pkg/requestid"
	"github.com/mixforge/platform/services"
)

// Limiter enforces per-tier request budgets. Implemented by pkg/ratelimit.
type Limiter interface {
	Allow(ctx context.Context, tier, key string) (bool, error)
}

// RegistryFactory builds the request-scoped service registry for a resolved
// organization. It is only invoked after policy enforcement succeeds.
type RegistryFactory func(orgID uuid.UUID) *services.Registry

// HandlerFunc is a route's business logic. It returns the handler result to
// wrap in the success envelope, or an error for the central mapping.
type HandlerFunc func(ctx *Context) (any, error)

// Route declares one endpoint: its security policy, input schemas, expected
// multipart files, and the status emitted on success.
type Route struct {
	Policy Policy
	Input  Input
	Files  map[string]FileSpec
	// SuccessStatus defaults to 200; http.StatusNoContent suppresses the body.
	SuccessStatus int
}

// Pipeline turns route declarations into http.HandlerFuncs. Every endpoint
// goes through the same sequence: enforce policy, rate limit, build the
// service registry, validate input, run the handler, write the envelope,
// and schedule cleanup exactly once regardless of outcome.
type Pipeline struct {
	enforcer *Enforcer
	limiter  Limiter
	registry RegistryFactory
	log      *slog.Logger
}

// New creates a pipeline. limiter may be nil to disable rate limiting.
func New(enforcer *Enforcer, registry RegistryFactory, limiter Limiter, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{enforcer: enforcer, limiter: limiter, registry: registry, log: log}
}

// Handle builds the handler for a JSON route.
func (p *Pipeline) Handle(rt Route, h HandlerFunc) http.HandlerFunc {
	return p.handler(rt, h, false)
}

// HandleMultipart builds the handler for a multipart route: the body is
// form data, so input validation covers only params and query, and the
// declared file fields are extracted instead.
func (p *Pipeline) HandleMultipart(rt Route, h HandlerFunc) http.HandlerFunc {
	return p.handler(rt, h, true)
}

func (p *Pipeline) handler(rt Route, h HandlerFunc, multipart bool) http.HandlerFunc {
	status := rt.SuccessStatus
	if status == 0 {
		status = http.StatusOK
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var registry *services.Registry
		// Cleanup runs in the background so releasing the shared resource
		// never adds latency to the response; the registry guards against
		// double invocation itself.
		defer func() {
			if registry != nil {
				go registry.Cleanup(context.WithoutCancel(r.Context()))
			}
		}()

		access, err := p.enforcer.Enforce(r, rt.Policy)
		if err != nil {
			writeError(w, r, err, p.log)
			return
		}

		if err := p.checkRateLimit(r, rt.Policy, access); err != nil {
			writeError(w, r, err, p.log)
			return
		}

		// Services exist only for requests that passed enforcement.
		registry = p.registry(access.OrgID)

		validated, err := validateInput(r, rt.Input, !multipart)
		if err != nil {
			writeError(w, r, err, p.log)
			return
		}

		var files map[string]*FileUpload
		if multipart {
			files, err = extractFiles(r, rt.Files)
			if err != nil {
				writeError(w, r, err, p.log)
				return
			}
		}

		ctx := &Context{
			Context:   r.Context(),
			RequestID: requestid.FromContext(r.Context()),
			ClientIP:  access.ClientIP,
			UserAgent: r.UserAgent(),
			User:      access.User,
			Session:   access.Session,
			OrgID:     access.OrgID,
			OrgRole:   access.OrgRole,
			Input:     validated,
			Files:     files,
			Services:  registry,
		}

		result, err := h(ctx)
		if err != nil {
			writeError(w, r, err, p.log)
			return
		}

		writeData(w, status, result)
	}
}

// checkRateLimit consumes one request from the policy tier's window,
// keyed by user when authenticated and by client IP otherwise.
func (p *Pipeline) checkRateLimit(r *http.Request, policy Policy, access *Access) error {
	if policy.RateLimitTier == "" || p.limiter == nil {
		return nil
	}

	key := access.ClientIP
	if access.User != nil {
		key = access.User.ID.String()
	}

	ok, err := p.limiter.Allow(r.Context(), policy.RateLimitTier, key)
	if err != nil {
		// A broken limiter backend must not take the API down.
		p.log.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		return core.RateLimited()
	}
	return nil
}

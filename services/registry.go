// Package services holds the request-scoped service registry and the domain
// services it constructs. A registry lives for exactly one request: every
// accessor memoizes its instance, the services share one database
// connection acquired on first need, and Cleanup releases everything after
// the response has been written.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrDatabaseUnavailable is returned by accessors that need the shared
// connection when no pool was configured.
var ErrDatabaseUnavailable = errors.New("database pool not configured")

// Config is the environment the domain services run against.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	Paddle  PaddleConfig
	Storage StorageConfig
}

// Registry lazily builds domain services for one request. It is created
// only after policy enforcement succeeds, with the organization the request
// resolved to.
type Registry struct {
	pool  *pgxpool.Pool
	rdb   *redis.Client
	cfg   Config
	orgID uuid.UUID
	log   *slog.Logger

	mu        sync.Mutex
	conn      *pgxpool.Conn
	content   *Content
	purchases *Purchases
	storage   *Storage
	payments  *Payments
	analytics *Analytics
	cleanups  []func(context.Context) error

	cleanupOnce sync.Once
}

// NewRegistry creates an empty registry. No service and no connection is
// constructed until an accessor is first called.
func NewRegistry(pool *pgxpool.Pool, rdb *redis.Client, cfg Config, orgID uuid.UUID, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{pool: pool, rdb: rdb, cfg: cfg, orgID: orgID, log: log}
}

// OrgID returns the organization this registry is scoped to; uuid.Nil for
// requests without organization context.
func (r *Registry) OrgID() uuid.UUID {
	return r.orgID
}

// Content returns the content service, constructing it on first access.
func (r *Registry) Content(ctx context.Context) (*Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.content == nil {
		conn, err := r.sharedConnLocked(ctx)
		if err != nil {
			return nil, err
		}
		r.content = &Content{conn: conn, orgID: r.orgID}
	}
	return r.content, nil
}

// Purchases returns the purchase service, constructing it on first access.
func (r *Registry) Purchases(ctx context.Context) (*Purchases, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.purchases == nil {
		conn, err := r.sharedConnLocked(ctx)
		if err != nil {
			return nil, err
		}
		r.purchases = &Purchases{conn: conn, orgID: r.orgID}
	}
	return r.purchases, nil
}

// Storage returns the media storage service. Configuration problems surface
// here, on first access, not at registry construction.
func (r *Registry) Storage(ctx context.Context) (*Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storage == nil {
		s, err := newStorage(ctx, r.cfg.Storage)
		if err != nil {
			return nil, err
		}
		r.storage = s
	}
	return r.storage, nil
}

// Payments returns the payment service. A missing processor key is a
// configuration error raised on first access.
func (r *Registry) Payments(context.Context) (*Payments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.payments == nil {
		p, err := newPayments(r.cfg.Paddle)
		if err != nil {
			return nil, err
		}
		r.payments = p
	}
	return r.payments, nil
}

// Analytics returns the analytics service backed by Redis counters.
func (r *Registry) Analytics(context.Context) (*Analytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.analytics == nil {
		if r.rdb == nil {
			return nil, errors.New("redis client not configured")
		}
		r.analytics = &Analytics{rdb: r.rdb, orgID: r.orgID}
	}
	return r.analytics, nil
}

// OnCleanup registers a teardown callback to run when the request's
// registry is cleaned up.
func (r *Registry) OnCleanup(fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Cleanup invokes every registered teardown callback exactly once, however
// many times it is called. Callbacks run concurrently; failures are logged,
// never propagated, since the response is already on the wire.
func (r *Registry) Cleanup(ctx context.Context) {
	r.cleanupOnce.Do(func() {
		r.mu.Lock()
		fns := r.cleanups
		r.cleanups = nil
		r.mu.Unlock()

		var wg sync.WaitGroup
		for _, fn := range fns {
			wg.Add(1)
			go func(fn func(context.Context) error) {
				defer wg.Done()
				if err := fn(ctx); err != nil {
					r.log.ErrorContext(ctx, "service teardown failed", "error", err)
				}
			}(fn)
		}
		wg.Wait()
	})
}

// sharedConnLocked acquires the registry's database connection on first
// need and registers its release. Callers must hold r.mu. All services in
// one request share this one connection; it is never reused across
// requests.
func (r *Registry) sharedConnLocked(ctx context.Context) (*pgxpool.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	if r.pool == nil {
		return nil, ErrDatabaseUnavailable
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}
	r.conn = conn
	r.cleanups = append(r.cleanups, func(context.Context) error {
		conn.Release()
		return nil
	})
	return conn, nil
}

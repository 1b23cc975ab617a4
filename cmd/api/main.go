// The api command runs the platform HTTP API: content catalog, purchases,
// media uploads and admin surfaces for every creator organization.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/mixforge/platform/migrations"
	"github.com/mixforge/platform/pipeline"
	appconfig "github.com/mixforge/platform/pkg/config"
	"github.com/mixforge/platform/pkg/httpserver"
	"github.com/mixforge/platform/pkg/logger"
	"github.com/mixforge/platform/pkg/pg"
	"github.com/mixforge/platform/pkg/ratelimit"
	redisconn "github.com/mixforge/platform/pkg/redis"
	"github.com/mixforge/platform/pkg/session"
	"github.com/mixforge/platform/pkg/tenant"
	"github.com/mixforge/platform/pkg/workerauth"
	"github.com/mixforge/platform/services"
)

type config struct {
	HTTP     httpserver.Config
	PG       pg.Config
	Redis    redisconn.Config
	Session  session.Config
	Worker   workerauth.Config
	Services services.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	appconfig.MustLoad(&cfg)

	log := logger.New(logger.WithEnvironment(cfg.Services.Environment, "platform-api"))
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "api exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, migrations.FS, log); err != nil {
		return err
	}

	rdb, err := redisconn.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close redis client", logger.Error(err))
		}
	}()

	dir := services.NewDirectory(pool)
	sessions := session.NewManager(session.NewRedisStore(rdb), cfg.Session)
	enforcer := pipeline.NewEnforcer(
		sessions,
		workerauth.NewVerifier(cfg.Worker),
		dir,
		tenant.NewResolver(dir, log),
		log,
	)
	registryFor := func(orgID uuid.UUID) *services.Registry {
		return services.NewRegistry(pool, rdb, cfg.Services, orgID, log)
	}
	p := pipeline.New(enforcer, registryFor, ratelimit.New(rdb, nil), log)

	srv := httpserver.New(cfg.HTTP, log)
	return srv.Run(ctx, newRouter(p, pool, rdb))
}

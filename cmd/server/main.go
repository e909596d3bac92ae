package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"linkwatch/internal"
	"linkwatch/internal/config"
	"linkwatch/internal/infra"
	"linkwatch/internal/logging"
	"linkwatch/internal/middleware"
	"linkwatch/internal/modules/adminapi"
	"linkwatch/internal/modules/historysink"
	"linkwatch/internal/modules/monitor"
	"linkwatch/internal/modules/probe"
	"linkwatch/internal/modules/queue"
	"linkwatch/internal/modules/scheduler"
	"linkwatch/internal/modules/worker"
	"linkwatch/internal/supervisor"
	"linkwatch/internal/version"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	container := dig.New()

	if err := container.Provide(func() *config.Config { return &cfg }); err != nil {
		log.Fatalf("provide config: %v", err)
	}
	if err := container.Provide(logging.Provide); err != nil {
		log.Fatalf("provide logger: %v", err)
	}
	if err := container.Provide(infra.ProvideSQLDB); err != nil {
		log.Fatalf("provide sql db: %v", err)
	}
	if err := container.Provide(infra.ProvideRedisClient); err != nil {
		log.Fatalf("provide redis client: %v", err)
	}
	if err := container.Provide(infra.ProvideAsynqClient); err != nil {
		log.Fatalf("provide asynq client: %v", err)
	}
	if err := container.Provide(infra.ProvideAsynqServer); err != nil {
		log.Fatalf("provide asynq server: %v", err)
	}
	if err := container.Provide(infra.ProvideAsynqInspector); err != nil {
		log.Fatalf("provide asynq inspector: %v", err)
	}
	if err := container.Provide(infra.ProvideQueueService); err != nil {
		log.Fatalf("provide queue service: %v", err)
	}
	if err := container.Provide(func(client *redis.Client, c *config.Config) *infra.RateLimiter {
		return infra.NewRateLimiter(client, c, "linkwatch:dispatch")
	}); err != nil {
		log.Fatalf("provide rate limiter: %v", err)
	}
	if err := container.Provide(func(db *bun.DB) monitor.Repository {
		return monitor.NewSQLRepository(db)
	}); err != nil {
		log.Fatalf("provide monitor repository: %v", err)
	}
	if err := container.Provide(func(repo monitor.Repository) monitor.Service {
		return monitor.NewService(repo)
	}); err != nil {
		log.Fatalf("provide monitor service: %v", err)
	}
	if err := container.Provide(probe.NewEngine); err != nil {
		log.Fatalf("provide probe engine: %v", err)
	}
	if err := container.Provide(historysink.NewSink); err != nil {
		log.Fatalf("provide history sink: %v", err)
	}
	if err := container.Provide(scheduler.NewScheduler); err != nil {
		log.Fatalf("provide scheduler: %v", err)
	}
	if err := container.Provide(worker.NewHandler); err != nil {
		log.Fatalf("provide worker handler: %v", err)
	}
	if err := container.Provide(middleware.BearerAuth); err != nil {
		log.Fatalf("provide auth middleware: %v", err)
	}
	if err := container.Provide(adminapi.NewController); err != nil {
		log.Fatalf("provide admin controller: %v", err)
	}
	if err := container.Provide(adminapi.NewRoute); err != nil {
		log.Fatalf("provide admin route: %v", err)
	}
	if err := container.Provide(internal.ProvideServer); err != nil {
		log.Fatalf("provide http server: %v", err)
	}
	if err := container.Provide(supervisor.New); err != nil {
		log.Fatalf("provide supervisor: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = container.Invoke(func(
		sup *supervisor.Supervisor,
		db *bun.DB,
		logger *zap.SugaredLogger,
		c *config.Config,
		qs queue.Service,
	) error {
		logger.Infow("linkwatch starting", "version", version.Version, "mode", c.Mode)

		runErr := sup.Run(ctx)

		if closeErr := infra.GracefulSQLiteShutdown(db, c.DBType, logger); closeErr != nil {
			logger.Errorw("sqlite shutdown error", "error", closeErr)
		}
		// qs owns the asynq client and inspector singletons; closing it once
		// here is the only place either gets closed.
		if closeErr := qs.Close(); closeErr != nil {
			logger.Errorw("queue service close error", "error", closeErr)
		}

		return runErr
	})
	if err != nil {
		log.Fatalf("linkwatch: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-orchestrator/internal/api/http"
	"github.com/spec-kit/ticket-orchestrator/internal/api/http/handlers"
	"github.com/spec-kit/ticket-orchestrator/internal/auth"
	"github.com/spec-kit/ticket-orchestrator/internal/cache"
	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/persistence"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	"github.com/spec-kit/ticket-orchestrator/internal/scheduler"
	"github.com/spec-kit/ticket-orchestrator/internal/service"
	"github.com/spec-kit/ticket-orchestrator/internal/statuslog"
	"github.com/spec-kit/ticket-orchestrator/internal/transcript"
	"github.com/spec-kit/ticket-orchestrator/internal/worker"
)

// lazyCloser breaks the construction cycle between the scheduler and the
// lifecycle service: the controller is built first, the service is bound in
// before the controller starts.
type lazyCloser struct {
	svc *service.LifecycleService
}

func (l *lazyCloser) CloseAutomated(ctx context.Context, workspaceID, channelID string) error {
	return l.svc.CloseAutomated(ctx, workspaceID, channelID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	workspaceRepo := repository.NewWorkspaceConfigRepository(pool)
	configCache := cache.NewWorkspaceConfigCache(
		workspaceRepo, cache.RedisBackend{Client: redis.Client}, cfg.ConfigCache.TTL(), logger)

	gw := gateway.NewRESTClient(cfg.Gateway)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	pipeline := transcript.NewPipeline(gw, cfg.Transcript, logger)
	sessions := service.NewForwardSessions(cfg.Automation.ForwardSessionTTL())

	closer := &lazyCloser{}
	controller := scheduler.NewController(scheduler.ControllerDependencies{
		Timers:     scheduler.NewTimerSet(),
		Configs:    configCache,
		Tickets:    ticketRepo,
		Gateway:    gw,
		Closer:     closer,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, cfg.Automation.SweepInterval())

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Tickets:     ticketRepo,
		Configs:     configCache,
		Gateway:     gw,
		Transcripts: pipeline,
		Timers:      controller,
		Sessions:    sessions,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	}, cfg.Automation.ChannelDeleteDelay())
	closer.svc = lifecycle

	statuslog.NewUpdater(ticketRepo, configCache, gw, logger).Register(dispatcher)

	if err := worker.StartAutomationWorker(ctx, controller); err != nil {
		logger.Fatal("failed to start automation controller", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Webhook.Secret, 0)
	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Gateway:        handlers.NewGatewayHandler(lifecycle, controller),
		Workspaces:     handlers.NewWorkspaceHandler(configCache, ticketRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	controller.Stop()
	lifecycle.Shutdown()
	pipeline.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

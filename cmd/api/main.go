package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/escalation-engine/internal/api/http"
	"github.com/spec-kit/escalation-engine/internal/api/http/handlers"
	"github.com/spec-kit/escalation-engine/internal/auth"
	"github.com/spec-kit/escalation-engine/internal/cache"
	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/observability"
	"github.com/spec-kit/escalation-engine/internal/persistence"
	"github.com/spec-kit/escalation-engine/internal/queue"
	"github.com/spec-kit/escalation-engine/internal/repository"
	"github.com/spec-kit/escalation-engine/internal/service"
	"github.com/spec-kit/escalation-engine/internal/trigger"
	"github.com/spec-kit/escalation-engine/internal/worker"
)

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

	clk := clock.System()

	// Without a DSN the engine runs on the in-memory store. Useful for
	// local development; data does not survive a restart.
	var (
		escalationRepo repository.EscalationRepository
		handoffRepo    repository.HandoffRepository
		resolutionRepo repository.ResolutionRepository
		feedbackRepo   repository.FeedbackRepository
		operatorRepo   repository.OperatorRepository
		metricsRepo    repository.MetricsRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		escalationRepo = repository.NewEscalationRepository(pool)
		handoffRepo = repository.NewHandoffRepository(pool)
		resolutionRepo = repository.NewResolutionRepository(pool)
		feedbackRepo = repository.NewFeedbackRepository(pool)
		operatorRepo = repository.NewOperatorRepository(pool)
		metricsRepo = repository.NewMetricsRepository(pool)
	} else {
		logger.Warn("running with in-memory store")
		store := repository.NewMemoryStore()
		escalationRepo = store
		handoffRepo = store.Handoffs()
		resolutionRepo = store.Resolutions()
		feedbackRepo = store.FeedbackRepo()
		operatorRepo = store.Operators()
		metricsRepo = store
	}

	var metricsCache cache.MetricsCache
	if redis.Client != nil && redis.Ping(ctx) == nil {
		metricsCache = cache.NewRedisCache(redis.Client)
	} else {
		metricsCache = cache.NewMemoryCache(clk)
	}

	dispatcher := events.NewInMemoryDispatcher()
	workQueue := queue.New()
	appMetrics := observability.NewMetrics()

	escalationService := service.NewEscalationService(service.EscalationDependencies{
		EscalationRepo: escalationRepo,
		HandoffRepo:    handoffRepo,
		Queue:          workQueue,
		Rules:          service.StaticRuleSetProvider{Default: trigger.DefaultRuleSet()},
		Dispatcher:     dispatcher,
		Clock:          clk,
	})
	handoffService := service.NewHandoffService(service.HandoffDependencies{
		EscalationRepo: escalationRepo,
		HandoffRepo:    handoffRepo,
		OperatorRepo:   operatorRepo,
		Queue:          workQueue,
		Dispatcher:     dispatcher,
		Clock:          clk,
	})
	resolutionService := service.NewResolutionService(service.ResolutionDependencies{
		EscalationRepo: escalationRepo,
		HandoffRepo:    handoffRepo,
		ResolutionRepo: resolutionRepo,
		FeedbackRepo:   feedbackRepo,
		Queue:          workQueue,
		Dispatcher:     dispatcher,
		Clock:          clk,
		MetricsCache:   metricsCache,
		Engine:         cfg.Engine,
	})
	metricsService := service.NewMetricsService(metricsRepo, metricsCache, cfg.Engine, cfg.Cache)
	authService := service.NewAuthService(cfg.Auth, operatorRepo, clk)
	notificationService := service.NewNotificationService(
		dispatcher, service.NewLogNotifier(logger), logger, appMetrics, cfg.Notification)

	worker.StartNotificationWorker(notificationService)

	// The queue is a derived view over the store; rebuild it before
	// accepting traffic so pending escalations survive restarts.
	if err := escalationService.RebuildQueue(ctx); err != nil {
		logger.Fatal("failed to rebuild queue", zap.Error(err))
	}

	var slaWorker *worker.SLAAlertWorker
	if cfg.Engine.SLAAlertWorkerEnabled {
		slaWorker = worker.NewSLAAlertWorker(escalationRepo, dispatcher, logger, clk, cfg.Engine)
		slaWorker.Start(ctx)
	}

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), operatorRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, appMetrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Operators:      handlers.NewOperatorsHandler(authService),
		Escalations:    handlers.NewEscalationsHandler(escalationService, handoffService),
		Resolutions:    handlers.NewResolutionsHandler(resolutionService),
		Metrics:        handlers.NewMetricsHandler(metricsService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if slaWorker != nil {
		slaWorker.Stop()
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

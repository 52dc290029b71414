package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/install-dispatch/internal/api/http"
	"github.com/spec-kit/install-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/install-dispatch/internal/auth"
	"github.com/spec-kit/install-dispatch/internal/config"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/observability"
	"github.com/spec-kit/install-dispatch/internal/persistence"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/service"
	"github.com/spec-kit/install-dispatch/internal/worker"
)

const tokenTTL = 12 * time.Hour

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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	orderRepo := repository.NewOrderRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	slotRepo := repository.NewTechnicianSlotRepository(pool)
	historyRepo := repository.NewOrderHistoryRepository(pool)
	draftStore := repository.NewDraftStore(redis.Client)
	calendarCache := repository.NewCalendarCache(redis.Client)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	machine := lifecycle.NewMachine(nil)

	calendarService := service.NewCalendarService(service.CalendarDependencies{
		SlotRepo:   slotRepo,
		TeamRepo:   teamRepo,
		Cache:      calendarCache,
		CacheTTL:   cfg.Scheduling.CalendarCacheTTL(),
		WindowDays: cfg.Scheduling.CalendarWindowDays,
		Metrics:    metrics,
		Logger:     logger,
	})
	schedulingService := service.NewSchedulingService(service.SchedulingDependencies{
		DraftStore:  draftStore,
		OrderRepo:   orderRepo,
		Calendar:    calendarService,
		Machine:     machine,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		DraftTTL:    cfg.Scheduling.DraftTTL(),
	})
	orderService := service.NewOrderService(service.OrderDependencies{
		OrderRepo:   orderRepo,
		RequestRepo: requestRepo,
		HistoryRepo: historyRepo,
		TeamRepo:    teamRepo,
		Machine:     machine,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: requestRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	bufferService := service.NewBufferService(orderRepo)
	worker.StartActivityWorker(service.NewActivityService(dispatcher, metrics, logger))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, tokenTTL)
	authMiddleware := auth.NewAuthMiddleware(tokens)
	validate := validator.New()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Requests:       handlers.NewRequestsHandler(requestService, orderService, validate),
		Orders:         handlers.NewOrdersHandler(orderService, bufferService, validate),
		Drafts:         handlers.NewDraftsHandler(schedulingService, validate),
		Calendar:       handlers.NewCalendarHandler(calendarService, validate),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

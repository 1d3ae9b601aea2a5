package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/case-service/internal/api/http"
	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/app"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer container.Close()

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, container.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": container.Postgres,
			"redis":    container.Redis,
		}),
		Cases:          handlers.NewCasesHandler(container.Cases),
		Ops:            handlers.NewOpsHandler(container.SLA, container.Outbox),
		AuthMiddleware: auth.NewAuthMiddleware(container.Tokens, container.Users),
		Metrics:        promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{}),
	})

	var scheduler *worker.Scheduler
	if cfg.SLA.SweepEnabled {
		scheduler = worker.NewScheduler(ctx, 5*time.Minute, logger.Named("scheduler"))
		if _, err := scheduler.Add(cfg.SLA.SweepSchedule, worker.NewSLASweepJob(container.SLA, logger.Named("sla_job"))); err != nil {
			logger.Fatal("failed to schedule sla sweep", zap.Error(err))
		}
		scheduler.Start()
	}

	waitDispatcher := func() {}
	if cfg.Outbox.DispatcherEnabled {
		waitDispatcher = worker.StartOutboxWorker(ctx, container.Dispatcher, logger.Named("outbox_worker"))
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	waitDispatcher()
	logger.Info("shutdown complete")
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

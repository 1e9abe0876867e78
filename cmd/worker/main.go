package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abhranil-01/dsport-backend-api/internal/di"
	"github.com/Abhranil-01/dsport-backend-api/internal/handlers"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
	"github.com/Abhranil-01/dsport-backend-api/internal/realtime"
)

func main() {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("dsport-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("worker")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	rt, err := di.LoadRuntime(ctx, logger)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()
	cfg := rt.Config
	if cfg.Mode == config.ModeMemory {
		logger.Fatal("memory mode runs the workers inside the api process")
	}

	stack, err := di.BuildStack(ctx, cfg, di.RoleWorker, logger)
	if err != nil {
		logger.Fatal("failed to initialise adapters", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stack.Close(closeCtx); err != nil {
			logger.Warn("adapter close error", zap.Error(err))
		}
	}()

	relay, err := realtime.NewRelay(stack.Notifications)
	if err != nil {
		logger.Fatal("failed to initialise notification relay", zap.Error(err))
	}
	infra := stack.Infrastructure
	infra.Notifier = relay
	infra.Build = rt.BuildInfo(startedAt)
	infra.HealthChecks = append(infra.HealthChecks, rt.SecretManagerCheck())

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(infra.Build)}
	if container.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(container.Services.System))
	}
	health := handlers.NewHealthHandlers(healthOpts...)
	router := chi.NewRouter()
	router.Get("/healthz", health.Healthz)
	router.Get("/readyz", health.Readyz)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return container.RunWorkers(gctx)
	})
	g.Go(func() error {
		logger.Info("dsport worker health endpoint listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker drained; closing")

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

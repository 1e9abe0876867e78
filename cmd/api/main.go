package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Abhranil-01/dsport-backend-api/internal/di"
	"github.com/Abhranil-01/dsport-backend-api/internal/handlers"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/auth"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/idempotency"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/jobs"
	"github.com/Abhranil-01/dsport-backend-api/internal/platform/observability"
	"github.com/Abhranil-01/dsport-backend-api/internal/realtime"
)

const idempotencyCollection = "idempotency_keys"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("dsport-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
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

	stack, err := di.BuildStack(ctx, cfg, di.RoleAPI, logger)
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

	hub := realtime.NewHub(
		realtime.WithAllowedOrigins(cfg.Realtime.AllowedOrigins),
		realtime.WithSendBuffer(cfg.Realtime.SendBuffer),
		realtime.WithPingInterval(cfg.Realtime.PingInterval),
		realtime.WithLogger(logger.Named("realtime")),
	)
	if err := hub.Init(ctx); err != nil {
		logger.Fatal("failed to initialise realtime hub", zap.Error(err))
	}

	infra := stack.Infrastructure
	infra.Notifier = hub
	infra.Build = rt.BuildInfo(startedAt)
	infra.HealthChecks = append(infra.HealthChecks, rt.SecretManagerCheck())

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	idempotencyStore, err := newIdempotencyStore(cfg, stack)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	backgroundCtx, stopBackground := context.WithCancel(ctx)
	background, backgroundCtx := errgroup.WithContext(backgroundCtx)
	background.Go(func() error {
		idempotency.RunJanitor(backgroundCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
		return nil
	})
	switch {
	case cfg.Mode == config.ModeMemory:
		background.Go(func() error { return container.RunWorkers(backgroundCtx) })
	case stack.Notifications != nil:
		relayed := stack.Notifications
		background.Go(func() error {
			return relayed.Consume(backgroundCtx, realtime.RelayHandler(hub), jobs.ConsumeOptions{Concurrency: 4})
		})
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)
	// Browsers cannot set headers on websocket upgrades, so /ws also accepts ?token=.
	wsAuthenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithQueryToken("token"))

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders,
		handlers.WithPlacementRateLimit(cfg.RateLimits.OrdersPerMinute, 0),
		handlers.WithPlacementMiddlewares(idempotencyMiddleware),
	)
	internalHandlers := handlers.NewInternalHandlers(container.Services.Orders)

	projectID := rt.TraceProjectID()
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		handlers.RateLimit(cfg.RateLimits.DefaultPerMinute),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(infra.Build)}
	if container.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(container.Services.System))
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithRealtime(hub, wsAuthenticator.RequireFirebaseAuth()),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("mode", cfg.Mode))
	go func() {
		serverLogger.Info("dsport api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	select {
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	case <-backgroundCtx.Done():
		logger.Error("background task stopped; shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime hub shutdown error", zap.Error(err))
	}
	stopBackground()
	if err := background.Wait(); err != nil {
		logger.Error("background task error", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func newIdempotencyStore(cfg config.Config, stack *di.Stack) (idempotency.Store, error) {
	if cfg.Mode == config.ModeMemory || stack.Firestore == nil {
		return idempotency.NewMemoryStore(), nil
	}
	return idempotency.NewFirestoreStore(stack.Firestore, idempotencyCollection)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

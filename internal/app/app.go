package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"chatbot-auth/internal/config"
	"chatbot-auth/internal/database"
	"chatbot-auth/internal/event"
	"chatbot-auth/internal/handler"
	"chatbot-auth/internal/metrics"
	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/password"
	"chatbot-auth/internal/repository"
	"chatbot-auth/internal/router"
	"chatbot-auth/internal/service"
	"chatbot-auth/internal/token"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	a := &App{}

	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.DatabaseURL, database.DirectionUp); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	health := map[string]handler.Pinger{"postgres": db}

	var sessions service.SessionStore
	switch cfg.SessionBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

		store := repository.NewRedisSessionStore(client, cfg.RedisKeyPrefix)
		if err := store.Ping(ctx); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sessions = store
		health["redis"] = store
	default:
		sessions = repository.NewSessionRepository(db.SQL)
	}
	slog.Info("session store ready", "backend", cfg.SessionBackend)

	codec, err := token.NewCodec(token.Keys{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	bus := event.NewBus()
	authMetrics := metrics.New()

	authService, err := service.NewAuthService(
		repository.NewUserRepository(db.SQL),
		sessions,
		codec,
		hasher,
		bus,
		authMetrics,
		service.AuthOptions{
			StoreTimeout:  cfg.StoreTimeout,
			RevokeOnReuse: cfg.RevokeOnReuse,
			RotationGrace: cfg.RotationGrace,
		},
	)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}

	auditService := service.NewAuditService(repository.NewAuditRepository(db.SQL), slog.Default())

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	// Runs before db.Close in cleanup order.
	a.cleanupFuncs = append([]func(){cancelBackground}, a.cleanupFuncs...)
	go auditService.Run(backgroundCtx, bus)
	authService.StartSweeper(backgroundCtx, cfg.SessionSweepInterval)

	responder := handler.Responder{ExposeInternalErrors: !cfg.IsProduction()}

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth: handler.NewAuthHandler(authService, auditService, handler.CookieSettings{
			Domain:     cfg.CookieDomain,
			Secure:     cfg.IsProduction(),
			AccessTTL:  cfg.JWTAccessTTL,
			RefreshTTL: cfg.JWTRefreshTTL,
		}, responder),
		Admin:   handler.NewAdminHandler(authService, responder),
		Health:  handler.NewHealthHandler(health),
		Metrics: authMetrics.Handler(),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Drain requests first; the stores they use close afterwards.
	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
	a.cleanupFuncs = nil
}

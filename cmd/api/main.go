package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/BradenHooton/rollcall/internal/app"
	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/cache"
	"github.com/BradenHooton/rollcall/internal/config"
	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/BradenHooton/rollcall/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		sqlDB := stdlib.OpenDBFromPool(db.Pool)
		err := database.Migrate(ctx, sqlDB)
		_ = sqlDB.Close()
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	// Login rate limiter: Redis when configured so replicas share counts
	var limiter auth.AttemptLimiter
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		limiter = auth.NewRedisLimiter(client, cfg.Security.RateLimitMaxAttempts, cfg.Security.RateLimitWindow)
		logger.Info("using redis rate limiter", slog.String("addr", cfg.Redis.Addr))
	} else {
		limiter = auth.NewSlidingWindowLimiter(cfg.Security.RateLimitMaxAttempts, cfg.Security.RateLimitWindow)
	}

	// Security alert emails
	var alerts services.SecurityAlerter = services.NoopAlerter{}
	if cfg.Alerts.To != "" {
		sesAlerter, err := services.NewAWSSESAlerter(cfg.Alerts.AWSRegion, cfg.Alerts.From, cfg.Alerts.To, logger)
		if err != nil {
			logger.Error("failed to initialize alert emails", slog.Any("error", err))
			os.Exit(1)
		}
		alerts = sesAlerter
	}

	application := app.New(cfg, app.Dependencies{
		DB:      db,
		Limiter: limiter,
		Alerts:  alerts,
		Logger:  logger,
	})

	// Bootstrap the administrator if configured
	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := application.Credentials.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		cancel()
		if err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
		} else if created {
			logger.Info("admin user created")
		}
	} else {
		logger.Info("no ADMIN_USERNAME or ADMIN_PASSWORD set, skipping admin user creation")
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if err := application.Cleanup.Start(cleanupCtx); err != nil {
		logger.Error("failed to start cleanup", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      application.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	application.Cleanup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

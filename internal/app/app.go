package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/background"
	"github.com/BradenHooton/rollcall/internal/config"
	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/BradenHooton/rollcall/internal/handlers"
	"github.com/BradenHooton/rollcall/internal/middleware"
	"github.com/BradenHooton/rollcall/internal/repositories"
	"github.com/BradenHooton/rollcall/internal/routes"
	"github.com/BradenHooton/rollcall/internal/services"
	pkgauth "github.com/BradenHooton/rollcall/pkg/auth"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// Dependencies are the pieces chosen by the caller rather than by config alone.
type Dependencies struct {
	DB      *database.DB
	Limiter auth.AttemptLimiter
	Alerts  services.SecurityAlerter
	Logger  *slog.Logger
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// App is the assembled service.
type App struct {
	Handler     http.Handler
	Credentials *services.CredentialService
	Cleanup     *background.CleanupManager
}

// New wires repositories, services, handlers and the router.
func New(cfg *config.Config, deps Dependencies) *App {
	logger := deps.Logger
	auditLogger := pkglogger.NewAuditLogger(logger)

	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	userRepo := repositories.NewUserRepository(deps.DB)
	blockedRepo := repositories.NewBlockedDeviceRepository(deps.DB)
	trustedRepo := repositories.NewTrustedDeviceRepository(deps.DB)
	tokenRepo := repositories.NewRememberTokenRepository(deps.DB)
	revocationRepo := repositories.NewSessionRevocationRepository(deps.DB)

	tokenService := services.NewRememberTokenService(tokenRepo, cfg.Auth.RememberTTL(), cfg.Auth.RememberSliding, logger, auditLogger)
	credentialService := services.NewCredentialService(userRepo, tokenService, pkgauth.NewHasher(cost), logger, auditLogger)
	lockoutService := services.NewLockoutService(blockedRepo, cfg.Auth.MaxFailedAttempts, cfg.Auth.BlockTTL, deps.Alerts, logger, auditLogger)
	deviceService := services.NewTrustedDeviceService(trustedRepo, cfg.Auth.MaxTrustedDevices, logger)
	sessionManager := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, userRepo)

	var timingDelay *auth.TimingDelay
	if cfg.Auth.FailureDelayMax > 0 {
		timingDelay = auth.NewTimingDelay(cfg.Auth.FailureDelayMin, cfg.Auth.FailureDelayMax)
	}

	authService := services.NewAuthService(
		credentialService,
		lockoutService,
		deps.Limiter,
		deviceService,
		tokenService,
		sessionManager,
		revocationRepo,
		userRepo,
		timingDelay,
		deps.Alerts,
		logger,
		auditLogger,
	)
	adminService := services.NewAdminService(userRepo, tokenService, lockoutService, deviceService, logger)

	ipConfig := &pkghttp.IPConfig{
		TrustForwarded: cfg.Security.TrustForwardedHeaders,
		TrustedProxies: cfg.Security.TrustedProxies,
	}
	cookies := auth.CookieConfig{
		Domain: cfg.Security.CookieDomain,
		Secure: cfg.Security.SecureCookies,
	}

	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, credentialService, ipConfig, cookies, cfg.Auth.RememberDays, logger),
		Sessions: handlers.NewSessionHandler(tokenService),
		Devices:  handlers.NewDeviceHandler(deviceService, ipConfig),
		Admin:    handlers.NewAdminHandler(lockoutService, adminService),
		Health:   deps.DB,
	}
	gate := auth.GateConfig{
		LoginPath: cfg.Auth.LoginPath,
		Cookies:   cookies,
		IP:        ipConfig,
		Logger:    logger,

		RememberSliding: cfg.Auth.RememberSliding,
		RememberDays:    cfg.Auth.RememberDays,
	}
	flood := middleware.FloodGuardConfig{
		RequestsPerMinute: cfg.Security.AuthRequestsPerMinute,
		IP:                ipConfig,
	}

	router := routes.NewRouter(routes.Options{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CSRF: middleware.CSRFConfig{
			Key:            []byte(cfg.Security.CSRFKey),
			Secure:         cfg.Security.SecureCookies,
			Domain:         cfg.Security.CookieDomain,
			TrustedOrigins: trustedOrigins(cfg.Server.AllowedOrigins),
			Logger:         logger,
		},
		Logger: logger,
	}, h, authService, gate, flood)

	cleanup := background.NewCleanupManager(cfg.Auth.CleanupSchedule, logger,
		background.CleanupTask{Name: "remember_tokens", Run: tokenService.CleanupExpired},
		background.CleanupTask{Name: "revoked_sessions", Run: authService.CleanupRevokedSessions},
		background.CleanupTask{Name: "rate_limiter", Run: func(ctx context.Context) (int64, error) {
			return 0, deps.Limiter.Cleanup(ctx)
		}},
	)

	return &App{
		Handler:     router,
		Credentials: credentialService,
		Cleanup:     cleanup,
	}
}

// trustedOrigins strips the scheme from CORS origins; gorilla/csrf compares hosts.
func trustedOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

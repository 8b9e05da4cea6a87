package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/handlers"
	"github.com/BradenHooton/rollcall/internal/middleware"
)

// Handlers bundles everything the router dispatches to.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Sessions *handlers.SessionHandler
	Devices  *handlers.DeviceHandler
	Admin    *handlers.AdminHandler
	Health   handlers.HealthChecker
}

// Options configures the global middleware chain.
type Options struct {
	Env            string
	AllowedOrigins []string
	RequestTimeout time.Duration
	CSRF           middleware.CSRFConfig
	Logger         *slog.Logger
}

// NewRouter builds the application router with the global middleware chain and
// every route registered. The CSRF guard wraps the whole router when a key is set.
func NewRouter(
	opts Options,
	h Handlers,
	authn auth.SessionAuthenticator,
	gate auth.GateConfig,
	floodGuard middleware.FloodGuardConfig,
) http.Handler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		Env:             opts.Env,
		NoStorePrefixes: []string{"/auth/", "/admin/"},
	}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(opts.AllowedOrigins)))
	router.Use(middleware.SecureLogger(opts.Logger, gate.IP))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout))

	RegisterRoutes(router, h, authn, gate, floodGuard)

	handler := middleware.CSRFProtection(opts.CSRF)(router)
	if !opts.CSRF.Secure && len(opts.CSRF.Key) > 0 {
		handler = middleware.PlaintextHTTP(handler)
	}
	return handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	authn auth.SessionAuthenticator,
	gate auth.GateConfig,
	floodGuard middleware.FloodGuardConfig,
) {
	router.Get("/health", handlers.Health(h.Health))

	// Public auth endpoints. A session is resolved when present so that a
	// signed-in caller on a trusted device skips the credential check.
	router.Group(func(r chi.Router) {
		r.Use(middleware.FloodGuard(floodGuard))
		r.Use(auth.OptionalSession(authn, gate))

		r.Get("/auth/status", h.Auth.Status)
		r.Post("/auth/login", h.Auth.Login)
	})

	// Everything else sits behind the session gate.
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(authn, gate))

		r.Get("/dashboard", handlers.Dashboard)

		r.Post("/auth/logout", h.Auth.Logout)
		r.With(middleware.FloodGuard(floodGuard)).Post("/auth/password", h.Auth.ChangePassword)

		r.Get("/auth/sessions", h.Sessions.List)
		r.Post("/auth/sessions/revoke-others", h.Sessions.RevokeOthers)
		r.Delete("/auth/sessions/{id}", h.Sessions.Revoke)

		r.Get("/auth/devices", h.Devices.List)
		r.Delete("/auth/devices/{id}", h.Devices.Remove)

		r.Get("/admin/blocked-devices", h.Admin.ListBlockedDevices)
		r.Delete("/admin/blocked-devices/{id}", h.Admin.UnblockDevice)
		r.Get("/admin/security/stats", h.Admin.GetSecurityStats)
	})
}

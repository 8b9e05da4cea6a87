package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"

	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// CSRFConfig configures the double-submit CSRF guard on state-changing requests.
type CSRFConfig struct {
	Key            []byte
	Secure         bool
	Domain         string
	TrustedOrigins []string
	Logger         *slog.Logger
}

// CSRFHeaderName is where JSON clients echo the token back.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFProtection wraps a handler with gorilla/csrf. A zero-length key disables
// the guard. Safe methods pass through and receive a token in the
// X-CSRF-Token response header.
func CSRFProtection(config CSRFConfig) func(http.Handler) http.Handler {
	if len(config.Key) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	opts := []csrf.Option{
		csrf.Secure(config.Secure),
		csrf.Path("/"),
		csrf.CookieName("rollcall_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Logger != nil {
				config.Logger.Warn("CSRF validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", csrf.FailureReason(r).Error()),
				)
			}
			pkghttp.WriteForbidden(w, "CSRF token invalid or missing")
		})),
	}
	if len(config.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(config.TrustedOrigins))
	}
	if config.Domain != "" {
		opts = append(opts, csrf.Domain(config.Domain))
	}
	protect := csrf.Protect(config.Key, opts...)

	return func(next http.Handler) http.Handler {
		return protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CSRFHeaderName, csrf.Token(r))
			next.ServeHTTP(w, r)
		}))
	}
}

// PlaintextHTTP marks requests as plain HTTP for the CSRF origin check. It is
// only meant for local development where the server is not behind TLS.
func PlaintextHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

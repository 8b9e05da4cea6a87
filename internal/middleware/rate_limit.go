package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// FloodGuardConfig bounds raw request volume on the auth endpoints. It sits in
// front of the per-fingerprint login limiter and counts every request.
type FloodGuardConfig struct {
	RequestsPerMinute int
	IP                *pkghttp.IPConfig
}

// DefaultFloodGuard returns the default auth endpoint budget (30 requests per minute)
func DefaultFloodGuard(ip *pkghttp.IPConfig) FloodGuardConfig {
	return FloodGuardConfig{
		RequestsPerMinute: 30,
		IP:                ip,
	}
}

// FloodGuard creates a middleware that rate limits requests by client IP.
// The client IP is resolved with the same proxy rules as device fingerprints.
func FloodGuard(config FloodGuardConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IP), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please slow down.")
		}),
	)
}

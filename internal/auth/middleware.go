package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/BradenHooton/rollcall/internal/models"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// SessionContextKey is the key for storing the session principal in context
const SessionContextKey contextKey = "session"

// SessionAuthenticator is the subset of the login service the gate needs.
type SessionAuthenticator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
	TryAutoLogin(ctx context.Context, cookieValue string, fp models.Fingerprint) (*models.Session, string, error)
}

// GateConfig configures RequireSession and OptionalSession.
type GateConfig struct {
	LoginPath string
	Cookies   CookieConfig
	IP        *pkghttp.IPConfig
	Logger    *slog.Logger

	// RememberSliding re-sets the remember-me cookie for RememberDays after
	// each token login, matching the extended server-side expiry.
	RememberSliding bool
	RememberDays    int
}

// WithSession stores the session in ctx.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

// GetSessionFromContext retrieves the session principal, if any.
func GetSessionFromContext(ctx context.Context) (*models.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*models.Session)
	return s, ok && s != nil
}

// resolveSession finds the caller's session from the session cookie, falling back
// to the remember-me cookie. A token login writes a fresh session cookie.
// Stale cookies are cleared on the way.
func resolveSession(w http.ResponseWriter, r *http.Request, authn SessionAuthenticator, cfg GateConfig) (*models.Session, error) {
	ctx := r.Context()

	if token := GetCookie(r, SessionCookieName); token != "" {
		session, err := authn.ValidateSession(ctx, token)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, models.ErrUnauthorized) {
			return nil, err
		}
		ClearSessionCookie(w, cfg.Cookies)
	}

	remember := GetCookie(r, RememberCookieName)
	if remember == "" {
		return nil, nil
	}

	session, token, err := authn.TryAutoLogin(ctx, remember, CaptureFingerprint(r, cfg.IP))
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			ClearRememberCookie(w, cfg.Cookies)
			return nil, nil
		}
		return nil, err
	}

	SetSessionCookie(w, token, session.ExpiresAt.Sub(session.LoginTime), cfg.Cookies)
	if cfg.RememberSliding && cfg.RememberDays > 0 {
		setCookie(w, RememberCookieName, remember, cfg.RememberDays*86400, cfg.Cookies)
	}
	return session, nil
}

// RequireSession admits requests carrying a valid session or remember-me cookie.
// Other browser requests are redirected to the login page with the original URL
// in the "next" parameter; JSON clients get 401.
func RequireSession(authn SessionAuthenticator, cfg GateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolveSession(w, r, authn, cfg)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Error("session check failed", slog.Any("error", err))
				}
				pkghttp.WriteInternalError(w, "Unable to verify session")
				return
			}

			if session == nil {
				redirectToLogin(w, r, cfg.LoginPath)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalSession attaches the session when one can be resolved and never rejects.
func OptionalSession(authn SessionAuthenticator, cfg GateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolveSession(w, r, authn, cfg)
			if err != nil && cfg.Logger != nil {
				cfg.Logger.Warn("optional session check failed", slog.Any("error", err))
			}
			if session != nil {
				r = r.WithContext(WithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	if wantsJSON(r) {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	target := loginPath
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// SafeRedirectTarget returns next when it is a local absolute path, otherwise "".
func SafeRedirectTarget(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return next
}

package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookieName  = "session"
	RememberCookieName = "remember_token"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetSessionCookie stores the signed session for ttl.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, config CookieConfig) {
	setCookie(w, SessionCookieName, token, int(ttl/time.Second), config)
}

func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, SessionCookieName, config)
}

// SetRememberCookie stores "<selector>:<validator>" for days × 86400 seconds.
func SetRememberCookie(w http.ResponseWriter, selector, validator string, days int, config CookieConfig) {
	setCookie(w, RememberCookieName, FormatRememberCookie(selector, validator), days*86400, config)
}

func ClearRememberCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, RememberCookieName, config)
}

// GetCookie returns the named cookie value or "" when absent.
func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func FormatRememberCookie(selector, validator string) string {
	return selector + ":" + validator
}

// ParseRememberCookie splits a remember-me cookie into selector and validator.
// Both halves must be non-empty unpadded base64url; anything else is rejected.
func ParseRememberCookie(value string) (selector, validator string, ok bool) {
	selector, validator, found := strings.Cut(value, ":")
	if !found || selector == "" || validator == "" {
		return "", "", false
	}
	if !isBase64URL(selector) || !isBase64URL(validator) {
		return "", "", false
	}
	return selector, validator, true
}

func isBase64URL(s string) bool {
	if len(s) > 128 {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

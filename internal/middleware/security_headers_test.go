package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(config SecurityHeadersConfig, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	SecurityHeaders(config)(okHandler()).ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Production(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := serveWithHeaders(SecurityHeadersConfig{Env: "production"}, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.NotContains(t, w.Header().Get("Content-Security-Policy"), "unsafe-eval")
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestSecurityHeaders_NoHSTSOverPlainHTTP(t *testing.T) {
	w := serveWithHeaders(SecurityHeadersConfig{Env: "production"}, httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_Development(t *testing.T) {
	w := serveWithHeaders(SecurityHeadersConfig{Env: "development"}, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "unsafe-inline")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_NoStoreOnAuthPaths(t *testing.T) {
	config := SecurityHeadersConfig{Env: "development", NoStorePrefixes: []string{"/auth/"}}

	w := serveWithHeaders(config, httptest.NewRequest("GET", "/auth/status", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = serveWithHeaders(config, httptest.NewRequest("GET", "/health", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

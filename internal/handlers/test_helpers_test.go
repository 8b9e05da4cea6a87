package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/BradenHooton/rollcall/internal/services"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test/1.0")
	return req
}

// WithSession attaches an authenticated session to the request context
func WithSession(req *http.Request, userID, username string) *http.Request {
	now := time.Now()
	session := &models.Session{
		ID:            "session-" + userID,
		UserID:        userID,
		Username:      username,
		Authenticated: true,
		LoginTime:     now,
		LoginMethod:   models.LoginMethodPassword,
		ExpiresAt:     now.Add(24 * time.Hour),
	}
	return req.WithContext(auth.WithSession(req.Context(), session))
}

// WithURLParam sets a chi URL parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// NewTestLogger discards log output
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ResponseCookies indexes the cookies set on a response by name
func ResponseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc     func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	LogoutFunc    func(ctx context.Context, session *models.Session, cookieValue, ip string) error
	IsBlockedFunc func(ctx context.Context, fp models.Fingerprint) (*services.BlockStatus, error)
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) Logout(ctx context.Context, session *models.Session, cookieValue, ip string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, session, cookieValue, ip)
}

func (m *MockAuthService) IsBlocked(ctx context.Context, fp models.Fingerprint) (*services.BlockStatus, error) {
	if m.IsBlockedFunc == nil {
		return &services.BlockStatus{RemainingAttempts: 3}, nil
	}
	return m.IsBlockedFunc(ctx, fp)
}

// MockPasswordChanger implements PasswordChanger for testing
type MockPasswordChanger struct {
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword string) error
}

func (m *MockPasswordChanger) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword)
}

// MockRememberTokenService implements RememberTokenServiceInterface for testing
type MockRememberTokenService struct {
	ListActiveFunc func(ctx context.Context, userID string) ([]*models.RememberToken, error)
	RevokeByIDFunc func(ctx context.Context, userID, id string) error
	RevokeAllFunc  func(ctx context.Context, userID, exceptSelector string) (int64, error)
}

func (m *MockRememberTokenService) ListActive(ctx context.Context, userID string) ([]*models.RememberToken, error) {
	if m.ListActiveFunc == nil {
		return nil, nil
	}
	return m.ListActiveFunc(ctx, userID)
}

func (m *MockRememberTokenService) RevokeByID(ctx context.Context, userID, id string) error {
	if m.RevokeByIDFunc == nil {
		return nil
	}
	return m.RevokeByIDFunc(ctx, userID, id)
}

func (m *MockRememberTokenService) RevokeAll(ctx context.Context, userID, exceptSelector string) (int64, error) {
	if m.RevokeAllFunc == nil {
		return 0, nil
	}
	return m.RevokeAllFunc(ctx, userID, exceptSelector)
}

// MockTrustedDeviceService implements TrustedDeviceServiceInterface for testing
type MockTrustedDeviceService struct {
	ListFunc   func(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	RemoveFunc func(ctx context.Context, userID, id string) error
}

func (m *MockTrustedDeviceService) List(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx, userID)
}

func (m *MockTrustedDeviceService) Remove(ctx context.Context, userID, id string) error {
	if m.RemoveFunc == nil {
		return nil
	}
	return m.RemoveFunc(ctx, userID, id)
}

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	ListBlockedFunc func(ctx context.Context) ([]*models.BlockedDevice, error)
	UnblockFunc     func(ctx context.Context, id, actorID string) error
}

func (m *MockLockoutService) ListBlocked(ctx context.Context) ([]*models.BlockedDevice, error) {
	if m.ListBlockedFunc == nil {
		return nil, nil
	}
	return m.ListBlockedFunc(ctx)
}

func (m *MockLockoutService) Unblock(ctx context.Context, id, actorID string) error {
	if m.UnblockFunc == nil {
		return nil
	}
	return m.UnblockFunc(ctx, id, actorID)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetSecurityStatsFunc func(ctx context.Context) (*services.SecurityStatsResponse, error)
}

func (m *MockAdminService) GetSecurityStats(ctx context.Context) (*services.SecurityStatsResponse, error) {
	if m.GetSecurityStatsFunc == nil {
		return &services.SecurityStatsResponse{}, nil
	}
	return m.GetSecurityStatsFunc(ctx)
}

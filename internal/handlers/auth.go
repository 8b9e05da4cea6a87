package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/BradenHooton/rollcall/internal/services"
	pkgauth "github.com/BradenHooton/rollcall/pkg/auth"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, session *models.Session, cookieValue, ip string) error
	IsBlocked(ctx context.Context, fp models.Fingerprint) (*services.BlockStatus, error)
}

// PasswordChanger changes the password of a signed-in user
type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service      AuthServiceInterface
	passwords    PasswordChanger
	ipConfig     *pkghttp.IPConfig
	cookies      auth.CookieConfig
	rememberDays int
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, passwords PasswordChanger, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig, rememberDays int, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		passwords:    passwords,
		ipConfig:     ipConfig,
		cookies:      cookies,
		rememberDays: rememberDays,
		logger:       logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=128"`
	Remember bool   `json:"remember"`
	Next     string `json:"next" validate:"max=2048"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Authenticated        bool      `json:"authenticated"`
	Username             string    `json:"username"`
	LoginMethod          string    `json:"login_method"`
	ExpiresAt            time.Time `json:"expires_at"`
	Remembered           bool      `json:"remembered"`
	AlreadyAuthenticated bool      `json:"already_authenticated,omitempty"`
	RedirectTo           string    `json:"redirect_to,omitempty"`
}

// StatusResponse describes the caller's device and session state
type StatusResponse struct {
	Authenticated     bool   `json:"authenticated"`
	Username          string `json:"username,omitempty"`
	LoginMethod       string `json:"login_method,omitempty"`
	Blocked           bool   `json:"blocked"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// decodeLoginRequest accepts a JSON body or an HTML form post.
func decodeLoginRequest(r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		req.Remember = isTruthy(r.PostForm.Get("remember"))
		req.Next = r.PostForm.Get("next")
	}

	if req.Next == "" {
		req.Next = r.URL.Query().Get("next")
	}
	return req, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLoginRequest(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	current, _ := auth.GetSessionFromContext(r.Context())

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Username:    req.Username,
		Password:    req.Password,
		Remember:    req.Remember,
		Fingerprint: auth.CaptureFingerprint(r, h.ipConfig),
		Current:     current,
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	session := result.Session
	if !result.AlreadyAuthenticated {
		auth.SetSessionCookie(w, result.SessionToken, session.ExpiresAt.Sub(session.LoginTime), h.cookies)
		if result.Remember != nil {
			auth.SetRememberCookie(w, result.Remember.Selector, result.Remember.Validator, h.rememberDays, h.cookies)
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Authenticated:        true,
		Username:             session.Username,
		LoginMethod:          session.LoginMethod,
		ExpiresAt:            session.ExpiresAt,
		Remembered:           result.Remember != nil,
		AlreadyAuthenticated: result.AlreadyAuthenticated,
		RedirectTo:           auth.SafeRedirectTarget(req.Next),
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var failed *models.LoginFailedError
	switch {
	case errors.As(err, &failed):
		pkghttp.WriteLoginFailure(w, failed.RemainingAttempts)
	case errors.Is(err, models.ErrDeviceBlocked):
		pkghttp.WriteDeviceBlocked(w, "This device has been blocked after too many failed login attempts. Contact an administrator.")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Invalid username or password")
	default:
		h.logger.Error("login failed with internal error", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.GetSessionFromContext(r.Context())
	remember := auth.GetCookie(r, auth.RememberCookieName)
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Logout(r.Context(), session, remember, ip); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to log out")
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	if remember != "" {
		auth.ClearRememberCookie(w, h.cookies)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Status handles GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.IsBlocked(r.Context(), auth.CaptureFingerprint(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to read device status")
		return
	}

	resp := StatusResponse{
		Blocked:           status.Blocked,
		RemainingAttempts: status.RemainingAttempts,
	}
	if session, ok := auth.GetSessionFromContext(r.Context()); ok {
		resp.Authenticated = true
		resp.Username = session.Username
		resp.LoginMethod = session.LoginMethod
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ChangePassword handles POST /auth/password. Every session and remember-me
// token of the user is invalidated, so the caller must log in again.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.passwords.ChangePassword(r.Context(), session.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var verr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &verr):
			pkghttp.WriteBadRequest(w, verr.Error())
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		default:
			pkghttp.WriteInternalError(w, "Failed to change password")
		}
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	auth.ClearRememberCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed. Please log in again."})
}

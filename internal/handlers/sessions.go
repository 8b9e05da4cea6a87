package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// sessionUserAgentLength is how much of a user agent the session list shows.
const sessionUserAgentLength = 50

// RememberTokenServiceInterface defines remember-me session management
type RememberTokenServiceInterface interface {
	ListActive(ctx context.Context, userID string) ([]*models.RememberToken, error)
	RevokeByID(ctx context.Context, userID, id string) error
	RevokeAll(ctx context.Context, userID, exceptSelector string) (int64, error)
}

// SessionHandler lists and revokes the remember-me tokens of the signed-in user
type SessionHandler struct {
	tokens RememberTokenServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(tokens RememberTokenServiceInterface) *SessionHandler {
	return &SessionHandler{tokens: tokens}
}

// SessionResponse is one remembered browser
type SessionResponse struct {
	ID        string     `json:"id"`
	UserAgent string     `json:"user_agent"`
	IPAddress string     `json:"ip_address"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	Current   bool       `json:"current"`
}

// RevokeOthersResponse reports how many other sessions were revoked
type RevokeOthersResponse struct {
	Revoked int64 `json:"revoked"`
}

func currentSelector(r *http.Request) string {
	selector, _, ok := auth.ParseRememberCookie(auth.GetCookie(r, auth.RememberCookieName))
	if !ok {
		return ""
	}
	return selector
}

// List handles GET /auth/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	tokens, err := h.tokens.ListActive(r.Context(), session.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list sessions")
		return
	}

	current := currentSelector(r)
	resp := make([]SessionResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, SessionResponse{
			ID:        t.ID,
			UserAgent: pkglogger.TruncateUserAgent(t.UserAgent, sessionUserAgentLength),
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			LastUsed:  t.LastUsed,
			Current:   current != "" && t.Selector == current,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Revoke handles DELETE /auth/sessions/{id}
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := validate.Var(id, "required,uuid"); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid session id")
		return
	}

	if err := h.tokens.RevokeByID(r.Context(), session.UserID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to revoke session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeOthers handles POST /auth/sessions/revoke-others. The token in the
// caller's own remember-me cookie is kept.
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	count, err := h.tokens.RevokeAll(r.Context(), session.UserID, currentSelector(r))
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to revoke sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RevokeOthersResponse{Revoked: count})
}

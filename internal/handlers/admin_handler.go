package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/BradenHooton/rollcall/internal/services"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// LockoutServiceInterface defines the blocked device administration contract.
type LockoutServiceInterface interface {
	ListBlocked(ctx context.Context) ([]*models.BlockedDevice, error)
	Unblock(ctx context.Context, id, actorID string) error
}

// AdminServiceInterface defines the security stats contract.
type AdminServiceInterface interface {
	GetSecurityStats(ctx context.Context) (*services.SecurityStatsResponse, error)
}

// AdminHandler handles administration HTTP requests.
type AdminHandler struct {
	lockout LockoutServiceInterface
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(lockout LockoutServiceInterface, service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{lockout: lockout, service: service}
}

// ListBlockedDevices handles GET /admin/blocked-devices
func (h *AdminHandler) ListBlockedDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.lockout.ListBlocked(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list blocked devices")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, devices)
}

// UnblockDevice handles DELETE /admin/blocked-devices/{id}
func (h *AdminHandler) UnblockDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validate.Var(id, "required,uuid"); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid device id")
		return
	}

	var actorID string
	if session, ok := auth.GetSessionFromContext(r.Context()); ok {
		actorID = session.UserID
	}

	if err := h.lockout.Unblock(r.Context(), id, actorID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Blocked device not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to unblock device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSecurityStats handles GET /admin/security/stats
func (h *AdminHandler) GetSecurityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetSecurityStats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve security stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

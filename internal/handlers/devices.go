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
)

// TrustedDeviceServiceInterface defines trusted device management
type TrustedDeviceServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	Remove(ctx context.Context, userID, id string) error
}

// DeviceHandler exposes the signed-in user's trusted devices
type DeviceHandler struct {
	devices  TrustedDeviceServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(devices TrustedDeviceServiceInterface, ipConfig *pkghttp.IPConfig) *DeviceHandler {
	return &DeviceHandler{devices: devices, ipConfig: ipConfig}
}

// DeviceResponse is one trusted device
type DeviceResponse struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// List handles GET /auth/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	devices, err := h.devices.List(r.Context(), session.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list devices")
		return
	}

	current := auth.CaptureFingerprint(r, h.ipConfig).Hash()
	resp := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, DeviceResponse{
			ID:        d.ID,
			IPAddress: d.IPAddress,
			UserAgent: d.UserAgent,
			LastLogin: d.LastLogin,
			CreatedAt: d.CreatedAt,
			Current:   d.FingerprintHash == current,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Remove handles DELETE /auth/devices/{id}
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := validate.Var(id, "required,uuid"); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid device id")
		return
	}

	if err := h.devices.Remove(r.Context(), session.UserID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Device not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to remove device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

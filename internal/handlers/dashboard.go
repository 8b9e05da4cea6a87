package handlers

import (
	"net/http"
	"time"

	"github.com/BradenHooton/rollcall/internal/auth"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// DashboardResponse is the principal seen by a protected page
type DashboardResponse struct {
	Username    string    `json:"username"`
	LoginMethod string    `json:"login_method"`
	LoginTime   time.Time `json:"login_time"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Dashboard handles GET /dashboard. It stands in for the attendance pages
// that sit behind RequireSession.
func Dashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DashboardResponse{
		Username:    session.Username,
		LoginMethod: session.LoginMethod,
		LoginTime:   session.LoginTime,
		ExpiresAt:   session.ExpiresAt,
	})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/rollcall/internal/database"
	pkghttp "github.com/BradenHooton/rollcall/pkg/http"
)

// HealthChecker reports whether the backing database answers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type poolStatsReporter interface {
	Stats() database.PoolStats
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string              `json:"status"`
	Database string              `json:"database"`
	Pool     *database.PoolStats `json:"pool,omitempty"`
}

// Health returns a handler for GET /health that pings the database
func Health(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
			return
		}
		resp := HealthResponse{Status: "healthy", Database: "up"}
		if reporter, ok := db.(poolStatsReporter); ok {
			stats := reporter.Stats()
			resp.Pool = &stats
		}
		pkghttp.WriteJSON(w, http.StatusOK, resp)
	}
}

package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRevocationRepository keeps a denylist of session ids ended by logout.
type SessionRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRevocationRepository(db *database.DB) *SessionRevocationRepository {
	return &SessionRevocationRepository{pool: db.Pool}
}

// Revoke denylists a session until its natural expiry. Revoking twice is a no-op.
func (r *SessionRevocationRepository) Revoke(ctx context.Context, sessionID, userID string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, sessionID, userID, expiresAt)
	return database.MapPostgresError(err)
}

func (r *SessionRevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE session_id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// CleanupExpired drops denylist entries whose sessions would have expired anyway.
func (r *SessionRevocationRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

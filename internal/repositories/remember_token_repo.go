package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RememberTokenRepository persists remember-me tokens in admin_tokens.
type RememberTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRememberTokenRepository(db *database.DB) *RememberTokenRepository {
	return &RememberTokenRepository{pool: db.Pool}
}

const rememberTokenColumns = `id, user_id, selector, validator_hash, user_agent, ip_address, created_at, expires_at, last_used`

func scanRememberToken(scanner rowScanner) (*models.RememberToken, error) {
	var t models.RememberToken
	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Selector, &t.ValidatorHash, &t.UserAgent, &t.IPAddress,
		&t.CreatedAt, &t.ExpiresAt, &t.LastUsed,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

func (r *RememberTokenRepository) Create(ctx context.Context, token *models.RememberToken) error {
	query := `
		INSERT INTO admin_tokens (user_id, selector, validator_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		token.UserID, token.Selector, token.ValidatorHash, token.UserAgent, token.IPAddress,
		token.CreatedAt, token.ExpiresAt,
	).Scan(&token.ID)
	return database.MapPostgresError(err)
}

func (r *RememberTokenRepository) GetBySelector(ctx context.Context, selector string) (*models.RememberToken, error) {
	query := `SELECT ` + rememberTokenColumns + ` FROM admin_tokens WHERE selector = $1`
	return scanRememberToken(r.pool.QueryRow(ctx, query, selector))
}

// DeleteBySelector removes one token and reports whether it existed.
func (r *RememberTokenRepository) DeleteBySelector(ctx context.Context, selector string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM admin_tokens WHERE selector = $1`, selector)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *RememberTokenRepository) DeleteByID(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM admin_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteAllForUser removes every token of userID except exceptSelector (when non-empty).
func (r *RememberTokenRepository) DeleteAllForUser(ctx context.Context, userID, exceptSelector string) (int64, error) {
	query := `DELETE FROM admin_tokens WHERE user_id = $1 AND ($2 = '' OR selector <> $2)`
	result, err := r.pool.Exec(ctx, query, userID, exceptSelector)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// MarkUsed stamps last_used and, when expiresAt is non-nil, moves the expiry.
func (r *RememberTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time, expiresAt *time.Time) error {
	query := `UPDATE admin_tokens SET last_used = $2, expires_at = COALESCE($3, expires_at) WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at, expiresAt)
	return database.MapPostgresError(err)
}

func (r *RememberTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM admin_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ListActiveByUser returns unexpired tokens for userID, newest first.
func (r *RememberTokenRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.RememberToken, error) {
	query := `
		SELECT ` + rememberTokenColumns + `
		FROM admin_tokens
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query remember tokens: %w", err)
	}
	return scanAll(rows, scanRememberToken)
}

func (r *RememberTokenRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_tokens WHERE expires_at > $1`, now).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlockedDeviceRepository persists failed-login counters per fingerprint.
type BlockedDeviceRepository struct {
	pool *pgxpool.Pool
}

func NewBlockedDeviceRepository(db *database.DB) *BlockedDeviceRepository {
	return &BlockedDeviceRepository{pool: db.Pool}
}

const blockedDeviceColumns = `id, fingerprint_hash, ip_address, user_agent, failed_attempts, blocked_at, created_at, updated_at`

func scanBlockedDevice(scanner rowScanner) (*models.BlockedDevice, error) {
	var d models.BlockedDevice
	err := scanner.Scan(
		&d.ID, &d.FingerprintHash, &d.IPAddress, &d.UserAgent,
		&d.FailedAttempts, &d.BlockedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &d, nil
}

func (r *BlockedDeviceRepository) GetByFingerprint(ctx context.Context, fingerprintHash string) (*models.BlockedDevice, error) {
	query := `SELECT ` + blockedDeviceColumns + ` FROM blocked_devices WHERE fingerprint_hash = $1`
	return scanBlockedDevice(r.pool.QueryRow(ctx, query, fingerprintHash))
}

// IncrementFailure creates the record on first failure or bumps the counter,
// stamping blocked_at the first time the count reaches maxAttempts. The upsert
// keeps concurrent first failures from racing.
func (r *BlockedDeviceRepository) IncrementFailure(ctx context.Context, fp models.Fingerprint, maxAttempts int) (*models.BlockedDevice, error) {
	query := `
		INSERT INTO blocked_devices (fingerprint_hash, ip_address, user_agent, failed_attempts, blocked_at)
		VALUES ($1, $2, $3, 1, CASE WHEN 1 >= $4::int THEN NOW() ELSE NULL END)
		ON CONFLICT (fingerprint_hash) DO UPDATE SET
			failed_attempts = blocked_devices.failed_attempts + 1,
			blocked_at = CASE
				WHEN blocked_devices.failed_attempts + 1 >= $4::int THEN COALESCE(blocked_devices.blocked_at, NOW())
				ELSE blocked_devices.blocked_at
			END,
			updated_at = NOW()
		RETURNING ` + blockedDeviceColumns

	return scanBlockedDevice(r.pool.QueryRow(ctx, query, fp.Hash(), fp.IPAddress, fp.UserAgent, maxAttempts))
}

// DeleteByFingerprint removes the counter. Deleting a missing record is not an error.
func (r *BlockedDeviceRepository) DeleteByFingerprint(ctx context.Context, fingerprintHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM blocked_devices WHERE fingerprint_hash = $1`, fingerprintHash)
	return database.MapPostgresError(err)
}

func (r *BlockedDeviceRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM blocked_devices WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListBlocked returns records at or above minAttempts, most recent first.
func (r *BlockedDeviceRepository) ListBlocked(ctx context.Context, minAttempts int) ([]*models.BlockedDevice, error) {
	query := `
		SELECT ` + blockedDeviceColumns + `
		FROM blocked_devices
		WHERE failed_attempts >= $1
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query, minAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked devices: %w", err)
	}
	return scanAll(rows, scanBlockedDevice)
}

func (r *BlockedDeviceRepository) CountBlocked(ctx context.Context, minAttempts int) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocked_devices WHERE failed_attempts >= $1`, minAttempts).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// scanAll drains rows through scan.
func scanAll[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]*T, error) {
	defer rows.Close()

	out := make([]*T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

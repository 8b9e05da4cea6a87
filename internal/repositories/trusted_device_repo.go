package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/rollcall/internal/database"
	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrustedDeviceRepository stores the per-user set of recognised fingerprints.
type TrustedDeviceRepository struct {
	pool *pgxpool.Pool
}

func NewTrustedDeviceRepository(db *database.DB) *TrustedDeviceRepository {
	return &TrustedDeviceRepository{pool: db.Pool}
}

const trustedDeviceColumns = `id, user_id, fingerprint_hash, ip_address, user_agent, last_login, created_at`

func scanTrustedDevice(scanner rowScanner) (*models.TrustedDevice, error) {
	var d models.TrustedDevice
	err := scanner.Scan(
		&d.ID, &d.UserID, &d.FingerprintHash, &d.IPAddress, &d.UserAgent, &d.LastLogin, &d.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &d, nil
}

// Touch sets last_login for (userID, fingerprintHash) and reports whether the record exists.
func (r *TrustedDeviceRepository) Touch(ctx context.Context, userID, fingerprintHash string, at time.Time) (bool, error) {
	query := `UPDATE trusted_devices SET last_login = $3 WHERE user_id = $1 AND fingerprint_hash = $2`
	result, err := r.pool.Exec(ctx, query, userID, fingerprintHash, at)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUser returns the user's devices, most recently used first.
func (r *TrustedDeviceRepository) ListByUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	query := `
		SELECT ` + trustedDeviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1
		ORDER BY last_login DESC, created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trusted devices: %w", err)
	}
	return scanAll(rows, scanTrustedDevice)
}

// Upsert inserts the device or, when another request inserted it first, touches it.
func (r *TrustedDeviceRepository) Upsert(ctx context.Context, userID string, fp models.Fingerprint, at time.Time) (*models.TrustedDevice, error) {
	query := `
		INSERT INTO trusted_devices (user_id, fingerprint_hash, ip_address, user_agent, last_login, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, fingerprint_hash) DO UPDATE SET last_login = EXCLUDED.last_login
		RETURNING ` + trustedDeviceColumns

	return scanTrustedDevice(r.pool.QueryRow(ctx, query, userID, fp.Hash(), fp.IPAddress, fp.UserAgent, at))
}

func (r *TrustedDeviceRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM trusted_devices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TrimToLimit deletes every device of userID beyond the keep most recently used.
func (r *TrustedDeviceRepository) TrimToLimit(ctx context.Context, userID string, keep int) (int64, error) {
	query := `
		DELETE FROM trusted_devices
		WHERE id IN (
			SELECT id FROM trusted_devices
			WHERE user_id = $1
			ORDER BY last_login DESC, created_at DESC
			OFFSET $2
		)
	`
	result, err := r.pool.Exec(ctx, query, userID, keep)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func (r *TrustedDeviceRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trusted_devices`).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

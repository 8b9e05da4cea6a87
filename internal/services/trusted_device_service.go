package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/rollcall/internal/models"
)

// TrustedDeviceRepository defines storage for per-user trusted devices
type TrustedDeviceRepository interface {
	Touch(ctx context.Context, userID, fingerprintHash string, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	Upsert(ctx context.Context, userID string, fp models.Fingerprint, at time.Time) (*models.TrustedDevice, error)
	Delete(ctx context.Context, userID, id string) error
	TrimToLimit(ctx context.Context, userID string, keep int) (int64, error)
	CountAll(ctx context.Context) (int64, error)
}

// TrustedDeviceService keeps at most maxDevices fingerprints per user,
// evicting the one with the oldest last login when a new one arrives.
type TrustedDeviceService struct {
	repo       TrustedDeviceRepository
	maxDevices int
	logger     *slog.Logger
	now        func() time.Time
}

// NewTrustedDeviceService creates a new TrustedDeviceService
func NewTrustedDeviceService(repo TrustedDeviceRepository, maxDevices int, logger *slog.Logger) *TrustedDeviceService {
	return &TrustedDeviceService{
		repo:       repo,
		maxDevices: maxDevices,
		logger:     logger,
		now:        time.Now,
	}
}

// IsTrusted reports whether fp is registered for userID and refreshes its last login.
func (s *TrustedDeviceService) IsTrusted(ctx context.Context, userID string, fp models.Fingerprint) (bool, error) {
	ok, err := s.repo.Touch(ctx, userID, fp.Hash(), s.now())
	if err != nil {
		s.logger.Error("failed to check trusted device", slog.String("user_id", userID), slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return ok, nil
}

// Register records fp as trusted for userID.
func (s *TrustedDeviceService) Register(ctx context.Context, userID string, fp models.Fingerprint) error {
	now := s.now()
	hash := fp.Hash()

	touched, err := s.repo.Touch(ctx, userID, hash, now)
	if err != nil {
		s.logger.Error("failed to touch trusted device", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if touched {
		return nil
	}

	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list trusted devices", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if len(devices) >= s.maxDevices {
		oldest := devices[0]
		for _, d := range devices[1:] {
			if d.LastLogin.Before(oldest.LastLogin) {
				oldest = d
			}
		}
		if err := s.repo.Delete(ctx, userID, oldest.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to evict trusted device", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		s.logger.Info("evicted least recently used trusted device",
			slog.String("user_id", userID),
			slog.String("device_id", oldest.ID))
	}

	if _, err := s.repo.Upsert(ctx, userID, fp, now); err != nil {
		s.logger.Error("failed to register trusted device", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Two first-time logins racing past the count check can both insert.
	if trimmed, err := s.repo.TrimToLimit(ctx, userID, s.maxDevices); err != nil {
		s.logger.Error("failed to trim trusted devices", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	} else if trimmed > 0 {
		s.logger.Warn("trimmed trusted devices over limit", slog.String("user_id", userID), slog.Int64("removed", trimmed))
	}

	return nil
}

// List returns the user's trusted devices, most recently used first.
func (s *TrustedDeviceService) List(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list trusted devices", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return devices, nil
}

// Remove forgets one trusted device of the user.
func (s *TrustedDeviceService) Remove(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to remove trusted device", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// CountAll returns the number of trusted devices across all users.
func (s *TrustedDeviceService) CountAll(ctx context.Context) (int64, error) {
	count, err := s.repo.CountAll(ctx)
	if err != nil {
		s.logger.Error("failed to count trusted devices", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}

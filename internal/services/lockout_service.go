package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/rollcall/internal/models"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// BlockedDeviceRepository defines storage for per-fingerprint failure counters
type BlockedDeviceRepository interface {
	GetByFingerprint(ctx context.Context, fingerprintHash string) (*models.BlockedDevice, error)
	IncrementFailure(ctx context.Context, fp models.Fingerprint, maxAttempts int) (*models.BlockedDevice, error)
	DeleteByFingerprint(ctx context.Context, fingerprintHash string) error
	DeleteByID(ctx context.Context, id string) error
	ListBlocked(ctx context.Context, minAttempts int) ([]*models.BlockedDevice, error)
	CountBlocked(ctx context.Context, minAttempts int) (int64, error)
}

// LockoutService counts failed logins per device fingerprint. A fingerprint is
// blocked once its counter reaches maxAttempts. With blockTTL of zero the block
// lasts until an administrator removes it.
type LockoutService struct {
	repo        BlockedDeviceRepository
	maxAttempts int
	blockTTL    time.Duration
	alerts      SecurityAlerter
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo BlockedDeviceRepository, maxAttempts int, blockTTL time.Duration, alerts SecurityAlerter, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	if alerts == nil {
		alerts = NoopAlerter{}
	}
	return &LockoutService{
		repo:        repo,
		maxAttempts: maxAttempts,
		blockTTL:    blockTTL,
		alerts:      alerts,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// MaxAttempts returns the number of failures that blocks a fingerprint.
func (s *LockoutService) MaxAttempts() int {
	return s.maxAttempts
}

// Remaining returns how many failures are left before a fingerprint with count failures is blocked.
func (s *LockoutService) Remaining(count int) int {
	return max(0, s.maxAttempts-count)
}

// Attempts returns the current failure count for fp, clearing an expired block first.
func (s *LockoutService) Attempts(ctx context.Context, fp models.Fingerprint) (int, error) {
	record, err := s.repo.GetByFingerprint(ctx, fp.Hash())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, nil
		}
		s.logger.Error("failed to load blocked device", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if s.expired(record) {
		if err := s.repo.DeleteByFingerprint(ctx, record.FingerprintHash); err != nil {
			s.logger.Error("failed to clear expired block", slog.Any("error", err))
			return 0, models.ErrInternalServer
		}
		s.logger.Info("device block expired", slog.String("ip_address", record.IPAddress))
		return 0, nil
	}

	return record.FailedAttempts, nil
}

// IsBlocked reports whether fp has reached the failure limit.
func (s *LockoutService) IsBlocked(ctx context.Context, fp models.Fingerprint) (bool, error) {
	count, err := s.Attempts(ctx, fp)
	if err != nil {
		return false, err
	}
	return count >= s.maxAttempts, nil
}

// RecordFailure increments the counter for fp and returns the new count.
func (s *LockoutService) RecordFailure(ctx context.Context, fp models.Fingerprint) (int, error) {
	record, err := s.repo.IncrementFailure(ctx, fp, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if record.FailedAttempts == s.maxAttempts {
		s.logger.Warn("device blocked",
			slog.String("ip_address", fp.IPAddress),
			slog.Int("failed_attempts", record.FailedAttempts))
		s.auditLogger.LogDeviceBlocked(fp.IPAddress, fp.UserAgent, record.FailedAttempts)
		s.alerts.DeviceBlocked(ctx, fp, record.FailedAttempts)
	}

	return record.FailedAttempts, nil
}

// Clear removes the counter for fp.
func (s *LockoutService) Clear(ctx context.Context, fp models.Fingerprint) error {
	if err := s.repo.DeleteByFingerprint(ctx, fp.Hash()); err != nil {
		s.logger.Error("failed to clear failed attempts", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// ListBlocked returns every fingerprint currently at the failure limit.
func (s *LockoutService) ListBlocked(ctx context.Context) ([]*models.BlockedDevice, error) {
	records, err := s.repo.ListBlocked(ctx, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to list blocked devices", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	active := make([]*models.BlockedDevice, 0, len(records))
	for _, r := range records {
		if !s.expired(r) {
			active = append(active, r)
		}
	}
	return active, nil
}

// CountBlocked returns the number of fingerprints at the failure limit whose
// block has not expired. It agrees with len(ListBlocked).
func (s *LockoutService) CountBlocked(ctx context.Context) (int64, error) {
	if s.blockTTL > 0 {
		active, err := s.ListBlocked(ctx)
		if err != nil {
			return 0, err
		}
		return int64(len(active)), nil
	}

	count, err := s.repo.CountBlocked(ctx, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to count blocked devices", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}

// Unblock deletes a blocked device record by ID. This is the manual recovery path.
func (s *LockoutService) Unblock(ctx context.Context, id, actorID string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to unblock device", slog.String("id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(pkglogger.EventDeviceUnblocked, actorID, "", map[string]string{"device_id": id})
	return nil
}

func (s *LockoutService) expired(record *models.BlockedDevice) bool {
	if s.blockTTL <= 0 || record.BlockedAt == nil {
		return false
	}
	return !s.now().Before(record.BlockedAt.Add(s.blockTTL))
}

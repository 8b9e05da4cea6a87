package services

import (
	"context"
	"log/slog"
	"time"
)

// SecurityStatsResponse contains aggregate security metrics.
type SecurityStatsResponse struct {
	Users             int64  `json:"users"`
	ActiveTokens      int64  `json:"active_remember_tokens"`
	BlockedDevices    int64  `json:"blocked_devices"`
	TrustedDevices    int64  `json:"trusted_devices"`
	MaxFailedAttempts int    `json:"max_failed_attempts"`
	RememberTokenDays int    `json:"remember_token_days"`
	GeneratedAt       string `json:"generated_at"`
}

// AdminService aggregates data for admin dashboard endpoints.
type AdminService struct {
	users   UserRepository
	tokens  *RememberTokenService
	lockout *LockoutService
	devices *TrustedDeviceService
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(users UserRepository, tokens *RememberTokenService, lockout *LockoutService, devices *TrustedDeviceService, logger *slog.Logger) *AdminService {
	return &AdminService{
		users:   users,
		tokens:  tokens,
		lockout: lockout,
		devices: devices,
		logger:  logger,
		now:     time.Now,
	}
}

// GetSecurityStats returns counts of users, active tokens, blocked and trusted devices.
func (s *AdminService) GetSecurityStats(ctx context.Context) (*SecurityStatsResponse, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		s.logger.Error("stats: failed to count users", slog.Any("error", err))
		return nil, err
	}

	tokens, err := s.tokens.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	blocked, err := s.lockout.CountBlocked(ctx)
	if err != nil {
		return nil, err
	}

	trusted, err := s.devices.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	return &SecurityStatsResponse{
		Users:             users,
		ActiveTokens:      tokens,
		BlockedDevices:    blocked,
		TrustedDevices:    trusted,
		MaxFailedAttempts: s.lockout.MaxAttempts(),
		RememberTokenDays: int(s.tokens.TTL() / (24 * time.Hour)),
		GeneratedAt:       s.now().UTC().Format(time.RFC3339),
	}, nil
}

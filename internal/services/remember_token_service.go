package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/rollcall/internal/models"
	pkgauth "github.com/BradenHooton/rollcall/pkg/auth"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// tokenBytes is the entropy of each half of a remember-me cookie (256 bits).
const tokenBytes = 32

// ErrTokenMismatch is returned by Verify when the selector exists but the
// validator is wrong. The token has already been deleted.
var ErrTokenMismatch = fmt.Errorf("%w: remember token validator mismatch", models.ErrUnauthorized)

// RememberTokenRepository defines storage for selector/validator tokens
type RememberTokenRepository interface {
	Create(ctx context.Context, token *models.RememberToken) error
	GetBySelector(ctx context.Context, selector string) (*models.RememberToken, error)
	DeleteBySelector(ctx context.Context, selector string) (bool, error)
	DeleteByID(ctx context.Context, userID, id string) error
	DeleteAllForUser(ctx context.Context, userID, exceptSelector string) (int64, error)
	MarkUsed(ctx context.Context, id string, at time.Time, expiresAt *time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.RememberToken, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

// IssuedToken is the plaintext pair handed to the client exactly once.
type IssuedToken struct {
	Selector  string
	Validator string
	ExpiresAt time.Time
}

// RememberTokenService issues and verifies long-lived remember-me tokens.
type RememberTokenService struct {
	repo        RememberTokenRepository
	ttl         time.Duration
	sliding     bool
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewRememberTokenService creates a new RememberTokenService
func NewRememberTokenService(repo RememberTokenRepository, ttl time.Duration, sliding bool, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *RememberTokenService {
	return &RememberTokenService{
		repo:        repo,
		ttl:         ttl,
		sliding:     sliding,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// TTL returns the token lifetime.
func (s *RememberTokenService) TTL() time.Duration {
	return s.ttl
}

// HashValidator returns the stored form of a validator.
func HashValidator(validator string) string {
	sum := sha256.Sum256([]byte(validator))
	return hex.EncodeToString(sum[:])
}

// Issue creates a token for userID. Only the validator hash is persisted.
func (s *RememberTokenService) Issue(ctx context.Context, userID, userAgent, ipAddress string) (*IssuedToken, error) {
	selector, err := pkgauth.GenerateRandomToken(tokenBytes)
	if err != nil {
		s.logger.Error("failed to generate token selector", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	validator, err := pkgauth.GenerateRandomToken(tokenBytes)
	if err != nil {
		s.logger.Error("failed to generate token validator", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	token := &models.RememberToken{
		UserID:        userID,
		Selector:      selector,
		ValidatorHash: HashValidator(validator),
		UserAgent:     userAgent,
		IPAddress:     ipAddress,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	if err := s.repo.Create(ctx, token); err != nil {
		s.logger.Error("failed to store remember token", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogTokenEvent(pkglogger.EventTokenCreated, userID, selector, "")
	return &IssuedToken{Selector: selector, Validator: validator, ExpiresAt: token.ExpiresAt}, nil
}

// Verify checks a selector/validator pair. Expired tokens and validator
// mismatches delete the record. Every rejection unwraps to models.ErrUnauthorized.
func (s *RememberTokenService) Verify(ctx context.Context, selector, validator string) (*models.RememberToken, error) {
	if selector == "" || validator == "" {
		return nil, models.ErrUnauthorized
	}

	token, err := s.repo.GetBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to look up remember token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	if token.IsExpired(now) {
		s.delete(ctx, token, "expired")
		return nil, models.ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(HashValidator(validator)), []byte(token.ValidatorHash)) != 1 {
		s.delete(ctx, token, "validator_mismatch")
		return token, ErrTokenMismatch
	}

	var newExpiry *time.Time
	if s.sliding {
		exp := now.Add(s.ttl)
		newExpiry = &exp
		token.ExpiresAt = exp
	}
	if err := s.repo.MarkUsed(ctx, token.ID, now, newExpiry); err != nil {
		s.logger.Warn("failed to update remember token last use", slog.Any("error", err))
	}
	token.LastUsed = &now

	return token, nil
}

func (s *RememberTokenService) delete(ctx context.Context, token *models.RememberToken, reason string) {
	if _, err := s.repo.DeleteBySelector(ctx, token.Selector); err != nil {
		s.logger.Error("failed to delete remember token", slog.String("reason", reason), slog.Any("error", err))
		return
	}
	s.auditLogger.LogTokenEvent(pkglogger.EventTokenRevoked, token.UserID, token.Selector, reason)
}

// Revoke deletes the token with the given selector. Unknown selectors are ignored.
func (s *RememberTokenService) Revoke(ctx context.Context, selector string) error {
	if selector == "" {
		return nil
	}
	deleted, err := s.repo.DeleteBySelector(ctx, selector)
	if err != nil {
		s.logger.Error("failed to revoke remember token", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if deleted {
		s.auditLogger.LogTokenEvent(pkglogger.EventTokenRevoked, "", selector, "revoked")
	}
	return nil
}

// RevokeAll deletes every token of userID except exceptSelector, if given.
func (s *RememberTokenService) RevokeAll(ctx context.Context, userID, exceptSelector string) (int64, error) {
	count, err := s.repo.DeleteAllForUser(ctx, userID, exceptSelector)
	if err != nil {
		s.logger.Error("failed to revoke remember tokens", slog.String("user_id", userID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	if count > 0 {
		s.logger.Info("revoked remember tokens", slog.String("user_id", userID), slog.Int64("count", count))
	}
	return count, nil
}

// RevokeByID deletes one of the user's tokens.
func (s *RememberTokenService) RevokeByID(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteByID(ctx, userID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to revoke remember token", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.auditLogger.LogAccountAction(pkglogger.EventTokenRevoked, userID, "", map[string]string{"token_id": id})
	return nil
}

// CleanupExpired deletes every expired token and returns how many were removed.
func (s *RememberTokenService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired remember tokens: %w", err)
	}
	return count, nil
}

// ListActive returns the user's unexpired tokens, newest first.
func (s *RememberTokenService) ListActive(ctx context.Context, userID string) ([]*models.RememberToken, error) {
	tokens, err := s.repo.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		s.logger.Error("failed to list remember tokens", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return tokens, nil
}

// CountActive returns the number of unexpired tokens across all users.
func (s *RememberTokenService) CountActive(ctx context.Context) (int64, error) {
	count, err := s.repo.CountActive(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to count remember tokens", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	return count, nil
}

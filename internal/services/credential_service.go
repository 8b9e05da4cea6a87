package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BradenHooton/rollcall/internal/models"
	pkgauth "github.com/BradenHooton/rollcall/pkg/auth"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// UserRepository defines the storage operations on user accounts
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int64, error)
}

// TokenRevoker revokes remember-me tokens when credentials change.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID, exceptSelector string) (int64, error)
}

// CredentialService verifies and manages user passwords.
type CredentialService struct {
	users       UserRepository
	tokens      TokenRevoker
	hasher      *pkgauth.Hasher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(users UserRepository, tokens TokenRevoker, hasher *pkgauth.Hasher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *CredentialService {
	return &CredentialService{
		users:       users,
		tokens:      tokens,
		hasher:      hasher,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Verify returns the user when username matches exactly and the password is
// correct. Unknown users and wrong passwords both return models.ErrUnauthorized
// after the same bcrypt work.
func (s *CredentialService) Verify(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" || !utf8.ValidString(username) {
		s.hasher.CompareDummy(password)
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load user for login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, models.ErrUnauthorized
	}

	return user, nil
}

// SetPassword replaces the password hash, which also rotates the user's token
// key, and revokes every remember-me token of the user.
func (s *CredentialService) SetPassword(ctx context.Context, userID, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	revoked, err := s.tokens.RevokeAll(ctx, userID, "")
	if err != nil {
		s.logger.Error("failed to revoke remember tokens after password change",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(pkglogger.EventPasswordChanged, userID, "", map[string]string{
		"tokens_revoked": strconv.FormatInt(revoked, 10),
	})
	return nil
}

// ChangePassword checks the current password before calling SetPassword.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to load user for password change", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !s.hasher.Compare(user.PasswordHash, currentPassword) {
		return models.ErrUnauthorized
	}
	if currentPassword == newPassword {
		return &pkgauth.PasswordValidationError{Errors: []string{"new password must differ from the current password"}}
	}

	return s.SetPassword(ctx, userID, newPassword)
}

// EnsureUser seeds an account when none with that username exists. It returns
// true when a user was created. Existing accounts are left untouched so a
// password changed at runtime survives a restart.
func (s *CredentialService) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, models.ErrBadRequest
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		s.logger.Warn("seeded account uses a weak password", slog.String("username", pkglogger.SanitizedUsername(username)))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}

	if _, err := s.users.Create(ctx, &models.User{Username: username, PasswordHash: hash}); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("seeded user account", slog.String("username", pkglogger.SanitizedUsername(username)))
	return true, nil
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/rollcall/internal/auth"
	"github.com/BradenHooton/rollcall/internal/models"
	pkglogger "github.com/BradenHooton/rollcall/pkg/logger"
)

// SessionRevocationRepository defines the denylist of logged-out sessions
type SessionRevocationRepository interface {
	Revoke(ctx context.Context, sessionID, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// LoginRequest carries one password login attempt.
type LoginRequest struct {
	Username    string
	Password    string
	Remember    bool
	Fingerprint models.Fingerprint
	// Current is the session already attached to the request, if any.
	Current *models.Session
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Session      *models.Session
	SessionToken string
	// Remember is set when a remember-me token was issued.
	Remember *IssuedToken
	// AlreadyAuthenticated is true when the caller had a session on a trusted
	// device and no credentials were checked.
	AlreadyAuthenticated bool
}

// BlockStatus describes the lockout state of a fingerprint.
type BlockStatus struct {
	Blocked           bool `json:"blocked"`
	RemainingAttempts int  `json:"remaining_attempts"`
}

// AuthService handles authentication business logic
type AuthService struct {
	credentials *CredentialService
	lockout     *LockoutService
	limiter     auth.AttemptLimiter
	devices     *TrustedDeviceService
	tokens      *RememberTokenService
	sessions    *auth.SessionManager
	revocations SessionRevocationRepository
	users       UserRepository
	timingDelay *auth.TimingDelay
	alerts      SecurityAlerter
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(
	credentials *CredentialService,
	lockout *LockoutService,
	limiter auth.AttemptLimiter,
	devices *TrustedDeviceService,
	tokens *RememberTokenService,
	sessions *auth.SessionManager,
	revocations SessionRevocationRepository,
	users UserRepository,
	timingDelay *auth.TimingDelay,
	alerts SecurityAlerter,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	if alerts == nil {
		alerts = NoopAlerter{}
	}
	return &AuthService{
		credentials: credentials,
		lockout:     lockout,
		limiter:     limiter,
		devices:     devices,
		tokens:      tokens,
		sessions:    sessions,
		revocations: revocations,
		users:       users,
		timingDelay: timingDelay,
		alerts:      alerts,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Login runs the password login sequence. Rejections are models.ErrDeviceBlocked,
// models.ErrRateLimitExceeded, or a *models.LoginFailedError carrying the
// attempts left for the fingerprint.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	fp := req.Fingerprint

	if cur := req.Current; cur != nil && cur.Authenticated {
		trusted, err := s.devices.IsTrusted(ctx, cur.UserID, fp)
		if err != nil {
			return nil, err
		}
		if trusted {
			return &LoginResult{Session: cur, AlreadyAuthenticated: true}, nil
		}
	}

	blocked, err := s.lockout.IsBlocked(ctx, fp)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.auditLogger.LogLoginFailure(req.Username, "device_blocked", fp.IPAddress, fp.UserAgent)
		return nil, models.ErrDeviceBlocked
	}

	allowed, err := s.limiter.IsAllowed(ctx, fp.IPAddress)
	if err != nil {
		s.logger.Error("rate limiter check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !allowed {
		s.auditLogger.LogLoginFailure(req.Username, "rate_limited", fp.IPAddress, fp.UserAgent)
		return nil, models.ErrRateLimitExceeded
	}

	start := time.Now()
	user, err := s.credentials.Verify(ctx, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			return nil, err
		}
		return nil, s.recordFailure(ctx, req, start)
	}

	if err := s.lockout.Clear(ctx, fp); err != nil {
		return nil, err
	}
	if err := s.limiter.Reset(ctx, fp.IPAddress); err != nil {
		s.logger.Error("failed to reset rate limiter", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err := s.devices.Register(ctx, user.ID, fp); err != nil {
		return nil, err
	}

	result := &LoginResult{}
	if req.Remember {
		issued, err := s.tokens.Issue(ctx, user.ID, fp.UserAgent, fp.IPAddress)
		if err != nil {
			return nil, err
		}
		result.Remember = issued
	}

	session, signed, err := s.sessions.Issue(user, models.LoginMethodPassword)
	if err != nil {
		s.logger.Error("failed to sign session", slog.String("user_id", user.ID), slog.Any("error", err))
		if result.Remember != nil {
			if rerr := s.tokens.Revoke(ctx, result.Remember.Selector); rerr != nil {
				s.logger.Error("failed to roll back remember token", slog.Any("error", rerr))
			}
		}
		return nil, models.ErrInternalServer
	}
	result.Session = session
	result.SessionToken = signed

	s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.Bool("remember", req.Remember))
	s.auditLogger.LogLoginSuccess(user.ID, user.Username, models.LoginMethodPassword, fp.IPAddress, fp.UserAgent)

	return result, nil
}

func (s *AuthService) recordFailure(ctx context.Context, req LoginRequest, start time.Time) error {
	fp := req.Fingerprint
	defer s.timingDelay.WaitFrom(ctx, start)

	if err := s.limiter.RecordAttempt(ctx, fp.IPAddress); err != nil {
		s.logger.Error("failed to record rate limit attempt", slog.Any("error", err))
		return models.ErrInternalServer
	}

	count, err := s.lockout.RecordFailure(ctx, fp)
	if err != nil {
		return err
	}
	remaining := s.lockout.Remaining(count)

	s.logger.Info("login failed: invalid credentials", slog.Int("remaining_attempts", remaining))
	s.auditLogger.LogLoginFailure(req.Username, "invalid_credentials", fp.IPAddress, fp.UserAgent)

	return &models.LoginFailedError{RemainingAttempts: remaining}
}

// TryAutoLogin exchanges a remember-me cookie for a new token session. The
// lockout counter and rate limiter are not consulted.
func (s *AuthService) TryAutoLogin(ctx context.Context, cookieValue string, fp models.Fingerprint) (*models.Session, string, error) {
	selector, validator, ok := auth.ParseRememberCookie(cookieValue)
	if !ok {
		return nil, "", models.ErrUnauthorized
	}

	token, err := s.tokens.Verify(ctx, selector, validator)
	if err != nil {
		if errors.Is(err, ErrTokenMismatch) {
			s.auditLogger.LogSuspicious(token.UserID, "remember_token_mismatch", fp.IPAddress, map[string]string{
				"selector": pkglogger.SelectorPrefix(selector),
			})
			s.alerts.TokenMismatch(ctx, token.UserID, selector, fp.IPAddress)
			return nil, "", models.ErrUnauthorized
		}
		return nil, "", err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = s.tokens.Revoke(ctx, selector)
			return nil, "", models.ErrUnauthorized
		}
		s.logger.Error("failed to load user for token login", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	if token.UserAgent != fp.UserAgent {
		s.auditLogger.LogSuspicious(user.ID, "user_agent_mismatch", fp.IPAddress, map[string]string{
			"selector":      pkglogger.SelectorPrefix(selector),
			"issued_from":   token.IPAddress,
			"stored_agent":  pkglogger.TruncateUserAgent(token.UserAgent, 100),
			"request_agent": pkglogger.TruncateUserAgent(fp.UserAgent, 100),
		})
	}

	if _, err := s.devices.IsTrusted(ctx, user.ID, fp); err != nil {
		s.logger.Warn("failed to refresh trusted device on token login", slog.Any("error", err))
	}

	session, signed, err := s.sessions.Issue(user, models.LoginMethodToken)
	if err != nil {
		s.logger.Error("failed to sign session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	s.auditLogger.LogLoginSuccess(user.ID, user.Username, models.LoginMethodToken, fp.IPAddress, fp.UserAgent)
	return session, signed, nil
}

// ValidateSession checks a session cookie value and the logout denylist.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, session.ID)
	if err != nil {
		s.logger.Error("failed to check session revocation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		return nil, models.ErrUnauthorized
	}

	return session, nil
}

// Logout destroys the session and revokes the remember-me token named by cookieValue.
func (s *AuthService) Logout(ctx context.Context, session *models.Session, cookieValue, ip string) error {
	if session != nil && session.ID != "" {
		if err := s.revocations.Revoke(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
			s.logger.Error("failed to revoke session", slog.Any("error", err))
			return models.ErrInternalServer
		}
		s.auditLogger.LogLogout(session.UserID, session.Username, ip)
	}

	if cookieValue != "" {
		if selector, _, ok := auth.ParseRememberCookie(cookieValue); ok {
			if err := s.tokens.Revoke(ctx, selector); err != nil {
				return err
			}
		}
	}

	return nil
}

// IsBlocked reports the lockout state of fp for rendering before a login form is shown.
func (s *AuthService) IsBlocked(ctx context.Context, fp models.Fingerprint) (*BlockStatus, error) {
	count, err := s.lockout.Attempts(ctx, fp)
	if err != nil {
		return nil, err
	}
	return &BlockStatus{
		Blocked:           count >= s.lockout.MaxAttempts(),
		RemainingAttempts: s.lockout.Remaining(count),
	}, nil
}

// CleanupRevokedSessions drops denylist entries whose sessions have expired anyway.
func (s *AuthService) CleanupRevokedSessions(ctx context.Context) (int64, error) {
	return s.revocations.CleanupExpired(ctx, s.now())
}

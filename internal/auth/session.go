package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/rollcall/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserTokenKeyFetcher loads the user whose token key salts the signing key.
type UserTokenKeyFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionManager signs and validates session cookies as HS256 JWTs. The signing
// key is the global secret plus the user's token key, so rotating the token key
// (on password change) invalidates every outstanding session of that user.
type SessionManager struct {
	secret string
	ttl    time.Duration
	users  UserTokenKeyFetcher
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration, users UserTokenKeyFetcher) *SessionManager {
	return &SessionManager{
		secret: secret,
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}
}

// TTL is the lifetime of issued sessions.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) signingKey(user *models.User) []byte {
	return []byte(sm.secret + user.TokenKey)
}

// Issue creates a new session for user and returns it with its signed cookie value.
func (sm *SessionManager) Issue(user *models.User, method string) (*models.Session, string, error) {
	now := sm.now().UTC().Truncate(time.Second)
	session := &models.Session{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		Username:      user.Username,
		Authenticated: true,
		LoginTime:     now,
		LoginMethod:   method,
		ExpiresAt:     now.Add(sm.ttl),
	}

	claims := &models.SessionClaims{
		UserID:      session.UserID,
		Username:    session.Username,
		LoginMethod: session.LoginMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.signingKey(user))
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign session: %w", err)
	}
	return session, signed, nil
}

// Validate verifies the signature and expiry of a session cookie value.
// A bad token or unknown user yields models.ErrUnauthorized. A failure to load
// the user yields models.ErrInternalServer so the caller keeps the cookie.
func (sm *SessionManager) Validate(ctx context.Context, tokenString string) (*models.Session, error) {
	claims := &models.SessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(sm.now),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		c, ok := token.Claims.(*models.SessionClaims)
		if !ok || c.UserID == "" {
			return nil, errors.New("session has no subject")
		}
		user, err := sm.users.GetByID(ctx, c.UserID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
				return nil, models.ErrUnauthorized
			}
			return nil, fmt.Errorf("%w: load session user: %w", models.ErrInternalServer, err)
		}
		return sm.signingKey(user), nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInternalServer) {
			return nil, err
		}
		return nil, models.ErrUnauthorized
	}

	return &models.Session{
		ID:            claims.ID,
		UserID:        claims.UserID,
		Username:      claims.Username,
		Authenticated: true,
		LoginTime:     claims.IssuedAt.Time,
		LoginMethod:   claims.LoginMethod,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

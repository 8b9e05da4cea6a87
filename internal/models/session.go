package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Login methods recorded on a session.
const (
	LoginMethodPassword = "password"
	LoginMethodToken    = "token"
)

// Session is the authenticated principal attached to a request.
type Session struct {
	ID            string
	UserID        string
	Username      string
	Authenticated bool
	LoginTime     time.Time
	LoginMethod   string
	ExpiresAt     time.Time
}

// SessionClaims is the JWT payload carried in the session cookie.
type SessionClaims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	LoginMethod string `json:"login_method"`
	jwt.RegisteredClaims
}

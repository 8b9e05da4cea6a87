package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MaxUserAgentLength bounds the stored user-agent string.
const MaxUserAgentLength = 500

// Fingerprint identifies a connecting client by network address and user agent.
// It is derived per request and never stored on its own.
type Fingerprint struct {
	IPAddress string
	UserAgent string
}

// Hash returns the hex sha256 of the fingerprint, used as the equality key in storage.
func (f Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f.IPAddress + "\x00" + f.UserAgent))
	return hex.EncodeToString(sum[:])
}

// BlockedDevice tracks consecutive failed logins from one fingerprint.
type BlockedDevice struct {
	ID              string     `db:"id" json:"id"`
	FingerprintHash string     `db:"fingerprint_hash" json:"-"`
	IPAddress       string     `db:"ip_address" json:"ip_address"`
	UserAgent       string     `db:"user_agent" json:"user_agent"`
	FailedAttempts  int        `db:"failed_attempts" json:"failed_attempts"`
	BlockedAt       *time.Time `db:"blocked_at" json:"blocked_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// TrustedDevice is a fingerprint a user has signed in from recently.
type TrustedDevice struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"-"`
	FingerprintHash string    `db:"fingerprint_hash" json:"-"`
	IPAddress       string    `db:"ip_address" json:"ip_address"`
	UserAgent       string    `db:"user_agent" json:"user_agent"`
	LastLogin       time.Time `db:"last_login" json:"last_login"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

package models

import "time"

// RememberToken is a persisted selector/validator pair. Only the hash of the
// validator is stored.
type RememberToken struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	Selector      string     `db:"selector"`
	ValidatorHash string     `db:"validator_hash"`
	UserAgent     string     `db:"user_agent"`
	IPAddress     string     `db:"ip_address"`
	CreatedAt     time.Time  `db:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	LastUsed      *time.Time `db:"last_used"`
}

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *RememberToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

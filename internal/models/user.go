package models

import (
	"time"
)

// User is an administrator account able to sign in.
type User struct {
	ID                string
	Username          string
	PasswordHash      string
	TokenKey          string     // Per-user secret mixed into the session signing key
	PasswordChangedAt *time.Time // Last password change
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Policy rejections
	ErrRateLimitExceeded = errors.New("too many login attempts")
	ErrDeviceBlocked     = errors.New("device is blocked")
)

// LoginFailedError is returned when credentials are rejected. It carries the
// number of attempts the fingerprint has left before it is blocked.
type LoginFailedError struct {
	RemainingAttempts int
}

func (e *LoginFailedError) Error() string {
	if e.RemainingAttempts <= 0 {
		return "invalid credentials, device blocked"
	}
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.RemainingAttempts)
}

// Unwrap lets callers match with errors.Is against ErrUnauthorized, or
// ErrDeviceBlocked once no attempts remain.
func (e *LoginFailedError) Unwrap() error {
	if e.RemainingAttempts <= 0 {
		return ErrDeviceBlocked
	}
	return ErrUnauthorized
}

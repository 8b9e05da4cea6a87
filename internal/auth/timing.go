package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads failed logins with a randomized delay so that an unknown
// username and a wrong password cost the caller the same amount of time.
type TimingDelay struct {
	min time.Duration
	max time.Duration
}

// NewTimingDelay returns a delay drawn uniformly from [min, max).
// A zero max disables the delay.
func NewTimingDelay(min, max time.Duration) *TimingDelay {
	if max < min {
		max = min
	}
	return &TimingDelay{min: min, max: max}
}

// cryptoRandInt63n returns a secure random number in [0, n).
func cryptoRandInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]) % uint64(n))
}

// Duration picks the next delay.
func (td *TimingDelay) Duration() time.Duration {
	if td == nil || td.max <= 0 {
		return 0
	}
	return td.min + time.Duration(cryptoRandInt63n(int64(td.max-td.min)))
}

// WaitFrom sleeps until at least one delay has elapsed since start, or ctx is done.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	remaining := td.Duration() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

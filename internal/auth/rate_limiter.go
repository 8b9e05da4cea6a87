package auth

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// AttemptLimiter throttles failed logins per network address over a sliding window.
type AttemptLimiter interface {
	IsAllowed(ctx context.Context, address string) (bool, error)
	RecordAttempt(ctx context.Context, address string) error
	Reset(ctx context.Context, address string) error
	Cleanup(ctx context.Context) error
}

// DefaultCleanupProbability is the share of IsAllowed calls that also sweep every address.
const DefaultCleanupProbability = 0.01

// SlidingWindowLimiter keeps attempt timestamps in memory behind one mutex.
type SlidingWindowLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration

	now         func() time.Time
	sweepChance float64
	sweepRandom func() float64
}

type LimiterOption func(*SlidingWindowLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// WithCleanupProbability sets how often IsAllowed triggers a full sweep.
func WithCleanupProbability(p float64) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.sweepChance = p }
}

func NewSlidingWindowLimiter(maxAttempts int, window time.Duration, opts ...LimiterOption) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		sweepChance: DefaultCleanupProbability,
		sweepRandom: rand.Float64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsAllowed reports whether fewer than maxAttempts attempts from address fall
// inside the trailing window.
func (l *SlidingWindowLimiter) IsAllowed(_ context.Context, address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.sweepChance > 0 && l.sweepRandom() < l.sweepChance {
		l.sweepLocked(now)
	}

	recent := l.pruneLocked(address, now)
	return len(recent) < l.maxAttempts, nil
}

func (l *SlidingWindowLimiter) RecordAttempt(_ context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.attempts[address] = append(l.pruneLocked(address, now), now)
	return nil
}

func (l *SlidingWindowLimiter) Reset(_ context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, address)
	return nil
}

// Cleanup drops expired timestamps for every address.
func (l *SlidingWindowLimiter) Cleanup(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(l.now())
	return nil
}

// pruneLocked removes timestamps older than the window for address. Caller holds mu.
func (l *SlidingWindowLimiter) pruneLocked(address string, now time.Time) []time.Time {
	list, ok := l.attempts[address]
	if !ok {
		return nil
	}

	cutoff := now.Add(-l.window)
	i := 0
	for i < len(list) && !list[i].After(cutoff) {
		i++
	}
	if i == len(list) {
		delete(l.attempts, address)
		return nil
	}
	if i > 0 {
		list = append(list[:0:0], list[i:]...)
		l.attempts[address] = list
	}
	return list
}

func (l *SlidingWindowLimiter) sweepLocked(now time.Time) {
	for address := range l.attempts {
		l.pruneLocked(address, now)
	}
}

// trackedAddresses is the number of addresses currently held in memory.
func (l *SlidingWindowLimiter) trackedAddresses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

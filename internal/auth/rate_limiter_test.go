package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSlidingWindowLimiter_BlocksAfterMaxAndRecoversAfterWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(3, time.Minute, WithClock(clock.Now), WithCleanupProbability(0))

	for i := 0; i < 3; i++ {
		allowed, err := l.IsAllowed(ctx, "203.0.113.1")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
		require.NoError(t, l.RecordAttempt(ctx, "203.0.113.1"))
		clock.Advance(time.Second)
	}

	allowed, err := l.IsAllowed(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	clock.Advance(time.Minute)

	allowed, err = l.IsAllowed(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(2, 10*time.Minute, WithClock(clock.Now), WithCleanupProbability(0))

	require.NoError(t, l.RecordAttempt(ctx, "a"))
	clock.Advance(6 * time.Minute)
	require.NoError(t, l.RecordAttempt(ctx, "a"))

	allowed, _ := l.IsAllowed(ctx, "a")
	assert.False(t, allowed)

	// first attempt leaves the window, second is still inside
	clock.Advance(5 * time.Minute)
	allowed, _ = l.IsAllowed(ctx, "a")
	assert.True(t, allowed)
}

func TestSlidingWindowLimiter_AddressesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(1, time.Minute, WithCleanupProbability(0))

	require.NoError(t, l.RecordAttempt(ctx, "a"))

	allowedA, _ := l.IsAllowed(ctx, "a")
	allowedB, _ := l.IsAllowed(ctx, "b")
	assert.False(t, allowedA)
	assert.True(t, allowedB)
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(1, time.Minute, WithCleanupProbability(0))

	require.NoError(t, l.RecordAttempt(ctx, "a"))
	require.NoError(t, l.Reset(ctx, "a"))

	allowed, _ := l.IsAllowed(ctx, "a")
	assert.True(t, allowed)
	assert.Equal(t, 0, l.trackedAddresses())
}

func TestSlidingWindowLimiter_CleanupPurgesStaleAddresses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(5, time.Minute, WithClock(clock.Now), WithCleanupProbability(0))

	for i := 0; i < 10; i++ {
		require.NoError(t, l.RecordAttempt(ctx, fmt.Sprintf("198.51.100.%d", i)))
	}
	clock.Advance(30 * time.Second)
	require.NoError(t, l.RecordAttempt(ctx, "fresh"))
	clock.Advance(45 * time.Second)

	require.NoError(t, l.Cleanup(ctx))
	assert.Equal(t, 1, l.trackedAddresses())
}

func TestSlidingWindowLimiter_ProbabilisticSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewSlidingWindowLimiter(5, time.Minute, WithClock(clock.Now), WithCleanupProbability(0.01))
	rolls := []float64{0.5, 0.005}
	l.sweepRandom = func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	}

	require.NoError(t, l.RecordAttempt(ctx, "stale"))
	clock.Advance(2 * time.Minute)

	_, _ = l.IsAllowed(ctx, "other")
	assert.Equal(t, 1, l.trackedAddresses(), "no sweep on a losing roll")

	_, _ = l.IsAllowed(ctx, "other")
	assert.Equal(t, 0, l.trackedAddresses(), "winning roll sweeps every address")
}

func TestSlidingWindowLimiter_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d", i%5)
			for j := 0; j < 20; j++ {
				_, _ = l.IsAllowed(ctx, addr)
				_ = l.RecordAttempt(ctx, addr)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		l.mu.Lock()
		n := len(l.attempts[fmt.Sprintf("10.0.0.%d", i)])
		l.mu.Unlock()
		assert.Equal(t, 200, n)
	}
}

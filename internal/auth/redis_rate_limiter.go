package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window AttemptLimiter shared by every API instance.
// Each address maps to a sorted set of attempt timestamps in milliseconds.
type RedisLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
	prefix      string
	now         func() time.Time
}

func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		prefix:      "rollcall:login_attempts:",
		now:         time.Now,
	}
}

func (l *RedisLimiter) key(address string) string {
	return l.prefix + address
}

func (l *RedisLimiter) IsAllowed(ctx context.Context, address string) (bool, error) {
	key := l.key(address)
	cutoff := l.now().Add(-l.window).UnixMilli()

	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limiter check failed: %w", err)
	}
	return card.Val() < int64(l.maxAttempts), nil
}

func (l *RedisLimiter) RecordAttempt(ctx context.Context, address string) error {
	key := l.key(address)
	now := l.now()

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString(),
		})
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rate limiter record failed: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, address string) error {
	if err := l.client.Del(ctx, l.key(address)).Err(); err != nil {
		return fmt.Errorf("rate limiter reset failed: %w", err)
	}
	return nil
}

// Cleanup is a no-op: every key carries a TTL equal to the window.
func (l *RedisLimiter) Cleanup(context.Context) error {
	return nil
}

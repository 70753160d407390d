package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/surveyhq/survey-api/internal/core"
)

// RedisRateLimiter implements a fixed-window rate limiter on Redis. Each
// window is a counter keyed by (key, window start) that expires with the
// window; the first increment of a window sets the expiry.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

var _ core.RateLimiter = (*RedisRateLimiter)(nil)

// RateLimiterConfig configures a RedisRateLimiter.
type RateLimiterConfig struct {
	// Limit is the maximum number of events per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
	// Prefix namespaces the limiter's keys. Defaults to "ratelimit".
	Prefix string
	// Now overrides the clock for tests.
	Now func() time.Time
}

// NewRedisRateLimiter creates a fixed-window rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, cfg RateLimiterConfig) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be positive")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RedisRateLimiter{
		client: client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: prefix,
		now:    now,
	}, nil
}

// Allow reports whether one more event fits into the current window for key.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	windowStart := l.now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// NX keeps the expiry anchored to the first event of the window.
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	return incr.Val() <= int64(l.limit), nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig tunes the fixed-window limiter.
type RateLimiterConfig struct {
	// MaxRequests allowed per window per identifier.
	MaxRequests int

	// Window is the fixed window length.
	Window time.Duration
}

// DefaultRateLimiterConfig returns production limits for the public API.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxRequests: 60,
		Window:      time.Minute,
	}
}

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a fixed-window counter on INCR + EXPIRE. The window key
// carries its own TTL, so stale windows expire without cleanup.
type RateLimiter struct {
	client *redis.Client
	config RateLimiterConfig
}

// NewRateLimiter creates a limiter on top of an existing cache connection.
func NewRateLimiter(cache *Cache, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{client: cache.Client(), config: config}
}

// Allow counts a request for the identifier and reports whether it fits
// inside the current window.
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (RateLimitResult, error) {
	if identifier == "" {
		return RateLimitResult{}, ErrCacheKeyEmpty
	}

	key := PrefixRateLimit + identifier

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX keeps the window anchored at the first request in it.
	pipe.ExpireNX(ctx, key, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return RateLimitResult{}, fmt.Errorf("ratelimit: %w", err)
	}

	count := int(incr.Val())
	if count > rl.config.MaxRequests {
		ttl, err := rl.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rl.config.Window
		}
		return RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}

	return RateLimitResult{Allowed: true, Remaining: rl.config.MaxRequests - count}, nil
}

// Reset clears the window for an identifier.
func (rl *RateLimiter) Reset(ctx context.Context, identifier string) error {
	return rl.client.Del(ctx, PrefixRateLimit+identifier).Err()
}

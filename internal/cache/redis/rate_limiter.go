package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter per
// key. INCR and the expiry run in one pipeline so the window starts when the
// first request of the window lands.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter on the given client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

// Allow reports whether key has made fewer than limit requests in the
// current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}

	return count.Val() <= int64(limit), nil
}

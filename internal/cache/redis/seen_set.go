package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet implements domain.SeenStore on Redis. Each identity is a key with
// an expiry, so SET NX gives atomic first-writer-wins admission across
// instances and the window bounds growth the same way the in-memory set's
// TTL does.
type SeenSet struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSeenSet creates a SeenSet storing identities under prefix. A
// non-positive ttl retains identities forever.
func NewSeenSet(c *Client, prefix string, ttl time.Duration) *SeenSet {
	if prefix == "" {
		prefix = "polycopy:seen"
	}
	return &SeenSet{
		rdb:    c.Underlying(),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Admit returns true when this caller is the first to present identity.
func (s *SeenSet) Admit(ctx context.Context, identity string) (bool, error) {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = 0 // no expiry
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+":"+identity, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: admit %s: %w", identity, err)
	}
	return ok, nil
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisWindowStore counts requests in fixed windows shared by every process.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = "beam:ratelimit"
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

// Allow counts one hit for key and reports whether it stays within limit.
// When it does not, retryAfter is the remaining time of the window. A window
// key found without an expiry, the first hit or one whose PEXPIRE was lost,
// gets one armed here.
func (s *RedisWindowStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	k := fmt.Sprintf("%s:%s", s.prefix, key)
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit store: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit store: %w", err)
		}
		ttl = window
	}
	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}
	return false, ttl, nil
}

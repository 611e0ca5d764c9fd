// Package cache holds the Redis-backed helpers: the per-owner stream list
// cache, the asset event bus and the rate limit window store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/moltasthornblom/beam/logger"
	"github.com/moltasthornblom/beam/model"

	"github.com/go-redis/redis/v8"
)

const (
	defaultStreamTTL = 5 * time.Minute
	opTimeout        = 2 * time.Second
)

// StreamListCache caches GET /stream/streams responses in one Redis hash per
// owner, keyed by limit, so a single DEL drops every page size.
// A nil client turns every call into a miss.
type StreamListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStreamListCache returns a cache on client. ttl <= 0 uses five minutes.
func NewStreamListCache(client *redis.Client, ttl time.Duration) *StreamListCache {
	if ttl <= 0 {
		ttl = defaultStreamTTL
	}
	return &StreamListCache{client: client, ttl: ttl}
}

// StreamListKey is the hash holding ownerID's cached listings.
func StreamListKey(ownerID string) string {
	return fmt.Sprintf("beam:streams:%s", ownerID)
}

func (c *StreamListCache) enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached listing. Errors count as misses so the caller
// falls back to the store.
func (c *StreamListCache) Get(ctx context.Context, ownerID string, limit int) ([]*model.Asset, bool) {
	if !c.enabled() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := StreamListKey(ownerID)
	maxRetries := 2
	retryDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		data, err := c.client.HGet(ctx, key, strconv.Itoa(limit)).Bytes()
		if err == nil {
			var assets []*model.Asset
			if err := json.Unmarshal(data, &assets); err != nil {
				logger.Warn("Discarding unreadable stream list cache entry", logger.String("key", key), logger.ErrorField(err))
				return nil, false
			}
			return assets, true
		}
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		if attempt < maxRetries-1 {
			logger.Warn("Stream list cache read failed, retrying",
				logger.String("key", key),
				logger.Int("attempt", attempt+1),
				logger.ErrorField(err))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, false
			}
			retryDelay *= 2
			continue
		}
		logger.Warn("Stream list cache unavailable", logger.String("key", key), logger.ErrorField(err))
	}
	return nil, false
}

// StreamGenerationKey counts invalidations of ownerID's listings.
func StreamGenerationKey(ownerID string) string {
	return StreamListKey(ownerID) + ":gen"
}

var errStaleListing = errors.New("stream list changed since it was read")

// Generation returns the invalidation count of ownerID. Read it before the
// store and hand it to Set. ok is false when Redis cannot be read, in which
// case the listing should not be cached.
func (c *StreamListCache) Generation(ctx context.Context, ownerID string) (int64, bool) {
	if !c.enabled() {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	gen, err := c.client.Get(ctx, StreamGenerationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		logger.Warn("Stream list generation unavailable", logger.String("ownerId", ownerID), logger.ErrorField(err))
		return 0, false
	}
	return gen, true
}

// Set stores a listing read at generation gen. It is dropped when ownerID was
// invalidated since, so a read that raced a status change is never cached.
// Failures are logged and otherwise ignored.
func (c *StreamListCache) Set(ctx context.Context, ownerID string, gen int64, limit int, assets []*model.Asset) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(assets)
	if err != nil {
		logger.Warn("Failed to encode stream list", logger.ErrorField(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := StreamListKey(ownerID)
	genKey := StreamGenerationKey(ownerID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, strconv.Itoa(limit), data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case errors.Is(err, errStaleListing), errors.Is(err, redis.TxFailedErr):
		logger.Debug("Skipping stale stream list", logger.String("key", key))
	case err != nil:
		logger.Warn("Failed to cache stream list", logger.String("key", key), logger.ErrorField(err))
	default:
		logger.Debug("Stream list cached", logger.String("key", key), logger.Int("count", len(assets)))
	}
}

// Invalidate drops every cached listing of ownerID and bumps its generation.
func (c *StreamListCache) Invalidate(ctx context.Context, ownerID string) error {
	if !c.enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, StreamGenerationKey(ownerID))
		pipe.Del(ctx, StreamListKey(ownerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate stream list for %s: %w", ownerID, err)
	}
	return nil
}

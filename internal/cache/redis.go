// Package cache wraps Redis for viewer lookups and feed pages. A Cache with
// a nil client is a no-op, so callers never branch on whether Redis is
// configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	feedPagesKey = "feed:pages"

	// generationTTL outlives any single fetch between read and write-back
	generationTTL = time.Hour
)

// errStale reports a write-back whose key was invalidated after the read
var errStale = errors.New("cache entry was invalidated during fetch")

// Cache stores JSON values in Redis
type Cache struct {
	client *redis.Client
}

// New creates a cache over client. client may be nil.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// ViewerKey returns the cache key of a user record
func ViewerKey(userID string) string {
	return "viewer:" + userID
}

func generationKey(key string) string {
	return key + ":gen"
}

func feedField(limit, offset int) string {
	return fmt.Sprintf("%d:%d", limit, offset)
}

// GetJSON loads key into dest. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	s, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key with a TTL
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, b, ttl).Err()
}

// Invalidate removes keys and bumps their generation, so a reader that
// fetched before the call cannot write its stale value back.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, key := range keys {
		pipe.Incr(ctx, generationKey(key))
		pipe.Expire(ctx, generationKey(key), generationTTL)
		pipe.Del(ctx, key)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Generation returns the invalidation counter of key. Read it before
// fetching from the source of truth and pass it to the matching write.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, generationKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// writeIfCurrent runs write in a transaction that only commits while key is
// still at generation gen.
func (c *Cache) writeIfCurrent(ctx context.Context, key string, gen int64, write func(redis.Pipeliner)) error {
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey(key)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}, generationKey(key))
}

// CacheAside tries Redis first. On a miss it calls fetch, which must fill
// dest, and stores the result unless key was invalidated meanwhile. Cache
// errors never fail the call.
func (c *Cache) CacheAside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if c == nil || c.client == nil {
		return fetch()
	}
	if found, err := c.GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}
	gen, genErr := c.Generation(ctx, key)
	if err := fetch(); err != nil {
		return err
	}
	if genErr != nil {
		return nil
	}
	b, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	_ = c.writeIfCurrent(ctx, key, gen, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, b, ttl)
	})
	return nil
}

// GetFeedPage loads a cached feed page into dest
func (c *Cache) GetFeedPage(ctx context.Context, limit, offset int, dest any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	s, err := c.client.HGet(ctx, feedPagesKey, feedField(limit, offset)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// FeedGeneration returns the invalidation counter of the feed pages
func (c *Cache) FeedGeneration(ctx context.Context) (int64, error) {
	return c.Generation(ctx, feedPagesKey)
}

// SetFeedPage caches a feed page read at generation gen. A page read before
// the last InvalidateFeed is dropped. All pages share one TTL, refreshed on
// write.
func (c *Cache) SetFeedPage(ctx context.Context, gen int64, limit, offset int, v any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.writeIfCurrent(ctx, feedPagesKey, gen, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, feedPagesKey, feedField(limit, offset), b)
		pipe.Expire(ctx, feedPagesKey, ttl)
	})
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

// InvalidateFeed drops every cached feed page
func (c *Cache) InvalidateFeed(ctx context.Context) error {
	return c.Invalidate(ctx, feedPagesKey)
}

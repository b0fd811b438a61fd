// Package suggestcache puts a Redis read-through cache in front of C6's
// Suggest, keyed on (owner, partial, limit) and storing
// []suggest.Suggestion.
package suggestcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/suggest"
)

const defaultTTL = 30 * time.Second

// Cache wraps a *suggest.Engine with a Redis read-through layer. Suggest
// results churn quickly (new memories, new searches), so the TTL is kept
// short: this cache exists to absorb bursts of identical autocomplete
// requests, not to serve stale answers.
type Cache struct {
	engine *suggest.Engine
	client *goredis.Client
	ttl    time.Duration
}

// New wraps engine with a Redis cache reachable at redisURL. Returns an
// error if the URL is malformed or the server is unreachable at startup.
func New(ctx context.Context, engine *suggest.Engine, redisURL string) (*Cache, error) {
	return NewWithTTL(ctx, engine, redisURL, defaultTTL)
}

// NewWithTTL is New with an explicit cache-entry TTL.
func NewWithTTL(ctx context.Context, engine *suggest.Engine, redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("suggestcache: invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("suggestcache: redis ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{engine: engine, client: client, ttl: ttl}, nil
}

func cacheKey(owner model.Principal, partial string, limit int) string {
	return fmt.Sprintf("suggest:%s:%s:%d", owner.String(), partial, limit)
}

// Suggest serves from Redis when possible, falling back to the wrapped
// engine (and repopulating the cache) on a miss or any Redis error —
// an unreachable cache degrades to uncached suggestions, it never fails
// the request.
func (c *Cache) Suggest(ctx context.Context, owner model.Principal, partial string, limit int) []suggest.Suggestion {
	key := cacheKey(owner, partial, limit)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached []suggest.Suggestion
		if json.Unmarshal(data, &cached) == nil {
			return cached
		}
	}

	out := c.engine.Suggest(owner, partial, limit)
	if data, err := json.Marshal(out); err == nil {
		_ = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	return out
}

// Invalidate drops every cached suggestion page for owner, called by the
// HTTP create/delete-memory handlers and the MCP add_memory tool after a
// successful write so stale content-keyword suggestions don't linger for the
// TTL window.
func (c *Cache) Invalidate(ctx context.Context, owner model.Principal) error {
	pattern := fmt.Sprintf("suggest:%s:*", owner.String())
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

const (
	keyPrefix     = "docsearch:search:"
	generationKey = "docsearch:search-generation"
)

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Redis shares cached results between server processes. Keys embed a
// generation counter stored in Redis; Invalidate bumps it so every process
// stops reading older entries at once.
type Redis struct {
	counters
	client KV
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

func NewRedis(client KV, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache", "backend", "redis"),
	}
}

func (c *Redis) GetOrCompute(ctx context.Context, query string, limit int, compute ComputeFunc) (*index.Result, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("cache unavailable, computing directly", "error", err)
		c.misses.Add(1)
		res, err := compute(ctx)
		return res, false, err
	}
	key := keyPrefix + gen + ":" + buildKey(query, limit)

	if res, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return res, true, nil
	}
	c.misses.Add(1)
	res, err := collapse(ctx, &c.group, key, func(ctx context.Context) (*index.Result, error) {
		if res, ok := c.get(ctx, key); ok {
			return res, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

func (c *Redis) generation(ctx context.Context) (string, error) {
	gen, err := c.client.Get(ctx, generationKey)
	if pkgredis.IsNilError(err) {
		return "0", nil
	}
	return gen, err
}

func (c *Redis) get(ctx context.Context, key string) (*index.Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var res index.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	if res.Hits == nil {
		res.Hits = []index.Hit{}
	}
	return &res, true
}

func (c *Redis) set(ctx context.Context, key string, res *index.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, generationKey)
	if err != nil {
		return fmt.Errorf("bumping cache generation: %w", err)
	}
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("flushing stale cache entries failed", "error", err)
	}
	c.logger.Debug("cache invalidated", "generation", strconv.FormatInt(gen, 10), "keys_deleted", deleted)
	return nil
}

func (c *Redis) Ping(ctx context.Context) error { return c.client.Ping(ctx) }

func (c *Redis) Stats() Stats { return c.stats("redis") }

func (c *Redis) Close() error { return c.client.Close() }

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

// Local is an in-process LRU of recent results.
type Local struct {
	counters
	entries    *lru.Cache[string, *index.Result]
	generation atomic.Uint64
	group      singleflight.Group
	logger     *slog.Logger
}

func NewLocal(size int) (*Local, error) {
	entries, err := lru.New[string, *index.Result](size)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Local{
		entries: entries,
		logger:  slog.Default().With("component", "query-cache", "backend", "local"),
	}, nil
}

func (c *Local) GetOrCompute(ctx context.Context, query string, limit int, compute ComputeFunc) (*index.Result, bool, error) {
	key := strconv.FormatUint(c.generation.Load(), 10) + ":" + buildKey(query, limit)
	if res, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return res, true, nil
	}
	c.misses.Add(1)
	res, err := collapse(ctx, &c.group, key, func(ctx context.Context) (*index.Result, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

// Invalidate moves to a new generation so results computed before the call
// are never served again, then drops the old entries.
func (c *Local) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.entries.Purge()
	c.logger.Debug("cache invalidated")
	return nil
}

func (c *Local) Stats() Stats { return c.stats("local") }

func (c *Local) Close() error {
	c.entries.Purge()
	return nil
}

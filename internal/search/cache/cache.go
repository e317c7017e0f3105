// Package cache memoizes search results. Entries are keyed by a normalized
// form of the query plus the result limit and are invalidated wholesale
// whenever the index changes.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

// ComputeFunc produces a fresh result on a cache miss.
type ComputeFunc func(ctx context.Context) (*index.Result, error)

type Stats struct {
	Backend string `json:"backend"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// Cache is safe for concurrent use. GetOrCompute reports whether the result
// came from the cache; concurrent misses for the same key share one compute.
type Cache interface {
	GetOrCompute(ctx context.Context, query string, limit int, compute ComputeFunc) (*index.Result, bool, error)
	Invalidate(ctx context.Context) error
	Stats() Stats
	Close() error
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) stats(backend string) Stats {
	return Stats{Backend: backend, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// collapse runs compute once per key among concurrent callers.
func collapse(ctx context.Context, group *singleflight.Group, key string, compute ComputeFunc) (*index.Result, error) {
	val, err, _ := group.Do(key, func() (interface{}, error) {
		return compute(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return val.(*index.Result), nil
}

// Nop caches nothing.
type Nop struct {
	counters
}

func (n *Nop) GetOrCompute(ctx context.Context, query string, limit int, compute ComputeFunc) (*index.Result, bool, error) {
	n.misses.Add(1)
	res, err := compute(ctx)
	return res, false, err
}

func (n *Nop) Invalidate(ctx context.Context) error { return nil }

func (n *Nop) Stats() Stats { return n.stats("none") }

func (n *Nop) Close() error { return nil }

func buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", hash[:16])
}

// normalizeQuery maps queries that must return the same hits onto the same
// string: case and term order do not matter.
func normalizeQuery(query string) string {
	plan := index.ParseQuery(query)
	terms := lowerSorted(plan.Terms)
	excludes := lowerSorted(plan.ExcludeTerms)

	parts := []string{plan.Operator.String(), strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}

func lowerSorted(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	sort.Strings(out)
	return out
}

package cache

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
)

// memKV is an in-memory stand-in for the Redis client.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memKV) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *memKV) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memKV) Ping(ctx context.Context) error { return nil }
func (m *memKV) Close() error                   { return nil }

func result(keys ...string) *index.Result {
	res := &index.Result{Hits: []index.Hit{}}
	for _, k := range keys {
		res.Hits = append(res.Hits, index.Hit{Key: k, Score: 1})
	}
	res.TotalHits = uint64(len(keys))
	return res
}

func caches(t *testing.T) map[string]Cache {
	t.Helper()
	local, err := NewLocal(16)
	require.NoError(t, err)
	return map[string]Cache{
		"local": local,
		"redis": NewRedis(newMemKV(), time.Minute),
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			calls := 0
			compute := func(ctx context.Context) (*index.Result, error) {
				calls++
				return result("notes.txt"), nil
			}

			res, hit, err := c.GetOrCompute(ctx, "beta", 10, compute)
			require.NoError(t, err)
			assert.False(t, hit)
			assert.Equal(t, []string{"notes.txt"}, res.Keys())

			res, hit, err = c.GetOrCompute(ctx, "BETA", 10, compute)
			require.NoError(t, err)
			assert.True(t, hit)
			assert.Equal(t, []string{"notes.txt"}, res.Keys())
			assert.Equal(t, 1, calls)

			_, hit, err = c.GetOrCompute(ctx, "beta", 5, compute)
			require.NoError(t, err)
			assert.False(t, hit, "limit is part of the key")

			stats := c.Stats()
			assert.Equal(t, int64(1), stats.Hits)
			assert.Equal(t, int64(2), stats.Misses)
		})
	}
}

func TestCache_InvalidateDropsEntries(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			current := result("a.txt")
			compute := func(ctx context.Context) (*index.Result, error) { return current, nil }

			_, _, err := c.GetOrCompute(ctx, "alpha", 10, compute)
			require.NoError(t, err)

			current = result()
			require.NoError(t, c.Invalidate(ctx))

			res, hit, err := c.GetOrCompute(ctx, "alpha", 10, compute)
			require.NoError(t, err)
			assert.False(t, hit)
			assert.Empty(t, res.Hits)
		})
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			errIndex := errors.New("index closed")

			_, _, err := c.GetOrCompute(ctx, "x", 10, func(ctx context.Context) (*index.Result, error) { return nil, errIndex })
			assert.ErrorIs(t, err, errIndex)

			res, hit, err := c.GetOrCompute(ctx, "x", 10, func(ctx context.Context) (*index.Result, error) { return result("x.txt"), nil })
			require.NoError(t, err)
			assert.False(t, hit)
			assert.Equal(t, []string{"x.txt"}, res.Keys())
		})
	}
}

func TestLocal_ConcurrentMissesComputeOnce(t *testing.T) {
	c, err := NewLocal(16)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (*index.Result, error) {
		calls.Add(1)
		<-release
		return result("a.txt"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "alpha", 10, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRedis_FallsBackWhenUnavailable(t *testing.T) {
	kv := newMemKV()
	kv.down = true
	c := NewRedis(kv, time.Minute)

	res, hit, err := c.GetOrCompute(context.Background(), "alpha", 10, func(ctx context.Context) (*index.Result, error) {
		return result("a.txt"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a.txt"}, res.Keys())
}

func TestNop(t *testing.T) {
	c := &Nop{}
	calls := 0
	for i := 0; i < 2; i++ {
		_, hit, err := c.GetOrCompute(context.Background(), "a", 1, func(ctx context.Context) (*index.Result, error) {
			calls++
			return result(), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, "none", c.Stats().Backend)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, normalizeQuery("beta Alpha"), normalizeQuery("alpha BETA"))
	assert.NotEqual(t, normalizeQuery("alpha beta"), normalizeQuery("alpha AND beta"))
	assert.NotEqual(t, normalizeQuery("alpha NOT beta"), normalizeQuery("alpha beta"))
}

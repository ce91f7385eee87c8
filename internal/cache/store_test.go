package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

type product struct {
	ID    string `json:"id"`
	Stock int    `json:"stock"`
}

func TestStore_TTLBoundary(t *testing.T) {
	clk := newClock()
	s := New(Options{Now: clk.now})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", product{ID: "p1", Stock: 3}, time.Second))

	clk.advance(500 * time.Millisecond)
	v, ok := Get[product](s, "k")
	require.True(t, ok)
	assert.Equal(t, product{ID: "p1", Stock: 3}, v)

	clk.advance(500 * time.Millisecond)
	_, ok = Get[product](s, "k")
	assert.True(t, ok, "exactly ttl is still live")

	clk.advance(500 * time.Millisecond)
	_, ok = Get[product](s, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(), "expired entry is swept on read")
}

func TestStore_SetOverwritesAndRestartsTTL(t *testing.T) {
	clk := newClock()
	s := New(Options{Now: clk.now})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Second))
	clk.advance(900 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "k", 2, time.Second))
	clk.advance(900 * time.Millisecond)

	v, ok := Get[int](s, "k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStore_DefaultTTL(t *testing.T) {
	clk := newClock()
	s := New(Options{Now: clk.now, DefaultTTL: time.Minute})

	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	clk.advance(61 * time.Second)

	_, ok := Get[string](s, "k")
	assert.False(t, ok)
}

func TestStore_MirrorsToRedisAndHydrates(t *testing.T) {
	rdb, mr := newRedis(t)
	clk := newClock()
	ctx := context.Background()

	first := New(Options{Redis: rdb, Now: clk.now})
	require.NoError(t, first.Set(ctx, "products:owner=s1:page=1", []product{{ID: "p1", Stock: 2}}, 5*time.Minute))
	require.NoError(t, first.Set(ctx, "users:role=buyer", []string{"b1"}, time.Second))
	assert.True(t, mr.Exists(redisx.DefaultCachePrefix+"products:owner=s1:page=1"))

	clk.advance(2 * time.Second)
	second := New(Options{Redis: rdb, Now: clk.now})
	n, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the expired users entry is not restored")

	got, ok := Get[[]product](second, "products:owner=s1:page=1")
	require.True(t, ok)
	assert.Equal(t, []product{{ID: "p1", Stock: 2}}, got)

	// the original timestamp survives the reload
	clk.advance(5 * time.Minute)
	_, ok = Get[[]product](second, "products:owner=s1:page=1")
	assert.False(t, ok)
}

func TestStore_ClearAllOnlyTouchesOwnPrefix(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("mkt:offline:snapshot", "{}"))
	require.NoError(t, mr.Set("session:42", "x"))

	s := New(Options{Redis: rdb})
	require.NoError(t, s.Set(ctx, "a", 1, 0))
	require.NoError(t, s.Set(ctx, "b", 2, 0))

	require.NoError(t, s.ClearAll(ctx))

	assert.Equal(t, 0, s.Len())
	assert.False(t, mr.Exists(redisx.DefaultCachePrefix+"a"))
	assert.True(t, mr.Exists("mkt:offline:snapshot"))
	assert.True(t, mr.Exists("session:42"))
}

func TestStore_ClearAndClearPrefix(t *testing.T) {
	rdb, mr := newRedis(t)
	ctx := context.Background()
	s := New(Options{Redis: rdb})
	require.NoError(t, s.Set(ctx, "products:p=1", 1, 0))
	require.NoError(t, s.Set(ctx, "products:p=2", 2, 0))
	require.NoError(t, s.Set(ctx, "users:p=1", 3, 0))

	require.NoError(t, s.ClearPrefix(ctx, "products:"))
	_, ok := Get[int](s, "products:p=1")
	assert.False(t, ok)
	_, ok = Get[int](s, "users:p=1")
	assert.True(t, ok)
	assert.False(t, mr.Exists(redisx.DefaultCachePrefix+"products:p=2"))

	require.NoError(t, s.Clear(ctx, "users:p=1"))
	_, ok = Get[int](s, "users:p=1")
	assert.False(t, ok)
}

func TestStore_RedisDownStillServesMemory(t *testing.T) {
	rdb, mr := newRedis(t)
	mr.Close()
	s := New(Options{Redis: rdb})

	require.NoError(t, s.Set(context.Background(), "k", 7, 0))

	v, ok := Get[int](s, "k")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestStore_CountsHitsAndMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Options{Metrics: metrics.New(reg)})
	require.NoError(t, s.Set(context.Background(), "k", 1, 0))

	Get[int](s, "k")
	Get[int](s, "nope")
	Get[int](s, "nope")

	expected := `
# HELP marketplace_cache_requests_total Cache store lookups by result.
# TYPE marketplace_cache_requests_total counter
marketplace_cache_requests_total{result="hit"} 1
marketplace_cache_requests_total{result="miss"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "marketplace_cache_requests_total"))
}

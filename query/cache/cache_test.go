package cache

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLRUGetSet(t *testing.T) {
	c := New[string]("plans", 2)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, "one")
	c.Set(2, "two")
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	c.Set(2, "deux")
	v, _ = c.Get(2)
	assert.Equal(t, "deux", v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int]("plans", 2)
	var evicted []uint64
	c.OnEvict = func(key uint64, _ int) { evicted = append(evicted, key) }

	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Set(3, 3)

	assert.Equal(t, []uint64{2}, evicted)
	_, ok := c.Get(2)
	assert.False(t, ok)
	_, ok = c.Get(1)
	assert.True(t, ok)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Evictions)
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, 2, st.MaxSize)
}

func TestLRUDisabled(t *testing.T) {
	c := New[int]("statements", 0)
	c.Set(1, 1)
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestLRUInvalidateAndClear(t *testing.T) {
	c := New[int]("plans", 4)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	c.Invalidate(2)
	_, ok := c.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	// The list stays consistent after removing from the middle.
	c.Set(4, 4)
	c.Set(5, 5)
	c.Set(6, 6)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, Stats{MaxSize: 4}, c.Stats())
}

func TestLRUStats(t *testing.T) {
	c := New[int]("plans", 4)
	c.Set(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(1)
	c.Get(2)

	st := c.Stats()
	assert.Equal(t, int64(3), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 75.0, st.HitRate, 0.001)
}

func TestLRUConcurrent(t *testing.T) {
	c := New[int]("plans", 16)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				key := uint64((w*31 + i) % 40)
				if v, ok := c.Get(key); ok && v != int(key) {
					t.Errorf("key %d holds %d", key, v)
				}
				c.Set(key, int(key))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	st := c.Stats()
	assert.LessOrEqual(t, st.Size, 16)
	assert.Equal(t, int64(8000), st.Hits+st.Misses)
}

func TestCollector(t *testing.T) {
	plans := New[int]("plans", 1)
	statements := New[string]("statements", 4)
	plans.Set(1, 1)
	plans.Set(2, 2)
	plans.Get(2)
	statements.Get(7)

	c := NewCollector(prometheus.Opts{Namespace: "objql", Subsystem: "cache"}, plans, statements)
	assert.Equal(t, 8, testutil.CollectAndCount(c))

	expected := `
# HELP objql_cache_hits_total Cache lookups that found an entry.
# TYPE objql_cache_hits_total counter
objql_cache_hits_total{cache="plans"} 1
objql_cache_hits_total{cache="statements"} 0
# HELP objql_cache_evictions_total Entries dropped to make room.
# TYPE objql_cache_evictions_total counter
objql_cache_evictions_total{cache="plans"} 1
objql_cache_evictions_total{cache="statements"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"objql_cache_hits_total", "objql_cache_evictions_total"))
}

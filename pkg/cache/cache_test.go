package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

func resultWithRows(n int) *models.ExecutionResult {
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{int64(i)}
	}
	return &models.ExecutionResult{Columns: []string{"count"}, Rows: rows, TotalMatched: n}
}

func TestResultCache_PutGet(t *testing.T) {
	c := New(8, time.Minute)
	key := Key("sess-1", models.QueryPlan{GroupBy: []string{"driver"}})

	_, ok := c.Get(key)
	assert.False(t, ok)

	want := resultWithRows(3)
	c.Put(key, want)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, want, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestResultCache_KeyDistinguishesPlans(t *testing.T) {
	a := Key("sess-1", models.QueryPlan{GroupBy: []string{"driver"}})
	b := Key("sess-1", models.QueryPlan{GroupBy: []string{"route"}})
	other := Key("sess-2", models.QueryPlan{GroupBy: []string{"driver"}})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Equal(t, a, Key("sess-1", models.QueryPlan{GroupBy: []string{"driver"}}))
}

func TestResultCache_TTLExpiry(t *testing.T) {
	c := New(8, 10*time.Millisecond)
	key := Key("sess-1", models.QueryPlan{Limit: 5})
	c.Put(key, resultWithRows(1))

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Minute)
	first := Key("s", models.QueryPlan{Limit: 1})
	second := Key("s", models.QueryPlan{Limit: 2})
	third := Key("s", models.QueryPlan{Limit: 3})

	c.Put(first, resultWithRows(1))
	c.Put(second, resultWithRows(2))

	// Touch first so second becomes the eviction candidate.
	_, ok := c.Get(first)
	require.True(t, ok)

	c.Put(third, resultWithRows(3))

	_, ok = c.Get(first)
	assert.True(t, ok)
	_, ok = c.Get(second)
	assert.False(t, ok)
	_, ok = c.Get(third)
	assert.True(t, ok)
}

func TestResultCache_InvalidateSession(t *testing.T) {
	c := New(8, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(Key("sess-a", models.QueryPlan{Limit: i + 1}), resultWithRows(i))
	}
	keep := Key("sess-b", models.QueryPlan{Limit: 1})
	c.Put(keep, resultWithRows(9))

	c.InvalidateSession("sess-a")

	assert.Equal(t, 1, c.Stats().Entries)
	_, ok := c.Get(keep)
	assert.True(t, ok)
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	c := New(32, time.Minute)
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := Key(fmt.Sprintf("sess-%d", g), models.QueryPlan{Limit: i % 8})
				c.Put(key, resultWithRows(1))
				c.Get(key)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.LessOrEqual(t, c.Stats().Entries, 32)
}

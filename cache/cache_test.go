package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/models"
)

func constant(v interface{}) func(context.Context) (interface{}, error) {
	return func(context.Context) (interface{}, error) { return v, nil }
}

func TestGetOrLoadCaches(t *testing.T) {
	c := New(Config{Capacity: 4, TTL: time.Minute})
	ctx := context.Background()
	var loads int32

	load := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return "result", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(ctx, Key("search", "民法典"), []string{CorpusTag}, load)
		require.NoError(t, err)
		assert.Equal(t, "result", v)
	}
	assert.Equal(t, int32(1), loads)

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
}

func TestLoadErrorsAreNotCached(t *testing.T) {
	c := New(DefaultConfig())
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", nil, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c := New(Config{Capacity: 2, TTL: time.Minute})
	ctx := context.Background()

	_, _ = c.GetOrLoad(ctx, "a", nil, constant(1))
	_, _ = c.GetOrLoad(ctx, "b", nil, constant(2))
	_, ok := c.Get("a")
	require.True(t, ok)
	_, _ = c.GetOrLoad(ctx, "c", nil, constant(3))

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{Capacity: 8, TTL: time.Minute}, WithClock(func() time.Time { return now }))

	_, _ = c.GetOrLoad(context.Background(), "a", nil, constant(1))
	_, ok := c.Get("a")
	require.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestInvalidateByTag(t *testing.T) {
	c := New(DefaultConfig())
	ctx := context.Background()

	_, _ = c.GetOrLoad(ctx, "article:1", []string{LawTag("A")}, constant("a1"))
	_, _ = c.GetOrLoad(ctx, "article:2", []string{LawTag("B")}, constant("b1"))
	_, _ = c.GetOrLoad(ctx, "search", []string{CorpusTag}, constant("s1"))

	c.Invalidate(LawTag("A"), CorpusTag)

	_, ok := c.Get("article:1")
	assert.False(t, ok)
	_, ok = c.Get("search")
	assert.False(t, ok)
	v, ok := c.Get("article:2")
	assert.True(t, ok)
	assert.Equal(t, "b1", v)
	assert.Equal(t, int64(2), c.Stats().Invalidations)
}

// A load that started before an invalidation must not be stored after it.
func TestInvalidationDuringLoadIsNotStored(t *testing.T) {
	c := New(DefaultConfig())
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan interface{})
	go func() {
		v, _ := c.GetOrLoad(ctx, "k", []string{LawTag("A")}, func(context.Context) (interface{}, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate(LawTag("A"))
	close(release)
	assert.Equal(t, "stale", <-done)

	_, ok := c.Get("k")
	assert.False(t, ok)

	v, err := c.GetOrLoad(ctx, "k", []string{LawTag("A")}, constant("fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	v, ok = c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	c := New(DefaultConfig())
	var loads int32
	gate := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", nil, func(context.Context) (interface{}, error) {
				atomic.AddInt32(&loads, 1)
				<-gate
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(10))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(1))
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestSharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	c := New(DefaultConfig())
	var loads int32
	started := make(chan struct{})
	gate := make(chan struct{})

	load := func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
		}
		<-gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return "law", nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(first, "k", nil, load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   interface{}
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", nil, load)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, models.ErrTimeout)

	close(gate)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, "law", r.v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestPurge(t *testing.T) {
	c := New(DefaultConfig())
	ctx := context.Background()
	_, _ = c.GetOrLoad(ctx, "a", []string{LawTag("A")}, constant(1))
	_, _ = c.GetOrLoad(ctx, "b", nil, constant(2))

	c.Purge()
	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("get_article", "a", "1"), Key("get_article", "a", "1"))
	assert.NotEqual(t, Key("get_article", "a1", ""), Key("get_article", "a", "1"))
	assert.NotEqual(t, Key("search_laws", "x"), Key("search_articles", "x"))
}

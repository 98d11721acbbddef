// Package cache is the query-result cache in front of store reads. Entries
// carry tags (a law id, or the corpus-wide tag) and a write that touches a
// tag invalidates every entry carrying it before any later read may
// repopulate them.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sublatesublate-design/legal-database/models"

	"golang.org/x/sync/singleflight"
)

// CorpusTag marks results that depend on the whole corpus, such as search
// rankings and name resolution
const CorpusTag = "corpus"

// LawTag returns the tag for results scoped to one law
func LawTag(lawID string) string {
	return "law:" + lawID
}

// Key builds a cache key from an operation name and its normalized arguments
func Key(op string, args ...string) string {
	return op + "\x00" + strings.Join(args, "\x1f")
}

// Config holds cache sizing
type Config struct {
	Capacity int
	TTL      time.Duration
}

// DefaultConfig returns the default sizing
func DefaultConfig() Config {
	return Config{Capacity: 1024, TTL: 10 * time.Minute}
}

type entry struct {
	key     string
	value   interface{}
	tags    []string
	gens    []uint64
	expires time.Time
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries       int   `json:"entries"`
	Capacity      int   `json:"capacity"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
}

// Cache is an LRU cache with TTL expiry and tag invalidation. It is safe for
// concurrent use.
type Cache struct {
	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	gens  map[string]uint64

	flight singleflight.Group
	cfg    Config
	now    func() time.Time

	hits          int64
	misses        int64
	evictions     int64
	invalidations int64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock sets the time source used for TTL expiry
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache
func New(cfg Config, opts ...Option) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	c := &Cache{
		ll:    list.New(),
		items: make(map[string]*list.Element),
		gens:  make(map[string]uint64),
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) currentGens(tags []string) []uint64 {
	gens := make([]uint64, len(tags))
	for i, t := range tags {
		gens[i] = c.gens[t]
	}
	return gens
}

func (c *Cache) valid(e *entry) bool {
	if c.cfg.TTL > 0 && !c.now().Before(e.expires) {
		return false
	}
	for i, t := range e.tags {
		if c.gens[t] != e.gens[i] {
			return false
		}
	}
	return true
}

// Get returns a live entry and marks it recently used
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.valid(e) {
		c.removeLocked(el)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// set stores a value computed while the tags were at gens. A value computed
// before an invalidation of any of its tags is dropped.
func (c *Cache) set(key string, value interface{}, tags []string, gens []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range tags {
		if c.gens[t] != gens[i] {
			return
		}
	}

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	e := &entry{
		key:     key,
		value:   value,
		tags:    tags,
		gens:    gens,
		expires: c.now().Add(c.cfg.TTL),
	}
	c.items[key] = c.ll.PushFront(e)

	for c.ll.Len() > c.cfg.Capacity {
		c.removeLocked(c.ll.Back())
		atomic.AddInt64(&c.evictions, 1)
	}
}

// GetOrLoad returns the cached value for key or computes it with load.
// Concurrent misses for the same key and tag generations share one load.
func (c *Cache) GetOrLoad(ctx context.Context, key string, tags []string, load func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}

	c.mu.Lock()
	gens := c.currentGens(tags)
	c.mu.Unlock()

	flightKey := key
	for _, g := range gens {
		flightKey += "\x00" + strconv.FormatUint(g, 10)
	}

	ch := c.flight.DoChan(flightKey, func() (interface{}, error) {
		lctx, cancel := detach(ctx)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.set(key, v, tags, gens)
		return v, nil
	})

	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", models.ErrTimeout, ctx.Err())
	}
}

// detach keeps ctx's values and deadline but drops its cancellation, so a
// shared load outlives the caller that started it.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}

// Invalidate drops every entry carrying any of the tags and bumps their
// generations so in-flight loads started earlier are not stored
func (c *Cache) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		c.gens[t]++
		dropped[t] = struct{}{}
	}

	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		for _, t := range el.Value.(*entry).tags {
			if _, ok := dropped[t]; ok {
				c.removeLocked(el)
				atomic.AddInt64(&c.invalidations, 1)
				break
			}
		}
		el = next
	}
}

// Purge empties the cache. Generations advance so no earlier load is stored.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for t := range c.gens {
		c.gens[t]++
	}
	c.gens[CorpusTag]++
	atomic.AddInt64(&c.invalidations, int64(c.ll.Len()))
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *Cache) removeLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// Len returns the number of stored entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns the current counters
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Capacity:      c.cfg.Capacity,
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Evictions:     atomic.LoadInt64(&c.evictions),
		Invalidations: atomic.LoadInt64(&c.invalidations),
	}
}

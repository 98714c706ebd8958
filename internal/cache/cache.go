package cache

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Strategy selects which entries are evicted when the cache is over size.
type Strategy string

const (
	// LRU evicts the least recently accessed entries.
	LRU Strategy = "lru"
	// FIFO evicts the oldest inserted entries.
	FIFO Strategy = "fifo"
	// TTL orders eviction like FIFO; expiry itself applies to every strategy.
	TTL Strategy = "ttl"
)

// Config bounds a cache.
type Config struct {
	TTL      time.Duration
	MaxSize  int
	Strategy Strategy
}

// DefaultConfig is five minutes, 100 entries, LRU.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, MaxSize: 100, Strategy: LRU}
}

// Entry is one cached payload with its access bookkeeping.
type Entry[T any] struct {
	Data         T         `json:"data"`
	Timestamp    time.Time `json:"timestamp"`
	AccessCount  int       `json:"accessCount"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Hooks are called outside the cache lock.
type Hooks struct {
	OnHit   func(key string)
	OnMiss  func(key string)
	OnEvict func(key string)
}

// Options configures a cache. Zero or negative Config fields take their
// DefaultConfig value.
type Options struct {
	Config Config
	Hooks  Hooks
	Logger *zap.Logger
	Now    func() time.Time
}

// Fetcher loads the value for one key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Stats is a read-only view of the cache contents.
type Stats struct {
	TotalItems         int
	ExpiredItems       int
	TotalAccesses      int
	AverageAccessCount float64
	// Oldest and Newest are zero when the cache is empty.
	Oldest time.Time
	Newest time.Time
}

// Cache is a persisted key/value cache with expiry, a size bound, and
// per-key fetchers. Concurrent Get calls for the same missing key share a
// single fetch.
type Cache[T any] struct {
	name  string
	cfg   Config
	hooks Hooks
	log   *zap.Logger
	now   func() time.Time
	item  *persist.Item[map[string]Entry[T]]

	mu       sync.Mutex
	fetchers map[string]Fetcher[T]

	group   singleflight.Group
	loading atomic.Int32

	errMu   sync.Mutex
	lastErr error
}

// New returns the cache named cacheKey, persisted under "cache_<cacheKey>".
func New[T any](store *storage.Store, cacheKey string, opts Options) *Cache[T] {
	cfg, def := opts.Config, DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("cache", cacheKey))
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		name:  cacheKey,
		cfg:   cfg,
		hooks: opts.Hooks,
		log:   log,
		now:   now,
		item: persist.NewWithCodec(store, "cache_"+cacheKey, map[string]Entry[T]{},
			persist.Object[map[string]Entry[T]](), persist.WithLogger(log)),
		fetchers: make(map[string]Fetcher[T]),
	}
}

// Name reports the cache key.
func (c *Cache[T]) Name() string { return c.name }

// Config reports the effective configuration.
func (c *Cache[T]) Config() Config { return c.cfg }

// RegisterFetcher sets the loader Get uses for key.
func (c *Cache[T]) RegisterFetcher(key string, fn Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[key] = fn
}

// Get returns the cached value for key, fetching it when missing or expired.
// found is false only when nothing is cached and no fetcher is registered.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if v, ok := c.GetCached(key); ok {
		return v, true, nil
	}

	c.mu.Lock()
	fetch := c.fetchers[key]
	c.mu.Unlock()
	if fetch == nil {
		c.fire(c.hooks.OnMiss, key)
		return zero, false, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		c.loading.Add(1)
		defer c.loading.Add(-1)

		// The shared fetch outlives any single waiter's cancellation.
		v, err := fetch(context.WithoutCancel(ctx))
		c.setErr(err)
		if err != nil {
			return nil, err
		}
		c.SetCached(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, fmt.Errorf("fetch %s/%s: %w", c.name, key, res.Err)
		}
		return res.Val.(T), true, nil
	}
}

// GetCached returns a valid cached value and records the access. An expired
// entry is removed and reported as evicted.
func (c *Cache[T]) GetCached(key string) (T, bool) {
	var zero T
	now := c.now()

	c.mu.Lock()
	entries := c.item.Get()
	e, ok := entries[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	next := maps.Clone(entries)
	if c.expired(e, now) {
		delete(next, key)
		c.item.Set(next)
		c.mu.Unlock()
		c.fire(c.hooks.OnEvict, key)
		return zero, false
	}
	e.AccessCount++
	e.LastAccessed = now
	next[key] = e
	c.item.Set(next)
	c.mu.Unlock()

	c.fire(c.hooks.OnHit, key)
	return e.Data, true
}

// IsCached reports whether key holds an unexpired entry. It does not count
// as an access.
func (c *Cache[T]) IsCached(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.item.Get()[key]
	return ok && !c.expired(e, c.now())
}

// SetCached stores data under key and evicts by strategy if over size.
func (c *Cache[T]) SetCached(key string, data T) {
	now := c.now()

	c.mu.Lock()
	next := maps.Clone(c.item.Get())
	if next == nil {
		next = make(map[string]Entry[T])
	}
	next[key] = Entry[T]{Data: data, Timestamp: now, AccessCount: 1, LastAccessed: now}
	evicted := c.evict(next)
	c.item.Set(next)
	c.mu.Unlock()

	for _, k := range evicted {
		c.fire(c.hooks.OnEvict, k)
	}
}

// Invalidate removes key, reporting it as evicted if it was present.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	entries := c.item.Get()
	if _, ok := entries[key]; !ok {
		c.mu.Unlock()
		return
	}
	next := maps.Clone(entries)
	delete(next, key)
	c.item.Set(next)
	c.mu.Unlock()

	c.fire(c.hooks.OnEvict, key)
}

// InvalidateAll empties the cache without per-key callbacks.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.item.Set(map[string]Entry[T]{})
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[T]) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	entries := c.item.Get()
	var expired []string
	for k, e := range entries {
		if c.expired(e, now) {
			expired = append(expired, k)
		}
	}
	if len(expired) > 0 {
		next := maps.Clone(entries)
		for _, k := range expired {
			delete(next, k)
		}
		c.item.Set(next)
	}
	c.mu.Unlock()

	sort.Strings(expired)
	for _, k := range expired {
		c.fire(c.hooks.OnEvict, k)
	}
	return len(expired)
}

// Run calls Cleanup every TTL until ctx is done.
func (c *Cache[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.log.Debug("expired entries removed", zap.Int("count", n))
			}
		}
	}
}

// Stats summarises the current entries, expired ones included.
func (c *Cache[T]) Stats() Stats {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	for _, e := range c.item.Get() {
		s.TotalItems++
		if c.expired(e, now) {
			s.ExpiredItems++
		}
		s.TotalAccesses += e.AccessCount
		if s.Oldest.IsZero() || e.Timestamp.Before(s.Oldest) {
			s.Oldest = e.Timestamp
		}
		if e.Timestamp.After(s.Newest) {
			s.Newest = e.Timestamp
		}
	}
	if s.TotalItems > 0 {
		s.AverageAccessCount = float64(s.TotalAccesses) / float64(s.TotalItems)
	}
	return s
}

// Keys lists cached keys, expired ones included, in lexical order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.item.Get()))
	for k := range c.item.Get() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loading reports whether a fetch is in flight.
func (c *Cache[T]) Loading() bool { return c.loading.Load() > 0 }

// Err reports the error of the most recent fetch, nil after a success.
func (c *Cache[T]) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Close stops following writes from other processes.
func (c *Cache[T]) Close() { c.item.Close() }

func (c *Cache[T]) expired(e Entry[T], now time.Time) bool {
	return now.Sub(e.Timestamp) > c.cfg.TTL
}

// evict trims entries to MaxSize in place and returns the removed keys.
func (c *Cache[T]) evict(entries map[string]Entry[T]) []string {
	over := len(entries) - c.cfg.MaxSize
	if c.cfg.MaxSize <= 0 || over <= 0 {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := entries[keys[i]], entries[keys[j]]
		ta, tb := a.Timestamp, b.Timestamp
		if c.cfg.Strategy == LRU {
			ta, tb = a.LastAccessed, b.LastAccessed
		}
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return keys[i] < keys[j]
	})
	evicted := keys[:over]
	for _, k := range evicted {
		delete(entries, k)
	}
	return evicted
}

func (c *Cache[T]) setErr(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Cache[T]) fire(fn func(string), key string) {
	if fn != nil {
		fn(key)
	}
}

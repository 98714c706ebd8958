package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/recipunto/internal/storage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type hookLog struct {
	mu                  sync.Mutex
	hits, misses, evics []string
}

func (h *hookLog) hooks() Hooks {
	rec := func(dst *[]string) func(string) {
		return func(k string) {
			h.mu.Lock()
			*dst = append(*dst, k)
			h.mu.Unlock()
		}
	}
	return Hooks{OnHit: rec(&h.hits), OnMiss: rec(&h.misses), OnEvict: rec(&h.evics)}
}

func (h *hookLog) evicted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.evics...)
}

func openStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.db")
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func newCache(t *testing.T, cfg Config, clk *clock, h *hookLog) *Cache[string] {
	t.Helper()
	s, _ := openStore(t)
	return New[string](s, "test", Options{Config: cfg, Hooks: h.hooks(), Now: clk.Now})
}

func TestLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Hour, MaxSize: 3, Strategy: LRU}, clk, h)

	for _, k := range []string{"a", "b", "c"} {
		c.SetCached(k, k)
		clk.Advance(time.Second)
	}
	// Touch a and b so c becomes the least recently accessed.
	c.GetCached("a")
	clk.Advance(time.Second)
	c.GetCached("b")
	clk.Advance(time.Second)

	c.SetCached("d", "d")

	if got := h.evicted(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("evicted %v, want [c]", got)
	}
	if !reflect.DeepEqual(c.Keys(), []string{"a", "b", "d"}) {
		t.Fatalf("keys = %v", c.Keys())
	}
}

func TestFIFOIgnoresAccess(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Hour, MaxSize: 2, Strategy: FIFO}, clk, h)

	c.SetCached("a", "a")
	clk.Advance(time.Second)
	c.SetCached("b", "b")
	clk.Advance(time.Second)
	c.GetCached("a")
	c.SetCached("c", "c")

	if got := h.evicted(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("evicted %v, want [a]", got)
	}
}

func TestExpiredReadEvictsOnce(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	c.SetCached("k", "v")
	clk.Advance(time.Minute)
	if _, ok := c.GetCached("k"); !ok {
		t.Fatalf("entry at exactly TTL should still be valid")
	}

	clk.Advance(time.Millisecond)
	if c.IsCached("k") {
		t.Fatalf("IsCached true past TTL")
	}
	if _, ok := c.GetCached("k"); ok {
		t.Fatalf("expired entry returned")
	}
	if _, ok := c.GetCached("k"); ok {
		t.Fatalf("expired entry returned on second read")
	}
	if got := h.evicted(); !reflect.DeepEqual(got, []string{"k"}) {
		t.Fatalf("evicted %v, want exactly one eviction of k", got)
	}
}

func TestGetUsesFetcherAndCachesResult(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "boxes"); found || err != nil {
		t.Fatalf("Get without fetcher = found %v err %v", found, err)
	}
	if !reflect.DeepEqual(h.misses, []string{"boxes"}) {
		t.Fatalf("misses = %v", h.misses)
	}

	calls := 0
	c.RegisterFetcher("boxes", func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	})
	for i := 0; i < 3; i++ {
		v, found, err := c.Get(ctx, "boxes")
		if err != nil || !found || v != "fresh" {
			t.Fatalf("Get = %q %v %v", v, found, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetcher called %d times, want 1", calls)
	}
	if len(h.hits) != 2 {
		t.Fatalf("hits = %v, want two", h.hits)
	}
}

func TestGetPropagatesFetchError(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	boom := errors.New("offline")
	c.RegisterFetcher("k", func(context.Context) (string, error) { return "", boom })
	if _, _, err := c.Get(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("Get error = %v, want %v", err, boom)
	}
	if !errors.Is(c.Err(), boom) {
		t.Fatalf("Err() = %v", c.Err())
	}
	if c.IsCached("k") {
		t.Fatalf("failed fetch cached a value")
	}
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	var calls atomic.Int32
	release := make(chan struct{})
	c.RegisterFetcher("k", func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	})

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.Get(context.Background(), "k")
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = v
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !c.Loading() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetcher called %d times, want 1", got)
	}
	for i, v := range results {
		if v != "v" {
			t.Fatalf("result[%d] = %q", i, v)
		}
	}
}

func TestGetHonoursCallerContext(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	release := make(chan struct{})
	defer close(release)
	c.RegisterFetcher("slow", func(context.Context) (string, error) {
		<-release
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := c.Get(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get error = %v, want deadline exceeded", err)
	}
}

func TestInvalidateAndCleanup(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	c.Invalidate("absent")
	if len(h.evicted()) != 0 {
		t.Fatalf("invalidating an absent key fired evict")
	}

	c.SetCached("a", "1")
	c.SetCached("b", "2")
	c.Invalidate("a")
	if c.IsCached("a") || !c.IsCached("b") {
		t.Fatalf("Invalidate removed the wrong keys: %v", c.Keys())
	}

	c.SetCached("c", "3")
	clk.Advance(2 * time.Minute)
	c.SetCached("d", "4")
	if n := c.Cleanup(); n != 2 {
		t.Fatalf("Cleanup removed %d, want 2", n)
	}
	if n := c.Cleanup(); n != 0 {
		t.Fatalf("second Cleanup removed %d, want 0", n)
	}
	if !reflect.DeepEqual(c.Keys(), []string{"d"}) {
		t.Fatalf("keys after cleanup = %v", c.Keys())
	}

	before := len(h.evicted())
	c.InvalidateAll()
	if len(c.Keys()) != 0 || len(h.evicted()) != before {
		t.Fatalf("InvalidateAll left %v or fired evict", c.Keys())
	}
}

func TestStats(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{TTL: time.Minute, MaxSize: 10, Strategy: LRU}, clk, h)

	if s := c.Stats(); s != (Stats{}) {
		t.Fatalf("empty stats = %#v", s)
	}
	first := clk.Now()
	c.SetCached("a", "1")
	clk.Advance(2 * time.Minute)
	last := clk.Now()
	c.SetCached("b", "2")
	c.GetCached("b")
	c.GetCached("b")

	s := c.Stats()
	want := Stats{TotalItems: 2, ExpiredItems: 1, TotalAccesses: 4, AverageAccessCount: 2, Oldest: first, Newest: last}
	if !s.Oldest.Equal(want.Oldest) || !s.Newest.Equal(want.Newest) {
		t.Fatalf("oldest/newest = %v/%v, want %v/%v", s.Oldest, s.Newest, first, last)
	}
	s.Oldest, s.Newest = want.Oldest, want.Newest
	if s != want {
		t.Fatalf("stats = %#v, want %#v", s, want)
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	s, path := openStore(t)
	clk := newClock()
	c := New[string](s, "persisted", Options{Config: Config{TTL: time.Hour, MaxSize: 5}, Now: clk.Now})
	c.SetCached("k", "v")

	s2, err := storage.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	again := New[string](s2, "persisted", Options{Config: Config{TTL: time.Hour, MaxSize: 5}, Now: clk.Now})
	if v, ok := again.GetCached("k"); !ok || v != "v" {
		t.Fatalf("reopened cache = %q %v", v, ok)
	}
	if again.Config().Strategy != LRU {
		t.Fatalf("empty strategy should default to lru")
	}
}

func TestPresets(t *testing.T) {
	s, _ := openStore(t)
	boxes := NewBoxCache(s, Options{})
	if boxes.Name() != BoxCacheKey || boxes.Config() != (Config{TTL: 2 * time.Minute, MaxSize: 50, Strategy: LRU}) {
		t.Fatalf("box cache config = %s %#v", boxes.Name(), boxes.Config())
	}
	users := NewUserCache(s, Options{})
	if users.Config().TTL != 10*time.Minute || users.Config().MaxSize != 20 {
		t.Fatalf("user cache config = %#v", users.Config())
	}
}

func TestPartialConfigTakesFieldDefaults(t *testing.T) {
	clk, h := newClock(), &hookLog{}
	c := newCache(t, Config{MaxSize: 10, Strategy: FIFO}, clk, h)

	want := Config{TTL: DefaultConfig().TTL, MaxSize: 10, Strategy: FIFO}
	if c.Config() != want {
		t.Fatalf("config = %+v, want %+v", c.Config(), want)
	}
	c.SetCached("k", "v")
	if !c.IsCached("k") {
		t.Fatalf("entry expired immediately")
	}

	neg := newCache(t, Config{TTL: -time.Second, MaxSize: -1}, clk, h)
	if neg.Config() != DefaultConfig() {
		t.Fatalf("negative config = %+v, want defaults", neg.Config())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx)
}

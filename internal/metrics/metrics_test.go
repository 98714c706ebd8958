package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/five82/recipunto/internal/cache"
	"github.com/five82/recipunto/internal/state"
)

func TestCacheHooksCountAndChain(t *testing.T) {
	r := New()
	var evicted []string
	hooks := r.CacheHooks("boxes", cache.Hooks{OnEvict: func(k string) { evicted = append(evicted, k) }})

	hooks.OnHit("a")
	hooks.OnHit("b")
	hooks.OnMiss("c")
	hooks.OnEvict("d")

	if got := testutil.ToFloat64(r.cacheHits.WithLabelValues("boxes")); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.cacheMisses.WithLabelValues("boxes")); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.cacheEvictions.WithLabelValues("boxes")); got != 1 {
		t.Fatalf("evictions = %v, want 1", got)
	}
	if len(evicted) != 1 || evicted[0] != "d" {
		t.Fatalf("chained OnEvict saw %v", evicted)
	}
}

func TestSyncRecorder(t *testing.T) {
	r := New()
	r.ChangeApplied("INSERT")
	r.ChangeApplied("INSERT")
	r.Reconnect()
	r.FetchObserved(10*time.Millisecond, nil)
	r.FetchObserved(10*time.Millisecond, errors.New("down"))
	r.ConnState(state.Stale)

	if got := testutil.ToFloat64(r.changes.WithLabelValues("INSERT")); got != 2 {
		t.Fatalf("changes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.reconnects); got != 1 {
		t.Fatalf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.fetchFailures); got != 1 {
		t.Fatalf("fetch failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.connState); got != float64(state.Stale) {
		t.Fatalf("conn state = %v, want %d", got, state.Stale)
	}
}

func TestHandlerServesText(t *testing.T) {
	r := New()
	r.Reconnect()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "recipunto_sync_reconnects_total 1") {
		t.Fatalf("metrics output missing reconnect counter:\n%s", body)
	}
}

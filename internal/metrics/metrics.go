// Package metrics exposes client-side counters for the cache and the box
// syncer through a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/five82/recipunto/internal/cache"
	"github.com/five82/recipunto/internal/state"
)

const namespace = "recipunto"

// Registry holds every collector the client records into.
type Registry struct {
	reg *prometheus.Registry

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	changes       *prometheus.CounterVec
	reconnects    prometheus.Counter
	fetchSeconds  prometheus.Histogram
	fetchFailures prometheus.Counter
	connState     prometheus.Gauge
}

// New builds a Registry with Go runtime collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache lookups answered from a fresh entry.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache lookups with no fresh entry.",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Entries removed by expiry, capacity or invalidation.",
		}, []string{"cache"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "changes_total",
			Help: "Realtime row changes applied to the local collection.",
		}, []string{"type"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "reconnects_total",
			Help: "Change feed reconnect attempts.",
		}),
		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sync", Name: "fetch_duration_seconds",
			Help:    "Full collection fetch latency.",
			Buckets: prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "fetch_failures_total",
			Help: "Full collection fetches that returned an error.",
		}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "connection_state",
			Help: "0 disconnected, 1 connecting, 2 synced, 3 stale.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.cacheHits, r.cacheMisses, r.cacheEvictions,
		r.changes, r.reconnects, r.fetchSeconds, r.fetchFailures, r.connState,
	)
	return r
}

// Gatherer returns the underlying registry for scraping or inspection.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// CacheHooks counts hits, misses and evictions for the named cache. Any hook
// already set in next still runs.
func (r *Registry) CacheHooks(name string, next cache.Hooks) cache.Hooks {
	hits := r.cacheHits.WithLabelValues(name)
	misses := r.cacheMisses.WithLabelValues(name)
	evictions := r.cacheEvictions.WithLabelValues(name)
	return cache.Hooks{
		OnHit:   chain(hits.Inc, next.OnHit),
		OnMiss:  chain(misses.Inc, next.OnMiss),
		OnEvict: chain(evictions.Inc, next.OnEvict),
	}
}

func chain(inc func(), next func(string)) func(string) {
	return func(key string) {
		inc()
		if next != nil {
			next(key)
		}
	}
}

// ChangeApplied counts one applied change of the given row operation.
func (r *Registry) ChangeApplied(kind string) { r.changes.WithLabelValues(kind).Inc() }

// Reconnect counts one reconnect attempt.
func (r *Registry) Reconnect() { r.reconnects.Inc() }

// FetchObserved records a full fetch.
func (r *Registry) FetchObserved(d time.Duration, err error) {
	r.fetchSeconds.Observe(d.Seconds())
	if err != nil {
		r.fetchFailures.Inc()
	}
}

// ConnState records the current connection state.
func (r *Registry) ConnState(c state.ConnState) { r.connState.Set(float64(c)) }

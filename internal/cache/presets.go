package cache

import (
	"encoding/json"
	"time"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/storage"
	"go.uber.org/zap"
)

const (
	BoxCacheKey  = "recycling-boxes"
	UserCacheKey = "user-data"
)

// NewBoxCache returns the box list cache: two minutes, 50 entries, LRU.
// Nil hooks are replaced by debug logging.
func NewBoxCache(store *storage.Store, opts Options) *Cache[[]box.Box] {
	opts.Config = Config{TTL: 2 * time.Minute, MaxSize: 50, Strategy: LRU}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Hooks.OnHit == nil {
		opts.Hooks.OnHit = func(k string) { log.Debug("cache hit", zap.String("key", k)) }
	}
	if opts.Hooks.OnMiss == nil {
		opts.Hooks.OnMiss = func(k string) { log.Debug("cache miss", zap.String("key", k)) }
	}
	if opts.Hooks.OnEvict == nil {
		opts.Hooks.OnEvict = func(k string) { log.Debug("cache evicted", zap.String("key", k)) }
	}
	return New[[]box.Box](store, BoxCacheKey, opts)
}

// NewUserCache returns the user data cache: ten minutes, 20 entries, LRU.
func NewUserCache(store *storage.Store, opts Options) *Cache[json.RawMessage] {
	opts.Config = Config{TTL: 10 * time.Minute, MaxSize: 20, Strategy: LRU}
	return New[json.RawMessage](store, UserCacheKey, opts)
}

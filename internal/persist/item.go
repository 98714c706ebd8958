package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/five82/recipunto/internal/storage"
	"go.uber.org/zap"
)

// Option configures an Item.
type Option func(*options)

type options struct {
	log            *zap.Logger
	noSync         bool
	followRemovals bool
}

// WithLogger sets the logger used for decode and write warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithoutSync stops the item from following writes made by other processes.
func WithoutSync() Option {
	return func(o *options) { o.noSync = true }
}

// FollowRemovals resets the item to its default when another process removes
// the stored value.
func FollowRemovals() Option {
	return func(o *options) { o.followRemovals = true }
}

// Item is a typed value persisted under one storage key. Reads are served
// from memory. Writes update memory first and then the store; a failed write
// is logged and the in-memory value is kept.
//
// Subscribers run synchronously on the writing goroutine and must not write
// to the same Item.
type Item[T any] struct {
	store *storage.Store
	key   string
	def   T
	codec Codec[T]
	log   *zap.Logger

	followRemovals bool

	writeMu sync.Mutex

	mu      sync.RWMutex
	value   T
	subs    map[int]func(T)
	nextSub int

	stopSync func()
}

// New returns an Item using the JSON codec.
func New[T any](store *storage.Store, key string, def T, opts ...Option) *Item[T] {
	return NewWithCodec(store, key, def, JSON[T](), opts...)
}

// NewWithCodec returns an Item using codec. The stored value is loaded once;
// a missing or undecodable value yields def.
func NewWithCodec[T any](store *storage.Store, key string, def T, codec Codec[T], opts ...Option) *Item[T] {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	it := &Item[T]{
		store: store,
		key:   key,
		def:   def,
		codec: codec,
		log:   o.log.With(zap.String("key", key)),
		value: def,
		subs:  make(map[int]func(T)),

		followRemovals: o.followRemovals,
	}
	it.value = it.load()
	if !o.noSync {
		it.stopSync = store.OnChange(it.onForeign)
	}
	return it
}

// Key reports the storage key.
func (it *Item[T]) Key() string { return it.key }

// Default reports the fallback value.
func (it *Item[T]) Default() T { return it.def }

// Get returns the current value.
func (it *Item[T]) Get() T {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.value
}

// Set replaces the value and persists it.
func (it *Item[T]) Set(v T) {
	it.writeMu.Lock()
	defer it.writeMu.Unlock()
	it.set(v)
}

// Update applies fn to the current value and persists the result.
func (it *Item[T]) Update(fn func(T) T) {
	it.writeMu.Lock()
	defer it.writeMu.Unlock()
	it.set(fn(it.Get()))
}

// Remove deletes the stored value and resets memory to the default.
func (it *Item[T]) Remove() {
	it.writeMu.Lock()
	defer it.writeMu.Unlock()

	it.replace(it.def)
	if err := it.store.RemoveItem(context.Background(), it.key); err != nil {
		it.log.Warn("remove stored value", zap.Error(err))
	}
}

// Subscribe registers fn for every value change, local or foreign. The
// returned function unregisters it.
func (it *Item[T]) Subscribe(fn func(T)) func() {
	it.mu.Lock()
	id := it.nextSub
	it.nextSub++
	it.subs[id] = fn
	it.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			it.mu.Lock()
			delete(it.subs, id)
			it.mu.Unlock()
		})
	}
}

// Close stops following foreign writes.
func (it *Item[T]) Close() {
	if it.stopSync != nil {
		it.stopSync()
	}
}

func (it *Item[T]) set(v T) {
	it.replace(v)
	raw, err := it.codec.Encode(v)
	if err != nil {
		it.log.Warn("encode value", zap.Error(err))
		return
	}
	if err := it.store.SetItem(context.Background(), it.key, raw); err != nil {
		it.log.Warn("write stored value", zap.Error(err))
	}
}

func (it *Item[T]) replace(v T) {
	it.mu.Lock()
	it.value = v
	subs := it.sortedSubs()
	it.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

func (it *Item[T]) load() T {
	raw, ok, err := it.store.GetItem(context.Background(), it.key)
	if err != nil {
		it.log.Warn("read stored value", zap.Error(err))
		return it.def
	}
	if !ok {
		return it.def
	}
	v, err := it.codec.Decode(raw)
	if err != nil {
		it.log.Warn("stored value unreadable, using default", zap.Error(err))
		return it.def
	}
	return v
}

// onForeign follows writes from other processes. Removals are ignored unless
// FollowRemovals is set, so a value cleared elsewhere stays usable here until
// the next local write.
func (it *Item[T]) onForeign(c storage.Change) {
	if c.Key != it.key {
		return
	}
	if !c.HasNew {
		if it.followRemovals {
			it.replace(it.def)
		}
		return
	}
	v, err := it.codec.Decode(c.NewValue)
	if err != nil {
		it.log.Warn("ignoring malformed foreign write", zap.Error(err))
		return
	}
	it.replace(v)
}

func (it *Item[T]) sortedSubs() []func(T) {
	ids := make([]int, 0, len(it.subs))
	for id := range it.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, it.subs[id])
	}
	return out
}

package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/five82/recipunto/internal/storage"
	"go.uber.org/zap"
)

// Wildcard registers a listener for every key.
const Wildcard = "*"

// Type classifies a storage event.
type Type string

const (
	TypeSet    Type = "set"
	TypeRemove Type = "remove"
	TypeClear  Type = "clear"
	// TypeChange marks a write made by another process.
	TypeChange Type = "change"
)

// Event is delivered to listeners. Value and OldValue hold the decoded JSON
// when the stored text parses, the raw string otherwise, and nil when absent.
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Type      Type
	Timestamp time.Time
}

// Listener receives storage events.
type Listener func(Event)

// Subscription is the handle returned by Add.
type Subscription struct {
	bus  *Bus
	key  string
	fn   Listener
	once sync.Once
}

// Remove unregisters exactly this listener. Calling it twice is harmless.
func (s *Subscription) Remove() {
	s.once.Do(func() { s.bus.remove(s) })
}

// Bus fans out storage mutations and foreign changes to listeners keyed by
// storage key. It observes the store only while started; adding a listener
// starts it and removing the last one stops it.
type Bus struct {
	store *storage.Store
	log   *zap.Logger
	now   func() time.Time

	mu           sync.Mutex
	listeners    map[string][]*Subscription
	running      bool
	stopMutation func()
	stopChange   func()
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns a stopped bus over store.
func New(store *storage.Store, opts ...Option) *Bus {
	b := &Bus{
		store:     store,
		log:       zap.NewNop(),
		now:       time.Now,
		listeners: make(map[string][]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start installs the bus as the store's interceptor and change handler.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startLocked()
}

// Stop uninstalls the bus from the store. Listeners stay registered.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Running reports whether the bus is observing the store.
func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Add registers fn for key (or Wildcard).
func (b *Bus) Add(key string, fn Listener) *Subscription {
	sub := &Subscription{bus: b, key: key, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[key] = append(b.listeners[key], sub)
	b.startLocked()
	return sub
}

// AddGlobal registers fn for every key.
func (b *Bus) AddGlobal(fn Listener) *Subscription {
	return b.Add(Wildcard, fn)
}

// Listen registers fn for key. With immediate set, fn is first called with
// the currently stored value as a set event, if one exists.
func (b *Bus) Listen(ctx context.Context, key string, fn Listener, immediate bool) (*Subscription, error) {
	sub := b.Add(key, fn)
	if !immediate {
		return sub, nil
	}
	raw, ok, err := b.store.GetItem(ctx, key)
	if err != nil {
		sub.Remove()
		return nil, err
	}
	if ok && raw != "" {
		b.call(sub, Event{Key: key, Value: parseValue(raw), Type: TypeSet, Timestamp: b.now()})
	}
	return sub, nil
}

// ListenerCount reports how many listeners are registered for key.
func (b *Bus) ListenerCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[key])
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[sub.key]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.listeners, sub.key)
	} else {
		b.listeners[sub.key] = list
	}
	if len(b.listeners) == 0 {
		b.stopLocked()
	}
}

func (b *Bus) startLocked() {
	if b.running {
		return
	}
	b.running = true
	b.stopMutation = b.store.AddInterceptor(b.onMutation)
	b.stopChange = b.store.OnChange(b.onChange)
}

func (b *Bus) stopLocked() {
	if !b.running {
		return
	}
	b.running = false
	b.stopMutation()
	b.stopChange()
	b.stopMutation, b.stopChange = nil, nil
}

func (b *Bus) onMutation(m storage.Mutation) {
	ev := Event{Key: m.Key, Timestamp: b.now()}
	if m.HadOld {
		ev.OldValue = parseValue(m.OldValue)
	}
	switch m.Op {
	case storage.OpSet:
		ev.Type = TypeSet
		ev.Value = parseValue(m.Value)
	case storage.OpRemove:
		ev.Type = TypeRemove
	case storage.OpClear:
		ev.Type = TypeClear
		ev.OldValue = nil
	}
	b.dispatch(ev)
}

func (b *Bus) onChange(c storage.Change) {
	ev := Event{Key: c.Key, Type: TypeChange, Timestamp: b.now()}
	if c.HasNew {
		ev.Value = parseValue(c.NewValue)
	}
	if c.HadOld {
		ev.OldValue = parseValue(c.OldValue)
	}
	b.dispatch(ev)
}

// dispatch calls key listeners, then wildcard listeners, in registration order.
func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	keyed := append([]*Subscription(nil), b.listeners[ev.Key]...)
	var global []*Subscription
	if ev.Key != Wildcard {
		global = append(global, b.listeners[Wildcard]...)
	}
	b.mu.Unlock()

	for _, sub := range keyed {
		b.call(sub, ev)
	}
	for _, sub := range global {
		b.call(sub, ev)
	}
}

func (b *Bus) call(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("storage listener panicked",
				zap.String("key", ev.Key),
				zap.String("listener_key", sub.key),
				zap.Any("panic", r))
		}
	}()
	sub.fn(ev)
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

package form

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/five82/recipunto/internal/debounce"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
	"go.uber.org/zap"
)

const defaultDebounce = time.Second

// ValidationError is returned by Save when the draft fails validation.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Options configures a Form.
type Options[T any] struct {
	// Debounce is the autosave window. Zero means one second.
	Debounce time.Duration
	// DisableAutoSave turns off the debounced save; drafts still persist.
	DisableAutoSave bool
	// Validate returns messages for an invalid draft, nil when valid.
	Validate func(T) []string
	// OnSave receives the committed draft.
	OnSave func(context.Context, T) error
	// OnLoad is called once with the restored draft.
	OnLoad func(T)
	Logger *zap.Logger
	Now    func() time.Time
}

// Form keeps a draft of T persisted under one key and commits it through
// OnSave, either on demand or after the debounce window goes quiet.
type Form[T any] struct {
	item    *persist.Item[T]
	initial T
	opts    Options[T]
	log     *zap.Logger
	timer   *debounce.Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	rev       uint64
	dirty     bool
	saving    bool
	lastSaved time.Time
}

// New restores the draft stored under key, or starts from initial.
func New[T any](store *storage.Store, key string, initial T, opts Options[T]) *Form[T] {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("form", key))

	ctx, cancel := context.WithCancel(context.Background())
	f := &Form[T]{
		item:    persist.NewWithCodec(store, key, initial, persist.Object[T](), persist.WithLogger(log)),
		initial: initial,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	f.timer = debounce.New(opts.Debounce, f.autoSave)
	if opts.OnLoad != nil {
		opts.OnLoad(f.item.Get())
	}
	return f
}

// Data returns the current draft.
func (f *Form[T]) Data() T { return f.item.Get() }

// IsDirty reports whether the draft changed since the last save or reset.
func (f *Form[T]) IsDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// IsSaving reports whether OnSave is running.
func (f *Form[T]) IsSaving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saving
}

// LastSaved reports when the draft was last committed; zero if never.
func (f *Form[T]) LastSaved() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSaved
}

// UpdateField assigns one field.
func (f *Form[T]) UpdateField(s Setter[T]) {
	f.UpdateFields(s)
}

// UpdateFields applies setters in order as one update.
func (f *Form[T]) UpdateFields(setters ...Setter[T]) {
	f.Update(func(t *T) {
		for _, s := range setters {
			s.apply(t)
		}
	})
}

// Update merges an arbitrary change into the draft.
func (f *Form[T]) Update(fn func(*T)) {
	f.item.Update(func(cur T) T {
		fn(&cur)
		return cur
	})
	f.mu.Lock()
	f.rev++
	f.dirty = true
	f.mu.Unlock()
	if !f.opts.DisableAutoSave {
		f.timer.Arm()
	}
}

// Save validates and commits the draft now, cancelling a pending autosave.
func (f *Form[T]) Save(ctx context.Context) error {
	f.timer.Cancel()
	data := f.Data()
	if msgs := f.validate(data); len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return f.commit(ctx, data)
}

// Submit validates the draft and hands it to fn, cancelling a pending
// autosave. The draft is cleared once fn succeeds and kept when it fails.
// OnSave is not called.
func (f *Form[T]) Submit(ctx context.Context, fn func(context.Context, T) error) error {
	f.timer.Cancel()
	data := f.Data()
	if msgs := f.validate(data); len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}

	f.mu.Lock()
	f.saving = true
	f.mu.Unlock()
	err := fn(ctx, data)
	f.mu.Lock()
	f.saving = false
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	f.Clear()
	return nil
}

// Flush runs a pending autosave now and reports whether one was pending.
func (f *Form[T]) Flush() bool { return f.timer.Flush() }

// Reset restores the initial draft without removing the stored key.
func (f *Form[T]) Reset() {
	f.timer.Cancel()
	f.item.Set(f.initial)
	f.mu.Lock()
	f.rev++
	f.dirty = false
	f.lastSaved = time.Time{}
	f.mu.Unlock()
}

// Clear resets the draft and deletes it from storage.
func (f *Form[T]) Clear() {
	f.Reset()
	f.item.Remove()
}

// Close cancels a pending autosave and any save still running.
func (f *Form[T]) Close() {
	f.timer.Close()
	f.cancel()
	f.item.Close()
}

func (f *Form[T]) autoSave() {
	data := f.Data()
	if msgs := f.validate(data); len(msgs) > 0 {
		f.log.Warn("autosave skipped, draft is invalid", zap.Strings("errors", msgs))
		return
	}
	if err := f.commit(f.ctx, data); err != nil {
		f.log.Error("autosave failed", zap.Error(err))
	}
}

func (f *Form[T]) commit(ctx context.Context, data T) error {
	f.mu.Lock()
	f.saving = true
	rev := f.rev
	f.mu.Unlock()

	var err error
	if f.opts.OnSave != nil {
		err = f.opts.OnSave(ctx, data)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saving = false
	if err != nil {
		return fmt.Errorf("save form: %w", err)
	}
	f.lastSaved = f.opts.Now()
	// Edits made while OnSave ran keep the form dirty.
	if f.rev == rev {
		f.dirty = false
	}
	return nil
}

func (f *Form[T]) validate(data T) []string {
	if f.opts.Validate == nil {
		return nil
	}
	return f.opts.Validate(data)
}

package boxsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/realtime"
	"github.com/five82/recipunto/internal/state"
)

// ErrInvalidStatus is returned by UpdateBoxStatus when the new amount is
// rejected locally. No request is sent in that case.
var ErrInvalidStatus = errors.New("invalid box status")

// Recorder receives sync telemetry. *metrics.Registry implements it.
type Recorder interface {
	ChangeApplied(kind string)
	Reconnect()
	FetchObserved(d time.Duration, err error)
	ConnState(c state.ConnState)
}

type nopRecorder struct{}

func (nopRecorder) ChangeApplied(string)               {}
func (nopRecorder) Reconnect()                         {}
func (nopRecorder) FetchObserved(time.Duration, error) {}
func (nopRecorder) ConnState(state.ConnState)          {}

// Options configures a Syncer.
type Options struct {
	// BaseInterval is the first reconnect delay. Zero means 2s.
	BaseInterval time.Duration
	// Limiter gates connection attempts. Nil allows one attempt per second.
	Limiter  *rate.Limiter
	Recorder Recorder
	Logger   *zap.Logger
}

// Syncer mirrors the backend box collection: a full fetch followed by the
// realtime change feed, with reconnect and refetch when the feed drops.
type Syncer struct {
	backend Backend
	feed    Feed
	store   state.Store
	base    time.Duration
	limiter *rate.Limiter
	rec     Recorder
	log     *zap.Logger

	gen   atomic.Uint64
	resub atomic.Bool

	mu        sync.Mutex
	observers map[int]func(state.Snapshot)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	// endSession cancels the live feed session, nil between sessions.
	endSession context.CancelFunc
}

// New builds a Syncer. Call Start to begin syncing.
func New(b Backend, f Feed, opts Options) *Syncer {
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = defaultBaseInterval
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Syncer{
		backend:   b,
		feed:      f,
		base:      opts.BaseInterval,
		limiter:   opts.Limiter,
		rec:       opts.Recorder,
		log:       opts.Logger.Named("boxsync"),
		observers: make(map[int]func(state.Snapshot)),
	}
}

// Start launches the sync goroutine. It is a no-op when already started or
// closed.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.closed {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Close stops syncing and waits for the sync goroutine. Later results are
// dropped.
func (s *Syncer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.setConn(state.Disconnected)
	return nil
}

// Resubscribe ends the live feed session so the next one joins with the
// current credentials. The collection is refetched as on any reconnect.
func (s *Syncer) Resubscribe() {
	s.mu.Lock()
	end := s.endSession
	s.mu.Unlock()
	if end == nil {
		return
	}
	s.resub.Store(true)
	end()
}

func (s *Syncer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns a copy of the current collection and sync state.
func (s *Syncer) Snapshot() state.Snapshot { return s.store.Snapshot() }

// Box looks up one box in the local collection.
func (s *Syncer) Box(id string) (box.Box, bool) { return s.store.Snapshot().Box(id) }

// Full returns the boxes marked full.
func (s *Syncer) Full() []box.Box { return box.Filter(s.store.Snapshot().Boxes, box.StatusFull) }

// Available returns the boxes not marked full.
func (s *Syncer) Available() []box.Box {
	return box.Filter(s.store.Snapshot().Boxes, box.StatusAvailable)
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change and must not block.
func (s *Syncer) Subscribe(fn func(state.Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Syncer) notify() {
	s.mu.Lock()
	fns := make([]func(state.Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	snap := s.store.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Syncer) setConn(c state.ConnState) {
	s.store.SetConn(c)
	s.rec.ConnState(c)
	s.notify()
}

// Refresh fetches the whole collection now. A fetch started earlier that
// finishes later is discarded.
func (s *Syncer) Refresh(ctx context.Context) error {
	gen := s.gen.Add(1)
	return s.fetch(ctx, gen)
}

func (s *Syncer) fetch(ctx context.Context, gen uint64) error {
	start := time.Now()
	recs, err := s.backend.FetchBoxes(ctx)
	s.rec.FetchObserved(time.Since(start), err)
	return s.install(ctx, gen, recs, err)
}

func (s *Syncer) install(ctx context.Context, gen uint64, recs []box.Record, err error) error {
	if ctx.Err() != nil || s.isClosed() || s.gen.Load() != gen {
		s.log.Debug("dropping superseded fetch", zap.Uint64("generation", gen))
		return ctx.Err()
	}
	if err != nil {
		s.store.Fail(err)
		s.notify()
		return fmt.Errorf("fetch boxes: %w", err)
	}
	s.store.Replace(box.FromRecords(recs))
	s.notify()
	return nil
}

func (s *Syncer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	failures := 0
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if attempt > 0 {
			s.rec.Reconnect()
		}
		s.setConn(state.Connecting)

		sctx, end := context.WithCancel(ctx)
		s.mu.Lock()
		s.endSession = end
		s.mu.Unlock()
		synced, err := s.session(sctx)
		s.mu.Lock()
		s.endSession = nil
		s.mu.Unlock()
		end()
		if ctx.Err() != nil {
			return
		}
		if s.resub.Swap(false) {
			s.log.Info("resubscribing change feed")
			failures = 0
			continue
		}
		if synced {
			failures = 0
		} else {
			failures++
		}

		next := state.Stale
		if !s.store.Snapshot().Loaded {
			next = state.Disconnected
		}
		s.setConn(next)

		wait := calculateBackoff(failures, s.base)
		s.log.Warn("change feed lost",
			zap.Error(err),
			zap.Int("failures", failures),
			zap.Duration("retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

type fetchResult struct {
	recs []box.Record
	err  error
	took time.Duration
}

// session subscribes, fetches the collection while buffering changes, then
// applies changes until the stream ends. synced reports whether the session
// reached the Synced state.
func (s *Syncer) session(ctx context.Context) (synced bool, err error) {
	stream, err := s.feed.Subscribe(ctx, Table)
	if err != nil {
		s.store.Fail(err)
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close()

	gen := s.gen.Add(1)
	results := make(chan fetchResult, 1)
	go func() {
		start := time.Now()
		recs, err := s.backend.FetchBoxes(ctx)
		results <- fetchResult{recs: recs, err: err, took: time.Since(start)}
	}()

	changes := stream.Changes()
	var pending []realtime.Change
	dropped := false
	var res fetchResult
wait:
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case res = <-results:
			break wait
		case c, ok := <-changes:
			if !ok {
				changes = nil
				dropped = true
				continue
			}
			pending = append(pending, c)
		}
	}

	s.rec.FetchObserved(res.took, res.err)
	if err := s.install(ctx, gen, res.recs, res.err); err != nil {
		return false, err
	}
	for _, c := range pending {
		s.apply(ctx, c)
	}
	if dropped {
		return false, streamErr(stream)
	}

	s.setConn(state.Synced)
	s.log.Info("box collection synced", zap.Int("boxes", len(s.store.Snapshot().Boxes)))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case c, ok := <-changes:
			if !ok {
				return true, streamErr(stream)
			}
			s.apply(ctx, c)
		}
	}
}

func streamErr(stream Stream) error {
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("change feed closed")
}

func (s *Syncer) apply(ctx context.Context, c realtime.Change) {
	if ctx.Err() != nil {
		return
	}
	switch c.Type {
	case realtime.Insert:
		var rec box.Record
		if err := json.Unmarshal(c.Record, &rec); err != nil || rec.ID == "" {
			s.log.Warn("ignoring malformed insert", zap.Error(err))
			return
		}
		s.store.Insert(box.FromRecord(rec))
	case realtime.Update:
		var rec box.Record
		if err := json.Unmarshal(c.Record, &rec); err != nil || rec.ID == "" {
			s.log.Warn("ignoring malformed update", zap.Error(err))
			return
		}
		if !s.store.Update(box.FromRecord(rec)) {
			s.log.Debug("update for unknown box", zap.String("id", rec.ID))
			return
		}
	case realtime.Delete:
		var old struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(c.OldRecord, &old); err != nil || old.ID == "" {
			s.log.Warn("ignoring malformed delete", zap.Error(err))
			return
		}
		if !s.store.Delete(old.ID) {
			return
		}
	default:
		s.log.Debug("ignoring change", zap.String("type", string(c.Type)))
		return
	}
	s.rec.ChangeApplied(string(c.Type))
	s.notify()
}

// CreateBox creates a box on the backend. The local collection changes when
// the insert arrives on the feed.
func (s *Syncer) CreateBox(ctx context.Context, in backend.CreateInput) (box.Box, error) {
	rec, err := s.backend.CreateBox(ctx, in)
	if err != nil {
		return box.Box{}, fmt.Errorf("create box: %w", err)
	}
	return box.FromRecord(rec), nil
}

// UpdateBox changes some columns of a box.
func (s *Syncer) UpdateBox(ctx context.Context, id string, in backend.UpdateInput) (box.Box, error) {
	rec, err := s.backend.UpdateBox(ctx, id, in)
	if err != nil {
		return box.Box{}, fmt.Errorf("update box %s: %w", id, err)
	}
	return box.FromRecord(rec), nil
}

// UpdateBoxStatus sets the fill level of a box. The amount is checked
// against the local copy's capacity first.
func (s *Syncer) UpdateBoxStatus(ctx context.Context, id string, amount int, isFull *bool) (box.Box, error) {
	var msgs []string
	if current, ok := s.Box(id); ok {
		msgs = box.ValidateStatus(current, amount)
	} else {
		msgs = box.Validate(box.Input{CurrentAmount: &amount})
	}
	if len(msgs) > 0 {
		return box.Box{}, fmt.Errorf("%w: %s", ErrInvalidStatus, strings.Join(msgs, "; "))
	}

	rec, err := s.backend.UpdateBoxStatus(ctx, id, backend.StatusInput{CurrentAmount: amount, IsFull: isFull})
	if err != nil {
		return box.Box{}, fmt.Errorf("update box %s status: %w", id, err)
	}
	return box.FromRecord(rec), nil
}

// DeleteBox removes a box on the backend.
func (s *Syncer) DeleteBox(ctx context.Context, id string) error {
	if err := s.backend.DeleteBox(ctx, id); err != nil {
		return fmt.Errorf("delete box %s: %w", id, err)
	}
	return nil
}

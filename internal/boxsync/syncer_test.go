package boxsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/realtime"
	"github.com/five82/recipunto/internal/state"
)

type fakeBackend struct {
	mu          sync.Mutex
	records     []box.Record
	fetchFn     func(ctx context.Context, call int) ([]box.Record, error)
	fetches     int
	statusCalls int
	created     []backend.CreateInput
	deleteErr   error
}

func (f *fakeBackend) FetchBoxes(ctx context.Context) ([]box.Record, error) {
	f.mu.Lock()
	f.fetches++
	call := f.fetches
	fn := f.fetchFn
	recs := append([]box.Record(nil), f.records...)
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, call)
	}
	return recs, nil
}

func (f *fakeBackend) CreateBox(_ context.Context, in backend.CreateInput) (box.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return box.Record{ID: "new", Lat: in.Lat, Lng: in.Lng, Capacity: in.Capacity}, nil
}

func (f *fakeBackend) UpdateBox(_ context.Context, id string, _ backend.UpdateInput) (box.Record, error) {
	return box.Record{ID: id}, nil
}

func (f *fakeBackend) UpdateBoxStatus(_ context.Context, id string, in backend.StatusInput) (box.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return box.Record{ID: id, CurrentAmount: in.CurrentAmount, Capacity: 50}, nil
}

func (f *fakeBackend) DeleteBox(context.Context, string) error { return f.deleteErr }

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeStream struct {
	changes chan realtime.Change
	done    chan struct{}
	once    sync.Once
	err     error
}

func newFakeStream() *fakeStream {
	return &fakeStream{changes: make(chan realtime.Change, 16), done: make(chan struct{})}
}

func (s *fakeStream) Changes() <-chan realtime.Change { return s.changes }
func (s *fakeStream) Done() <-chan struct{}           { return s.done }
func (s *fakeStream) Err() error                      { return s.err }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// drop simulates the server closing the channel.
func (s *fakeStream) drop(err error) {
	s.err = err
	close(s.changes)
}

type fakeFeed struct {
	streams chan *fakeStream
	tables  chan string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{streams: make(chan *fakeStream, 8), tables: make(chan string, 8)}
}

func (f *fakeFeed) Subscribe(_ context.Context, table string) (Stream, error) {
	s := newFakeStream()
	f.tables <- table
	f.streams <- s
	return s, nil
}

func (f *fakeFeed) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
		return nil
	}
}

func newTestSyncer(b Backend, f Feed) *Syncer {
	return New(b, f, Options{BaseInterval: time.Millisecond, Limiter: rate.NewLimiter(rate.Inf, 1)})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func rawRecord(t *testing.T, r box.Record) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestSyncer_InsertAfterCreateGrowsCollectionByOne(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a", Capacity: 10}}}
	feed := newFakeFeed()
	s := newTestSyncer(be, feed)
	defer s.Close()

	s.Start(context.Background())
	stream := feed.next(t)
	if table := <-feed.tables; table != Table {
		t.Fatalf("subscribed to %q, want %q", table, Table)
	}
	waitFor(t, "synced", func() bool { return s.Snapshot().Conn == state.Synced })

	created, err := s.CreateBox(context.Background(), backend.CreateInput{Lat: 40.41, Lng: -3.70, Capacity: 50})
	if err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	if len(s.Snapshot().Boxes) != 1 {
		t.Fatalf("create must not patch local state")
	}

	stream.changes <- realtime.Change{Type: realtime.Insert, Record: rawRecord(t, box.Record{
		ID: created.ID, Lat: 40.41, Lng: -3.70, Capacity: 50, UpdatedAt: "2024-05-01T10:00:00Z",
	})}
	waitFor(t, "insert applied", func() bool { return len(s.Snapshot().Boxes) == 2 })

	got, ok := s.Box(created.ID)
	if !ok {
		t.Fatalf("inserted box %q missing", created.ID)
	}
	if got.Lat != 40.41 || got.Lng != -3.70 || got.Capacity != 50 || got.CurrentAmount != 0 {
		t.Fatalf("inserted box = %+v", got)
	}
	if s.Snapshot().Boxes[0].ID != created.ID {
		t.Fatalf("insert should prepend")
	}
}

func TestSyncer_ChangesUpdateAndDelete(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a", Capacity: 10}, {ID: "b", Capacity: 10}}}
	feed := newFakeFeed()
	s := newTestSyncer(be, feed)
	defer s.Close()

	s.Start(context.Background())
	stream := feed.next(t)
	waitFor(t, "synced", func() bool { return s.Snapshot().Conn == state.Synced })

	stream.changes <- realtime.Change{Type: realtime.Update, Record: rawRecord(t, box.Record{ID: "a", Capacity: 10, CurrentAmount: 10, IsFull: true})}
	stream.changes <- realtime.Change{Type: realtime.Insert, Record: rawRecord(t, box.Record{ID: "b", Capacity: 20})}
	stream.changes <- realtime.Change{Type: realtime.Delete, OldRecord: json.RawMessage(`{"id":"a"}`)}
	stream.changes <- realtime.Change{Type: realtime.Insert, Record: rawRecord(t, box.Record{ID: "c", Capacity: 5})}
	waitFor(t, "changes applied", func() bool { _, ok := s.Box("c"); return ok })

	snap := s.Snapshot()
	if len(snap.Boxes) != 2 {
		t.Fatalf("boxes = %+v, want b and c", snap.Boxes)
	}
	if _, ok := snap.Box("a"); ok {
		t.Fatalf("deleted box still present")
	}
	if b, _ := snap.Box("b"); b.Capacity != 20 {
		t.Fatalf("duplicate insert should replace, got capacity %d", b.Capacity)
	}
}

func TestSyncer_ChangesDuringFetchAreBuffered(t *testing.T) {
	release := make(chan struct{})
	be := &fakeBackend{fetchFn: func(ctx context.Context, call int) ([]box.Record, error) {
		<-release
		return []box.Record{{ID: "a"}}, nil
	}}
	feed := newFakeFeed()
	s := newTestSyncer(be, feed)
	defer s.Close()

	s.Start(context.Background())
	stream := feed.next(t)
	stream.changes <- realtime.Change{Type: realtime.Insert, Record: rawRecord(t, box.Record{ID: "b"})}
	waitFor(t, "fetch started", func() bool { return be.fetchCount() == 1 })

	if s.Snapshot().Conn != state.Connecting {
		t.Fatalf("conn = %v during fetch, want connecting", s.Snapshot().Conn)
	}
	close(release)
	waitFor(t, "synced", func() bool { return s.Snapshot().Conn == state.Synced })

	snap := s.Snapshot()
	if len(snap.Boxes) != 2 || snap.Boxes[0].ID != "b" {
		t.Fatalf("boxes = %+v, want buffered insert applied over fetch", snap.Boxes)
	}
}

func TestSyncer_ReconnectsAndRefetchesAfterDrop(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a"}}}
	feed := newFakeFeed()
	s := newTestSyncer(be, feed)
	defer s.Close()

	var mu sync.Mutex
	var seen []state.ConnState
	s.Subscribe(func(snap state.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != snap.Conn {
			seen = append(seen, snap.Conn)
		}
	})

	s.Start(context.Background())
	first := feed.next(t)
	waitFor(t, "synced", func() bool { return s.Snapshot().Conn == state.Synced })

	be.mu.Lock()
	be.records = []box.Record{{ID: "a"}, {ID: "missed"}}
	be.mu.Unlock()
	first.drop(errors.New("connection reset"))

	feed.next(t)
	waitFor(t, "refetch", func() bool { _, ok := s.Box("missed"); return ok })
	waitFor(t, "synced again", func() bool { return s.Snapshot().Conn == state.Synced })

	if be.fetchCount() != 2 {
		t.Fatalf("fetches = %d, want 2", be.fetchCount())
	}
	mu.Lock()
	defer mu.Unlock()
	want := []state.ConnState{state.Connecting, state.Synced, state.Stale, state.Connecting, state.Synced}
	if len(seen) < len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i, c := range want {
		if seen[i] != c {
			t.Fatalf("transitions = %v, want prefix %v", seen, want)
		}
	}
}

func TestSyncer_FetchErrorKeepsCollection(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a"}}}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	boom := errors.New("backend down")
	be.fetchFn = func(context.Context, int) ([]box.Record, error) { return nil, boom }

	err := s.Refresh(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Refresh err = %v, want %v", err, boom)
	}
	snap := s.Snapshot()
	if len(snap.Boxes) != 1 || !errors.Is(snap.LastError, boom) {
		t.Fatalf("snapshot = %+v, want kept box and recorded error", snap)
	}
}

func TestSyncer_SupersededFetchIsDropped(t *testing.T) {
	slow := make(chan struct{})
	be := &fakeBackend{fetchFn: func(ctx context.Context, call int) ([]box.Record, error) {
		if call == 1 {
			<-slow
			return []box.Record{{ID: "old"}}, nil
		}
		return []box.Record{{ID: "new"}}, nil
	}}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	waitFor(t, "first fetch", func() bool { return be.fetchCount() == 1 })

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	close(slow)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	if _, ok := s.Box("new"); !ok || len(s.Snapshot().Boxes) != 1 {
		t.Fatalf("boxes = %+v, want only the newer fetch", s.Snapshot().Boxes)
	}
}

func TestSyncer_ResultsAfterCloseAreDropped(t *testing.T) {
	release := make(chan struct{})
	be := &fakeBackend{fetchFn: func(context.Context, int) ([]box.Record, error) {
		<-release
		return []box.Record{{ID: "late"}}, nil
	}}
	s := newTestSyncer(be, newFakeFeed())

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	waitFor(t, "fetch started", func() bool { return be.fetchCount() == 1 })

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)
	<-done

	if snap := s.Snapshot(); snap.Loaded || len(snap.Boxes) != 0 || snap.Conn != state.Disconnected {
		t.Fatalf("snapshot after close = %+v", snap)
	}
}

func TestSyncer_UpdateBoxStatusValidatesBeforeNetwork(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a", Capacity: 50}}}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	full := true
	_, err := s.UpdateBoxStatus(context.Background(), "a", 60, &full)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	if _, err := s.UpdateBoxStatus(context.Background(), "unknown", -1, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("negative amount err = %v, want ErrInvalidStatus", err)
	}
	if be.statusCalls != 0 {
		t.Fatalf("status calls = %d, want 0", be.statusCalls)
	}

	got, err := s.UpdateBoxStatus(context.Background(), "a", 50, &full)
	if err != nil || got.CurrentAmount != 50 {
		t.Fatalf("valid update = %+v, %v", got, err)
	}
	if be.statusCalls != 1 {
		t.Fatalf("status calls = %d, want 1", be.statusCalls)
	}
}

func TestSyncer_MutationErrorsPropagate(t *testing.T) {
	be := &fakeBackend{deleteErr: backend.ErrForbidden}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()

	if err := s.DeleteBox(context.Background(), "a"); !errors.Is(err, backend.ErrForbidden) {
		t.Fatalf("DeleteBox err = %v, want ErrForbidden", err)
	}
}

func TestSyncer_StatusViews(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a", IsFull: true}, {ID: "b"}, {ID: "c"}}}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(s.Full()) != 1 || len(s.Available()) != 2 {
		t.Fatalf("full=%d available=%d", len(s.Full()), len(s.Available()))
	}
}

func TestSyncer_SubscribeCancel(t *testing.T) {
	be := &fakeBackend{}
	s := newTestSyncer(be, newFakeFeed())
	defer s.Close()

	calls := 0
	cancel := s.Subscribe(func(state.Snapshot) { calls++ })
	_ = s.Refresh(context.Background())
	cancel()
	cancel()
	_ = s.Refresh(context.Background())
	if calls != 1 {
		t.Fatalf("observer calls = %d, want 1", calls)
	}
}

func TestSyncer_ResubscribeOpensNewSession(t *testing.T) {
	be := &fakeBackend{records: []box.Record{{ID: "a"}}}
	feed := newFakeFeed()
	s := newTestSyncer(be, feed)
	defer s.Close()

	s.Resubscribe()

	s.Start(context.Background())
	first := feed.next(t)
	waitFor(t, "synced", func() bool { return s.Snapshot().Conn == state.Synced })

	s.Resubscribe()
	select {
	case <-first.done:
	case <-time.After(2 * time.Second):
		t.Fatal("old stream not closed")
	}
	feed.next(t)
	waitFor(t, "refetch", func() bool { return be.fetchCount() == 2 })
	waitFor(t, "synced again", func() bool { return s.Snapshot().Conn == state.Synced })
}

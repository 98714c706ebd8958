package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

const defaultPollInterval = time.Second

// Op identifies the kind of local mutation reported to interceptors.
type Op int

const (
	OpSet Op = iota
	OpRemove
	OpClear
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Mutation describes a write performed through this Store handle.
type Mutation struct {
	Op       Op
	Key      string
	Value    string
	OldValue string
	HadOld   bool
}

// Change describes a write performed by another Store handle on the same file.
// HasNew is false when the key was removed or cleared.
type Change struct {
	Key      string
	NewValue string
	HasNew   bool
	OldValue string
	HadOld   bool
}

// Store is a string key/value store backed by SQLite. Every Store opened on
// the same file sees the same data; writes from other handles are reported
// through OnChange once Sync (or Watch) observes them.
type Store struct {
	db        *sql.DB
	path      string
	writer    string
	log       *zap.Logger
	pollEvery time.Duration

	syncMu sync.Mutex

	mu           sync.Mutex
	lastRev      int64
	known        map[string]string
	interceptors map[int]func(Mutation)
	handlers     map[int]func(Change)
	nextHandler  int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for watch and sync diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithPollInterval sets the fallback interval Watch uses between syncs.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollEvery = d
		}
	}
}

// WithWriterID overrides the random writer id. Handles sharing a writer id
// do not see each other's writes as foreign changes.
func WithWriterID(id string) Option {
	return func(s *Store) {
		if strings.TrimSpace(id) != "" {
			s.writer = id
		}
	}
}

// Open opens (creating if needed) the storage file at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// New wraps an already opened database, applying the schema.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	s := &Store{
		db:           db,
		writer:       uuid.NewString(),
		log:          zap.NewNop(),
		pollEvery:    defaultPollInterval,
		known:        make(map[string]string),
		interceptors: make(map[int]func(Mutation)),
		handlers:     make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := s.loadKnown(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriterID reports the id stamped on rows written by this handle.
func (s *Store) WriterID() string {
	return s.writer
}

// GetItem returns the stored value for key. ok is false when the key is absent.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value.String, value.Valid, nil
}

// SetItem stores value under key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	old, hadOld, err := s.write(ctx, key, &value)
	if err != nil {
		return err
	}
	s.intercept(Mutation{Op: OpSet, Key: key, Value: value, OldValue: old, HadOld: hadOld})
	return nil
}

// RemoveItem deletes key. Removing an absent key is not an error.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	old, hadOld, err := s.write(ctx, key, nil)
	if err != nil {
		return err
	}
	s.intercept(Mutation{Op: OpRemove, Key: key, OldValue: old, HadOld: hadOld})
	return nil
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keys, err := liveKeys(ctx, tx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		rev, err := nextRev(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE kv SET value = NULL, rev = ?, writer = ? WHERE value IS NOT NULL`,
			rev, s.writer); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}

	s.mu.Lock()
	s.known = make(map[string]string)
	s.mu.Unlock()

	for _, key := range keys {
		s.intercept(Mutation{Op: OpClear, Key: key})
	}
	return nil
}

// Keys lists every live key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return liveKeys(ctx, s.db)
}

// AddInterceptor registers fn to be called synchronously after every
// successful local mutation. Interceptors run in registration order. The
// returned function unregisters fn.
func (s *Store) AddInterceptor(fn func(Mutation)) func() {
	s.mu.Lock()
	id := s.nextHandler
	s.nextHandler++
	s.interceptors[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.interceptors, id)
			s.mu.Unlock()
		})
	}
}

// OnChange registers fn for writes made by other handles. The returned
// function unregisters it.
func (s *Store) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextHandler
	s.nextHandler++
	s.handlers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Sync reads writes made by other handles since the previous Sync and
// dispatches them to OnChange handlers in revision order.
func (s *Store) Sync(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	since := s.lastRev
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, rev, writer FROM kv WHERE rev > ? ORDER BY rev`, since)
	if err != nil {
		return 0, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	maxRev := since
	var changes []Change
	for rows.Next() {
		var (
			key, writer string
			value       sql.NullString
			rev         int64
		)
		if err := rows.Scan(&key, &value, &rev, &writer); err != nil {
			return 0, fmt.Errorf("scan change: %w", err)
		}
		if rev > maxRev {
			maxRev = rev
		}
		if writer == s.writer {
			continue
		}
		changes = append(changes, Change{Key: key, NewValue: value.String, HasNew: value.Valid})
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read changes: %w", err)
	}

	s.mu.Lock()
	for i := range changes {
		c := &changes[i]
		c.OldValue, c.HadOld = s.known[c.Key]
		if c.HasNew {
			s.known[c.Key] = c.NewValue
		} else {
			delete(s.known, c.Key)
		}
	}
	s.lastRev = maxRev
	handlers := s.sortedHandlers()
	s.mu.Unlock()

	for _, c := range changes {
		for _, h := range handlers {
			h(c)
		}
	}
	return len(changes), nil
}

// Watch blocks until ctx is done, syncing whenever the database file changes
// on disk and at the configured poll interval.
func (s *Store) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if s.path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("file watcher unavailable, polling only", zap.Error(err))
		} else {
			defer func() { _ = watcher.Close() }()
			if err := watcher.Add(filepath.Dir(s.path)); err != nil {
				s.log.Warn("watch storage dir", zap.String("dir", filepath.Dir(s.path)), zap.Error(err))
			} else {
				events = watcher.Events
				errs = watcher.Errors
			}
		}
	}
	base := filepath.Base(s.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncLogged(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.syncLogged(ctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Warn("storage watcher error", zap.Error(err))
		}
	}
}

func (s *Store) syncLogged(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("storage sync failed", zap.Error(err))
	}
}

func (s *Store) write(ctx context.Context, key string, value *string) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var old sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}

	// Removing something that is not there leaves no tombstone.
	if value == nil && !old.Valid {
		return "", false, nil
	}

	rev, err := nextRev(ctx, tx)
	if err != nil {
		return "", false, err
	}
	var stored any
	if value != nil {
		stored = *value
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, rev, writer) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, rev = excluded.rev, writer = excluded.writer`,
		key, stored, rev, s.writer); err != nil {
		return "", false, fmt.Errorf("write %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit %q: %w", key, err)
	}

	s.mu.Lock()
	if value != nil {
		s.known[key] = *value
	} else {
		delete(s.known, key)
	}
	s.mu.Unlock()
	return old.String, old.Valid, nil
}

func (s *Store) intercept(m Mutation) {
	s.mu.Lock()
	fns := sortedByID(s.interceptors)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (s *Store) sortedHandlers() []func(Change) { return sortedByID(s.handlers) }

func sortedByID[F any](m map[int]F) []F {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]F, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (s *Store) loadKnown() error {
	rows, err := s.db.Query(`SELECT key, value, rev FROM kv`)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value sql.NullString
			rev   int64
		)
		if err := rows.Scan(&key, &value, &rev); err != nil {
			return fmt.Errorf("scan key: %w", err)
		}
		if value.Valid {
			s.known[key] = value.String
		}
		if rev > s.lastRev {
			s.lastRev = rev
		}
	}
	return rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func liveKeys(ctx context.Context, q queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key FROM kv WHERE value IS NOT NULL ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func nextRev(ctx context.Context, tx *sql.Tx) (int64, error) {
	var rev int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE kv_seq SET rev = rev + 1 WHERE id = 1 RETURNING rev`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("next revision: %w", err)
	}
	return rev, nil
}

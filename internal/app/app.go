package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/five82/recipunto/internal/achievements"
	"github.com/five82/recipunto/internal/auth"
	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/boxsync"
	"github.com/five82/recipunto/internal/cache"
	"github.com/five82/recipunto/internal/config"
	"github.com/five82/recipunto/internal/events"
	"github.com/five82/recipunto/internal/form"
	"github.com/five82/recipunto/internal/logging"
	"github.com/five82/recipunto/internal/metrics"
	"github.com/five82/recipunto/internal/notify"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/realtime"
	"github.com/five82/recipunto/internal/selection"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/storage"
	"github.com/five82/recipunto/internal/tasks"
	"github.com/five82/recipunto/internal/toggles"
)

// SearchKey holds the box list search term.
const SearchKey = "box-search-term"

// Cache keys served by the box cache fetchers.
const (
	CacheAll       = "all"
	CacheFull      = "full"
	CacheAvailable = "available"
)

const (
	sessionCheckEvery = time.Minute
	sessionMargin     = 5 * time.Minute
)

// Options configure Open.
type Options struct {
	ConfigPath string
	// LogToFile sends logs to the configured log file instead of stderr.
	// The TUI sets it so logs do not corrupt the terminal.
	LogToFile bool
	// Logger replaces the configured logger. Tests use it.
	Logger *zap.Logger
}

// App owns every long-lived component. Backend, Realtime, Syncer and Auth
// are nil when no backend is configured.
type App struct {
	Config config.Config
	Log    *zap.Logger

	Store         *storage.Store
	Bus           *events.Bus
	Metrics       *metrics.Registry
	Backend       *backend.Client
	Realtime      *realtime.Client
	Syncer        *boxsync.Syncer
	Auth          *auth.Manager
	Boxes         *cache.Cache[[]box.Box]
	Users         *cache.Cache[json.RawMessage]
	Selection     *selection.Store
	Toggles       *toggles.Store
	Tasks         *tasks.List
	Tracker       *achievements.Tracker
	Notifications *notify.Center
	Search        *persist.Item[string]
	BoxForm       *form.Form[form.BoxDraft]
	UserForm      *form.Form[form.UserDraft]

	tokenMu sync.Mutex
	token   string

	stops   []func()
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	server  *http.Server
	closeMu sync.Once
}

// Open loads the config and wires every component. Nothing runs until
// Start.
func Open(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		output := "stderr"
		if opts.LogToFile {
			output = cfg.LogFile
		}
		log, err = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: output})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	store, err := storage.Open(cfg.StoragePath,
		storage.WithLogger(log),
		storage.WithPollInterval(cfg.PollInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Config:        cfg,
		Log:           log,
		Store:         store,
		Bus:           events.New(store, events.WithLogger(log)),
		Metrics:       metrics.New(),
		Selection:     selection.New(store, log),
		Toggles:       toggles.New(store, log),
		Tasks:         tasks.New(store, tasks.Options{Logger: log}),
		Tracker:       achievements.NewTracker(store, achievements.Options{Logger: log}),
		Notifications: notify.NewCenter(notify.Options{}),
		Search:        persist.NewWithCodec(store, SearchKey, "", persist.String(), persist.WithLogger(log)),
	}
	a.Boxes = cache.NewBoxCache(store, cache.Options{
		Logger: log,
		Hooks:  a.Metrics.CacheHooks(cache.BoxCacheKey, cache.Hooks{}),
	})
	a.Users = cache.NewUserCache(store, cache.Options{
		Logger: log,
		Hooks:  a.Metrics.CacheHooks(cache.UserCacheKey, cache.Hooks{}),
	})
	// Autosave only keeps the drafts on disk. SubmitBox creates the box.
	a.BoxForm = form.NewBoxForm(store, form.Options[form.BoxDraft]{Logger: log, OnSave: draftSaved[form.BoxDraft](log)})
	a.UserForm = form.NewUserForm(store, form.Options[form.UserDraft]{Logger: log, OnSave: draftSaved[form.UserDraft](log)})

	if err := cfg.RequireBackend(); err != nil {
		log.Info("no backend configured, running offline")
	} else if err := a.wireBackend(); err != nil {
		_ = a.Close()
		return nil, err
	}

	triggers := notify.NewTriggers(a.Notifications)
	a.stops = append(a.stops, a.Tracker.OnUnlock(triggers.Unlocked))
	if a.Syncer != nil {
		a.stops = append(a.stops,
			a.Syncer.Subscribe(triggers.Observe),
			a.Syncer.Subscribe(a.cacheSnapshot),
			a.Selection.Follow(a.Syncer),
		)
	}
	a.Bus.AddGlobal(func(ev events.Event) {
		log.Debug("storage event", zap.String("key", ev.Key), zap.String("type", string(ev.Type)))
	})
	return a, nil
}

func (a *App) wireBackend() error {
	client, err := backend.NewClient(a.Config.BackendURL, a.Config.AnonKey, backend.WithLogger(a.Log))
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}
	rt, err := realtime.NewClient(a.Config.BackendURL, a.Config.AnonKey, realtime.WithLogger(a.Log))
	if err != nil {
		return fmt.Errorf("init realtime client: %w", err)
	}
	a.Backend = client
	a.Realtime = rt
	a.Auth = auth.NewManager(a.Store, client, auth.Options{Logger: a.Log})
	a.Syncer = boxsync.New(client, boxsync.RealtimeFeed(rt), boxsync.Options{
		BaseInterval: a.Config.ReconnectBase,
		Limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
		Recorder:     a.Metrics,
		Logger:       a.Log,
	})

	a.applySession()
	a.stops = append(a.stops, a.Auth.OnChange(func(u *auth.User) {
		a.applySession()
		if u == nil {
			a.Users.InvalidateAll()
		}
	}))

	a.Boxes.RegisterFetcher(CacheAll, a.fetcher(client.FetchBoxes))
	a.Boxes.RegisterFetcher(CacheFull, a.fetcher(client.FullBoxes))
	a.Boxes.RegisterFetcher(CacheAvailable, a.fetcher(client.AvailableBoxes))
	return nil
}

// applySession hands the current token to both network clients. A new token
// makes the syncer rejoin the change feed with it.
func (a *App) applySession() {
	var token, userID string
	if s, ok := a.Auth.Session(); ok {
		token, userID = s.AccessToken, s.User.ID
	}
	a.Backend.SetSession(token, userID)
	a.Realtime.SetToken(token)

	a.tokenMu.Lock()
	changed := token != a.token
	a.token = token
	a.tokenMu.Unlock()
	if changed {
		a.Syncer.Resubscribe()
	}
}

func (a *App) fetcher(list func(context.Context) ([]box.Record, error)) cache.Fetcher[[]box.Box] {
	return func(ctx context.Context) ([]box.Box, error) {
		recs, err := list(ctx)
		if err != nil {
			return nil, err
		}
		return box.FromRecords(recs), nil
	}
}

// cacheSnapshot keeps the cached list current so an offline start has
// something to show.
func (a *App) cacheSnapshot(snap state.Snapshot) {
	if !snap.Loaded {
		return
	}
	a.Boxes.SetCached(CacheAll, snap.Boxes)
}

func draftSaved[T any](log *zap.Logger) func(context.Context, T) error {
	return func(context.Context, T) error {
		log.Debug("draft saved")
		return nil
	}
}

// SubmitBox creates a box from the saved draft. The draft is cleared once
// the backend accepts it and kept otherwise.
func (a *App) SubmitBox(ctx context.Context) (box.Box, error) {
	var created box.Box
	err := a.BoxForm.Submit(ctx, func(ctx context.Context, d form.BoxDraft) error {
		b, err := a.createFromDraft(ctx, d)
		created = b
		return err
	})
	return created, err
}

func (a *App) createFromDraft(ctx context.Context, d form.BoxDraft) (box.Box, error) {
	if a.Syncer == nil {
		return box.Box{}, config.ErrNoBackend
	}
	amount := d.CurrentAmount
	b, err := a.Syncer.CreateBox(ctx, backend.CreateInput{
		Lat:           d.Lat,
		Lng:           d.Lng,
		CurrentAmount: &amount,
		Capacity:      d.Capacity,
		IsFull:        d.IsFull,
	})
	if err != nil {
		return box.Box{}, err
	}
	a.Tracker.RecordBoxCreated()
	return b, nil
}

// EditBox changes some columns of a box the user owns, such as moving it.
func (a *App) EditBox(ctx context.Context, id string, in backend.UpdateInput) (box.Box, error) {
	if a.Syncer == nil {
		return box.Box{}, config.ErrNoBackend
	}
	if in == (backend.UpdateInput{}) {
		return box.Box{}, errors.New("nothing to update")
	}
	msgs := box.Validate(box.Input{Lat: in.Lat, Lng: in.Lng, Capacity: in.Capacity, CurrentAmount: in.CurrentAmount})
	if len(msgs) > 0 {
		return box.Box{}, fmt.Errorf("invalid box: %s", strings.Join(msgs, "; "))
	}
	return a.Syncer.UpdateBox(ctx, id, in)
}

// CurrentUser returns the signed-in user's profile from the backend, cached
// per user.
func (a *App) CurrentUser(ctx context.Context) (json.RawMessage, error) {
	if a.Auth == nil {
		return nil, config.ErrNoBackend
	}
	u, ok := a.Auth.User()
	if !ok {
		return nil, auth.ErrNoSession
	}
	a.Users.RegisterFetcher(u.ID, a.Backend.GetUser)
	raw, _, err := a.Users.Get(ctx, u.ID)
	return raw, err
}

// UpdateStatus sets a box's fill level and credits the activity.
func (a *App) UpdateStatus(ctx context.Context, id string, amount int, isFull *bool) (box.Box, error) {
	if a.Syncer == nil {
		return box.Box{}, config.ErrNoBackend
	}
	prev, known := a.Syncer.Box(id)
	b, err := a.Syncer.UpdateBoxStatus(ctx, id, amount, isFull)
	if err != nil {
		return box.Box{}, err
	}
	a.Tracker.RecordStatusUpdate()
	if known && b.CurrentAmount < prev.CurrentAmount {
		a.Tracker.RecordRecycled(prev.CurrentAmount - b.CurrentAmount)
	}
	return b, nil
}

// ListBoxes returns the box list for key through the cache. An offline app
// serves whatever is cached.
func (a *App) ListBoxes(ctx context.Context, key string) ([]box.Box, error) {
	if a.Syncer == nil {
		if boxes, ok := a.Boxes.GetCached(key); ok {
			return boxes, nil
		}
		return nil, config.ErrNoBackend
	}
	boxes, _, err := a.Boxes.Get(ctx, key)
	return boxes, err
}

// Start launches the background work: storage watching, the bus, cache
// cleanup, sync, session refresh and the metrics endpoint.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.Bus.Start()
	a.goRun(func() { a.Store.Watch(ctx) })
	a.goRun(func() { a.Boxes.Run(ctx) })
	a.goRun(func() { a.Users.Run(ctx) })

	if a.Syncer != nil {
		a.Syncer.Start(ctx)
		a.goRun(func() { a.keepSession(ctx) })
	}

	if a.Config.MetricsAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)
		a.server = &http.Server{Addr: a.Config.MetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		a.goRun(func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Log.Warn("metrics server stopped", zap.Error(err))
			}
		})
		a.Log.Info("metrics listening", zap.String("addr", a.Config.MetricsAddr))
	}
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) keepSession(ctx context.Context) {
	ticker := time.NewTicker(sessionCheckEvery)
	defer ticker.Stop()
	for {
		if err := a.Auth.RefreshIfNeeded(ctx, sessionMargin); err != nil && !errors.Is(err, auth.ErrNoSession) {
			a.Log.Warn("session refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops background work and releases the store. It is safe to call
// more than once.
func (a *App) Close() error {
	var err error
	a.closeMu.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = a.server.Shutdown(shutdownCtx)
			cancel()
		}
		if a.Syncer != nil {
			_ = a.Syncer.Close()
		}
		for _, stop := range a.stops {
			stop()
		}
		a.wg.Wait()

		a.BoxForm.Flush()
		a.UserForm.Flush()
		a.Bus.Stop()
		a.BoxForm.Close()
		a.UserForm.Close()
		a.Boxes.Close()
		a.Users.Close()
		a.Search.Close()
		a.Selection.Close()
		a.Toggles.Close()
		a.Tasks.Close()
		err = a.Store.Close()
		_ = a.Log.Sync()
	})
	return err
}

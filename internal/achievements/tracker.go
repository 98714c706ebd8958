package achievements

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
)

// Key is the storage key of the user's activity.
const Key = "user-stats"

// Points awarded per action, before achievement bonuses.
const (
	PointsBoxCreated   = 25
	PointsStatusUpdate = 10
	PointsPerContainer = 1
)

// CO2PerContainer is the estimated kilograms of CO2 saved per recycled container.
const CO2PerContainer = 0.1

// Stats is the user's recorded activity.
type Stats struct {
	BoxesCreated       int       `json:"boxesCreated"`
	BoxesUpdated       int       `json:"boxesUpdated"`
	ContainersRecycled int       `json:"containersRecycled"`
	CO2Saved           float64   `json:"co2Saved"`
	Points             int       `json:"points"`
	Level              int       `json:"level"`
	Streak             int       `json:"streak"`
	LastActivity       time.Time `json:"lastActivity"`
	JoinDate           time.Time `json:"joinDate"`
}

type profile struct {
	Stats  Stats                `json:"stats"`
	Earned map[string]time.Time `json:"earned"`
}

// Options configures a Tracker.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Tracker records activity and reports achievements as they unlock.
type Tracker struct {
	item *persist.Item[profile]
	now  func() time.Time

	mu      sync.Mutex
	unlocks map[int]func(Achievement)
	nextID  int
}

// NewTracker loads the activity from store.
func NewTracker(store *storage.Store, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	def := profile{Stats: Stats{Level: 1}}
	return &Tracker{
		item:    persist.NewWithCodec(store, Key, def, persist.Object[profile](), persist.WithLogger(opts.Logger.Named("achievements"))),
		now:     opts.Now,
		unlocks: make(map[int]func(Achievement)),
	}
}

// Stats returns the recorded activity.
func (t *Tracker) Stats() Stats { return t.item.Get().Stats }

// Achievements evaluates the catalog against the recorded activity.
func (t *Tracker) Achievements() []Achievement { return Evaluate(t.Stats()) }

// EarnedAt reports when an achievement was unlocked.
func (t *Tracker) EarnedAt(id string) (time.Time, bool) {
	at, ok := t.item.Get().Earned[id]
	return at, ok
}

// OnUnlock registers fn for every newly earned achievement.
func (t *Tracker) OnUnlock(fn func(Achievement)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.unlocks[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.unlocks, id)
			t.mu.Unlock()
		})
	}
}

// RecordBoxCreated counts a box the user created.
func (t *Tracker) RecordBoxCreated() []Achievement {
	return t.record(func(s *Stats) {
		s.BoxesCreated++
		s.Points += PointsBoxCreated
	})
}

// RecordStatusUpdate counts a fill level update the user made.
func (t *Tracker) RecordStatusUpdate() []Achievement {
	return t.record(func(s *Stats) {
		s.BoxesUpdated++
		s.Points += PointsStatusUpdate
	})
}

// RecordRecycled counts n containers the user dropped off. Non-positive n is
// ignored.
func (t *Tracker) RecordRecycled(n int) []Achievement {
	if n <= 0 {
		return nil
	}
	return t.record(func(s *Stats) {
		s.ContainersRecycled += n
		s.CO2Saved += float64(n) * CO2PerContainer
		s.Points += n * PointsPerContainer
	})
}

// Reset clears all recorded activity.
func (t *Tracker) Reset() { t.item.Remove() }

func (t *Tracker) record(apply func(*Stats)) []Achievement {
	var unlocked []Achievement
	now := t.now()
	t.item.Update(func(p profile) profile {
		earned := make(map[string]time.Time, len(p.Earned))
		for k, v := range p.Earned {
			earned[k] = v
		}
		s := p.Stats
		if s.JoinDate.IsZero() {
			s.JoinDate = now
		}
		s.Streak = nextStreak(s.Streak, s.LastActivity, now)
		s.LastActivity = now
		prev := p.Stats
		apply(&s)
		s.Level = LevelFor(s.Points)

		// Bonus points may lift the level and unlock more.
		for {
			var fresh []Achievement
			for _, a := range Newly(prev, s) {
				if _, ok := earned[a.ID]; !ok {
					fresh = append(fresh, a)
				}
			}
			if len(fresh) == 0 {
				break
			}
			prev = s
			for _, a := range fresh {
				earned[a.ID] = now
				s.Points += a.Points
				unlocked = append(unlocked, a)
			}
			s.Level = LevelFor(s.Points)
		}
		return profile{Stats: s, Earned: earned}
	})

	if len(unlocked) > 0 {
		t.mu.Lock()
		fns := make([]func(Achievement), 0, len(t.unlocks))
		for _, fn := range t.unlocks {
			fns = append(fns, fn)
		}
		t.mu.Unlock()
		for _, a := range unlocked {
			for _, fn := range fns {
				fn(a)
			}
		}
	}
	return unlocked
}

// nextStreak extends the streak on the day after last, keeps it on the same
// day and restarts it otherwise.
func nextStreak(streak int, last, now time.Time) int {
	if last.IsZero() {
		return 1
	}
	ly, lm, ld := last.Date()
	ny, nm, nd := now.Date()
	lastDay := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	switch today.Sub(lastDay) {
	case 0:
		return max(streak, 1)
	case 24 * time.Hour:
		return streak + 1
	default:
		return 1
	}
}

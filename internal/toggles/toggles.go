// Package toggles persists the on/off switches of the interface.
package toggles

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
)

// Key is the storage key of the toggle state.
const Key = "ui-toggles"

// Name identifies one toggle.
type Name int

const (
	SidebarOpen Name = iota
	NotificationsOpen
	MapFullscreen
	DarkMode
	CompactView
	ShowStats
	ShowFilters
	ShowSearch
	AutoRefresh
	SoundEnabled
	AnimationsEnabled
)

var names = [...]string{
	SidebarOpen:       "sidebarOpen",
	NotificationsOpen: "notificationsOpen",
	MapFullscreen:     "mapFullscreen",
	DarkMode:          "darkMode",
	CompactView:       "compactView",
	ShowStats:         "showStats",
	ShowFilters:       "showFilters",
	ShowSearch:        "showSearch",
	AutoRefresh:       "autoRefresh",
	SoundEnabled:      "soundEnabled",
	AnimationsEnabled: "animationsEnabled",
}

// Names lists every toggle in declaration order.
func Names() []Name {
	out := make([]Name, len(names))
	for i := range names {
		out[i] = Name(i)
	}
	return out
}

func (n Name) String() string {
	if n < 0 || int(n) >= len(names) {
		return "unknown"
	}
	return names[n]
}

// ParseName resolves a stored toggle name. Matching ignores case.
func ParseName(s string) (Name, bool) {
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return Name(i), true
		}
	}
	return 0, false
}

// State is the full set of toggles.
type State struct {
	SidebarOpen       bool `json:"sidebarOpen"`
	NotificationsOpen bool `json:"notificationsOpen"`
	MapFullscreen     bool `json:"mapFullscreen"`
	DarkMode          bool `json:"darkMode"`
	CompactView       bool `json:"compactView"`
	ShowStats         bool `json:"showStats"`
	ShowFilters       bool `json:"showFilters"`
	ShowSearch        bool `json:"showSearch"`
	AutoRefresh       bool `json:"autoRefresh"`
	SoundEnabled      bool `json:"soundEnabled"`
	AnimationsEnabled bool `json:"animationsEnabled"`
}

// Defaults returns the state used before anything is stored.
func Defaults() State {
	return State{
		SidebarOpen:       true,
		ShowStats:         true,
		ShowFilters:       true,
		ShowSearch:        true,
		AutoRefresh:       true,
		SoundEnabled:      true,
		AnimationsEnabled: true,
	}
}

func (s *State) field(n Name) *bool {
	switch n {
	case SidebarOpen:
		return &s.SidebarOpen
	case NotificationsOpen:
		return &s.NotificationsOpen
	case MapFullscreen:
		return &s.MapFullscreen
	case DarkMode:
		return &s.DarkMode
	case CompactView:
		return &s.CompactView
	case ShowStats:
		return &s.ShowStats
	case ShowFilters:
		return &s.ShowFilters
	case ShowSearch:
		return &s.ShowSearch
	case AutoRefresh:
		return &s.AutoRefresh
	case SoundEnabled:
		return &s.SoundEnabled
	case AnimationsEnabled:
		return &s.AnimationsEnabled
	}
	return nil
}

// Get reports toggle n. Unknown names are off.
func (s State) Get(n Name) bool {
	if p := s.field(n); p != nil {
		return *p
	}
	return false
}

// codec decodes over Defaults so toggles missing from an older stored value
// keep their default.
func codec() persist.Codec[State] {
	obj := persist.Object[State]()
	return persist.Codec[State]{
		Encode: obj.Encode,
		Decode: func(raw string) (State, error) {
			if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
				return State{}, errors.New("toggle state is not an object")
			}
			s := Defaults()
			err := json.Unmarshal([]byte(raw), &s)
			return s, err
		},
	}
}

// Store reads and writes the toggles. Writes from other processes sharing
// the storage file are picked up on the next sync.
type Store struct {
	item *persist.Item[State]
}

// New loads the toggles from store.
func New(store *storage.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{item: persist.NewWithCodec(store, Key, Defaults(), codec(), persist.WithLogger(log.Named("toggles")))}
}

// State returns every toggle.
func (s *Store) State() State { return s.item.Get() }

// Get reports toggle n.
func (s *Store) Get(n Name) bool { return s.item.Get().Get(n) }

// Toggle flips n and returns its new value.
func (s *Store) Toggle(n Name) bool {
	var v bool
	s.item.Update(func(st State) State {
		if p := st.field(n); p != nil {
			*p = !*p
			v = *p
		}
		return st
	})
	return v
}

// Set assigns n.
func (s *Store) Set(n Name, v bool) {
	s.SetMany(map[Name]bool{n: v})
}

// SetMany assigns several toggles in one write.
func (s *Store) SetMany(values map[Name]bool) {
	s.item.Update(func(st State) State {
		for n, v := range values {
			if p := st.field(n); p != nil {
				*p = v
			}
		}
		return st
	})
}

// Reset restores Defaults.
func (s *Store) Reset() { s.item.Set(Defaults()) }

// All reports whether every named toggle is on.
func (s *Store) All(ns ...Name) bool {
	st := s.item.Get()
	for _, n := range ns {
		if !st.Get(n) {
			return false
		}
	}
	return true
}

// Any reports whether at least one named toggle is on.
func (s *Store) Any(ns ...Name) bool {
	st := s.item.Get()
	for _, n := range ns {
		if st.Get(n) {
			return true
		}
	}
	return false
}

// Subscribe registers fn for every state change, local or foreign.
func (s *Store) Subscribe(fn func(State)) func() { return s.item.Subscribe(fn) }

// Close stops following foreign writes.
func (s *Store) Close() { s.item.Close() }

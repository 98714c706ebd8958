package notify

import (
	"fmt"
	"sync"

	"github.com/five82/recipunto/internal/achievements"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/state"
)

// Triggers turns collection snapshots and unlocks into notifications.
type Triggers struct {
	center *Center

	mu     sync.Mutex
	primed bool
	full   map[string]bool
}

// NewTriggers feeds c.
func NewTriggers(c *Center) *Triggers {
	return &Triggers{center: c, full: make(map[string]bool)}
}

// Observe compares snap with the previous snapshot. The first loaded
// snapshot only records the baseline. Afterwards a box turning full yields
// a box_full notification and an unseen id yields new_box.
func (t *Triggers) Observe(snap state.Snapshot) {
	if !snap.Loaded {
		return
	}

	t.mu.Lock()
	var out []Notification
	next := make(map[string]bool, len(snap.Boxes))
	for _, b := range snap.Boxes {
		next[b.ID] = b.IsFull
		if !t.primed {
			continue
		}
		wasFull, known := t.full[b.ID]
		switch {
		case !known:
			out = append(out, newBoxNotification(b))
		case b.IsFull && !wasFull:
			out = append(out, boxFullNotification(b))
		}
	}
	t.full = next
	t.primed = true
	t.mu.Unlock()

	for _, n := range out {
		t.center.Add(n)
	}
}

// Unlocked announces an achievement.
func (t *Triggers) Unlocked(a achievements.Achievement) {
	t.center.Add(Notification{
		Type:      Achievement,
		Title:     "¡Nuevo logro desbloqueado!",
		Message:   fmt.Sprintf("Has desbloqueado el logro '%s'", a.Name),
		ActionURL: "/profile?tab=achievements",
		Metadata:  Metadata{AchievementID: a.ID, Points: a.Points},
	})
}

func boxFullNotification(b box.Box) Notification {
	return Notification{
		Type:      BoxFull,
		Title:     "¡Caja llena!",
		Message:   fmt.Sprintf("La caja #%s está llena y necesita ser recogida", b.ID),
		ActionURL: "/boxes/" + b.ID,
		Metadata:  Metadata{BoxID: b.ID},
	}
}

func newBoxNotification(b box.Box) Notification {
	return Notification{
		Type:      NewBox,
		Title:     "Nueva caja disponible",
		Message:   fmt.Sprintf("Se ha creado una nueva caja en %s", box.FormatCoordinates(b.Lat, b.Lng)),
		ActionURL: "/map",
		Metadata:  Metadata{BoxID: b.ID},
	}
}

package notify

import (
	"testing"
	"time"

	"github.com/five82/recipunto/internal/achievements"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/state"
)

func TestCenterLifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewCenter(Options{Now: func() time.Time { return now }})

	var announced []Type
	c.Subscribe(func(n Notification) { announced = append(announced, n.Type) })

	first := c.Add(Notification{Type: System, Title: "Mantenimiento", Read: true})
	second := c.Add(Notification{Type: Warning, Title: "Aviso"})
	if first.ID == "" || first.ID == second.ID || first.Read || !first.Timestamp.Equal(now) {
		t.Fatalf("Add did not stamp the notification: %+v", first)
	}
	if list := c.List(); len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("list should be newest first: %+v", list)
	}
	if c.Unread() != 2 {
		t.Fatalf("Unread = %d, want 2", c.Unread())
	}
	if !c.MarkRead(first.ID) || c.MarkRead("nope") || c.Unread() != 1 {
		t.Fatalf("MarkRead bookkeeping wrong, unread = %d", c.Unread())
	}
	c.MarkAllRead()
	if c.Unread() != 0 {
		t.Fatalf("Unread after MarkAllRead = %d", c.Unread())
	}
	if !c.Delete(first.ID) || c.Delete(first.ID) || len(c.List()) != 1 {
		t.Fatalf("Delete bookkeeping wrong: %+v", c.List())
	}
	if len(announced) != 2 || announced[0] != System {
		t.Fatalf("subscriber saw %v", announced)
	}
}

func TestCenterLimit(t *testing.T) {
	c := NewCenter(Options{Limit: 2})
	c.Add(Notification{Title: "1"})
	c.Add(Notification{Title: "2"})
	c.Add(Notification{Title: "3"})
	list := c.List()
	if len(list) != 2 || list[0].Title != "3" || list[1].Title != "2" {
		t.Fatalf("list = %+v", list)
	}
}

func TestTriggersFromSnapshots(t *testing.T) {
	c := NewCenter(Options{})
	tr := NewTriggers(c)

	tr.Observe(state.Snapshot{Boxes: []box.Box{{ID: "ignored"}}})
	tr.Observe(state.Snapshot{Loaded: true, Boxes: []box.Box{{ID: "a"}, {ID: "b", IsFull: true}}})
	if len(c.List()) != 0 {
		t.Fatalf("baseline snapshot produced %+v", c.List())
	}

	tr.Observe(state.Snapshot{Loaded: true, Boxes: []box.Box{
		{ID: "c", Lat: 40.41, Lng: -3.7},
		{ID: "a", IsFull: true},
		{ID: "b", IsFull: true},
	}})
	list := c.List()
	if len(list) != 2 {
		t.Fatalf("notifications = %+v, want new_box and box_full", list)
	}
	types := map[Type]Notification{list[0].Type: list[0], list[1].Type: list[1]}
	if n := types[NewBox]; n.Metadata.BoxID != "c" || n.Message != "Se ha creado una nueva caja en 40.410000, -3.700000" {
		t.Fatalf("new_box = %+v", n)
	}
	if n := types[BoxFull]; n.Metadata.BoxID != "a" || n.ActionURL != "/boxes/a" {
		t.Fatalf("box_full = %+v", n)
	}

	tr.Observe(state.Snapshot{Loaded: true, Boxes: []box.Box{{ID: "a", IsFull: true}}})
	if len(c.List()) != 2 {
		t.Fatalf("unchanged full box notified again")
	}
}

func TestTriggersUnlocked(t *testing.T) {
	c := NewCenter(Options{})
	NewTriggers(c).Unlocked(achievements.Achievement{ID: "streak_master", Name: "Maestro de la Constancia", Points: 300})
	n := c.List()[0]
	if n.Type != Achievement || n.Metadata.Points != 300 || n.Message != "Has desbloqueado el logro 'Maestro de la Constancia'" {
		t.Fatalf("achievement notification = %+v", n)
	}
}

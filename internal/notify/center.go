// Package notify keeps the in-app notification list and derives
// notifications from box changes and achievement unlocks.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification.
type Type string

const (
	BoxFull     Type = "box_full"
	NewBox      Type = "new_box"
	Achievement Type = "achievement"
	System      Type = "system"
	Warning     Type = "warning"
)

// Metadata links a notification to the object it is about.
type Metadata struct {
	BoxID         string `json:"boxId,omitempty"`
	AchievementID string `json:"achievementId,omitempty"`
	Points        int    `json:"points,omitempty"`
}

// Notification is one entry of the center.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	ActionURL string    `json:"actionUrl,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

const defaultLimit = 100

// Options configures a Center.
type Options struct {
	// Limit caps the number of kept notifications. Zero means 100.
	Limit int
	Now   func() time.Time
}

// Center holds notifications newest first. It is safe for concurrent use.
type Center struct {
	limit int
	now   func() time.Time

	mu     sync.Mutex
	items  []Notification
	subs   map[int]func(Notification)
	nextID int
}

// NewCenter returns an empty Center.
func NewCenter(opts Options) *Center {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Center{limit: opts.Limit, now: opts.Now, subs: make(map[int]func(Notification))}
}

// Add stores n as unread with a fresh id and timestamp, and announces it to
// subscribers.
func (c *Center) Add(n Notification) Notification {
	n.ID = uuid.NewString()
	n.Timestamp = c.now()
	n.Read = false

	c.mu.Lock()
	c.items = append([]Notification{n}, c.items...)
	if len(c.items) > c.limit {
		c.items = c.items[:c.limit]
	}
	subs := make([]func(Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
	return n
}

// MarkRead marks one notification read. It reports false for unknown ids.
func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification read.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		c.items[i].Read = true
	}
}

// Delete removes one notification.
func (c *Center) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the notifications, newest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Unread counts unread notifications.
func (c *Center) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Subscribe registers fn for every added notification.
func (c *Center) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

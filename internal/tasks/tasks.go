// Package tasks keeps a local to-do list, with helpers for recycling,
// maintenance and collection work on specific boxes.
package tasks

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
)

// Key is the storage key of the task list.
const Key = "local-tasks"

// Priority ranks a task.
type Priority string

const (
	Low    Priority = "low"
	Medium Priority = "medium"
	High   Priority = "high"
)

// Categories and tags used by the recycling helpers.
const (
	CategoryGeneral     = "General"
	CategoryRecycling   = "Reciclaje"
	CategoryMaintenance = "Mantenimiento"
	CategoryCollection  = "Recolección"
)

// Type selects one of the recycling task categories.
type Type string

const (
	TypeRecycling   Type = "reciclaje"
	TypeMaintenance Type = "mantenimiento"
	TypeCollection  Type = "recolección"
)

// Task is one entry of the list.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Tags        []string   `json:"tags"`
}

// CreateInput describes a new task. Priority defaults to Medium and
// Category to CategoryGeneral.
type CreateInput struct {
	Title       string   `validate:"required"`
	Description string
	Priority    Priority `validate:"omitempty,oneof=low medium high"`
	Category    string
	DueDate     *time.Time
	Tags        []string
}

// UpdateInput changes some fields of a task. Nil fields are left alone.
type UpdateInput struct {
	Title       *string   `validate:"omitempty,min=1"`
	Description *string
	Completed   *bool
	Priority    *Priority `validate:"omitempty,oneof=low medium high"`
	Category    *string
	DueDate     *time.Time
	Tags        []string
}

// Filter narrows List.Filtered. Zero fields match everything.
type Filter struct {
	Completed *bool
	Priority  Priority
	Category  string
	Search    string
}

func (f Filter) match(t Task) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Stats summarises the list.
type Stats struct {
	Total          int
	Completed      int
	Pending        int
	Overdue        int
	ByPriority     map[Priority]int
	ByCategory     map[string]int
	CompletionRate int // percent, rounded
}

// ErrNotFound is returned for operations on an unknown task id.
var ErrNotFound = errors.New("task not found")

var validate = validator.New()

// Options configures a List.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// List is the persisted task list, newest first.
type List struct {
	item *persist.Item[[]Task]
	now  func() time.Time
}

// New loads the list from store.
func New(store *storage.Store, opts Options) *List {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &List{
		item: persist.NewWithCodec(store, Key, []Task{}, persist.Slice[Task](), persist.WithLogger(opts.Logger.Named("tasks"))),
		now:  opts.Now,
	}
}

// All returns every task.
func (l *List) All() []Task { return slices.Clone(l.item.Get()) }

// Get looks up one task.
func (l *List) Get(id string) (Task, bool) {
	for _, t := range l.item.Get() {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Create adds a task at the front of the list.
func (l *List) Create(in CreateInput) (Task, error) {
	if err := validate.Struct(in); err != nil {
		return Task{}, fmt.Errorf("invalid task: %w", err)
	}
	now := l.now().UTC()
	t := Task{
		ID:          "task_" + uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Category:    in.Category,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        slices.Clone(in.Tags),
	}
	if t.Priority == "" {
		t.Priority = Medium
	}
	if t.Category == "" {
		t.Category = CategoryGeneral
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	l.item.Update(func(cur []Task) []Task {
		return append([]Task{t}, cur...)
	})
	return t, nil
}

// Update applies in to the task with id.
func (l *List) Update(id string, in UpdateInput) (Task, error) {
	if err := validate.Struct(in); err != nil {
		return Task{}, fmt.Errorf("invalid task update: %w", err)
	}
	var (
		updated Task
		found   bool
	)
	l.item.Update(func(cur []Task) []Task {
		next := slices.Clone(cur)
		for i := range next {
			if next[i].ID != id {
				continue
			}
			in.apply(&next[i])
			next[i].UpdatedAt = l.now().UTC()
			updated, found = next[i], true
			return next
		}
		return cur
	})
	if !found {
		return Task{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	return updated, nil
}

func (in UpdateInput) apply(t *Task) {
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.Category != nil {
		t.Category = *in.Category
	}
	if in.DueDate != nil {
		due := *in.DueDate
		t.DueDate = &due
	}
	if in.Tags != nil {
		t.Tags = slices.Clone(in.Tags)
	}
}

// Delete removes a task. It reports whether one was removed.
func (l *List) Delete(id string) bool {
	deleted := false
	l.item.Update(func(cur []Task) []Task {
		next := slices.DeleteFunc(slices.Clone(cur), func(t Task) bool { return t.ID == id })
		deleted = len(next) != len(cur)
		return next
	})
	return deleted
}

// Toggle flips the completion of a task. It reports false for unknown ids.
func (l *List) Toggle(id string) bool {
	t, ok := l.Get(id)
	if !ok {
		return false
	}
	done := !t.Completed
	_, err := l.Update(id, UpdateInput{Completed: &done})
	return err == nil
}

// ClearCompleted removes every completed task and returns how many.
func (l *List) ClearCompleted() int {
	removed := 0
	l.item.Update(func(cur []Task) []Task {
		next := slices.DeleteFunc(slices.Clone(cur), func(t Task) bool { return t.Completed })
		removed = len(cur) - len(next)
		return next
	})
	return removed
}

// Filtered returns the tasks matching f in list order.
func (l *List) Filtered(f Filter) []Task {
	var out []Task
	for _, t := range l.item.Get() {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Stats summarises the list. A task is overdue when it is pending and its
// due date has passed.
func (l *List) Stats() Stats {
	tasks := l.item.Get()
	now := l.now()
	s := Stats{
		Total:      len(tasks),
		ByPriority: map[Priority]int{High: 0, Medium: 0, Low: 0},
		ByCategory: make(map[string]int),
	}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		} else if t.DueDate != nil && t.DueDate.Before(now) {
			s.Overdue++
		}
		if _, ok := s.ByPriority[t.Priority]; ok {
			s.ByPriority[t.Priority]++
		}
		s.ByCategory[t.Category]++
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRate = (s.Completed*200 + s.Total) / (s.Total * 2)
	}
	return s
}

// Categories returns the distinct categories, sorted.
func (l *List) Categories() []string {
	var out []string
	for _, t := range l.item.Get() {
		out = append(out, t.Category)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Tags returns the distinct tags, sorted.
func (l *List) Tags() []string {
	var out []string
	for _, t := range l.item.Get() {
		out = append(out, t.Tags...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CreateRecyclingTask files a task under CategoryRecycling.
func (l *List) CreateRecyclingTask(in CreateInput) (Task, error) {
	in.Category = CategoryRecycling
	in.Tags = append(slices.Clone(in.Tags), "reciclaje", "medio-ambiente")
	return l.Create(in)
}

// CreateMaintenanceTask files a maintenance task for boxID.
func (l *List) CreateMaintenanceTask(boxID string, in CreateInput) (Task, error) {
	in.Category = CategoryMaintenance
	in.Tags = []string{"caja", "mantenimiento", "box-" + boxID}
	return l.Create(in)
}

// CreateCollectionTask files a collection task for boxID.
func (l *List) CreateCollectionTask(boxID string, in CreateInput) (Task, error) {
	in.Category = CategoryCollection
	in.Tags = []string{"recolección", "caja", "box-" + boxID}
	return l.Create(in)
}

// ByType returns the tasks whose category matches typ, ignoring case.
func (l *List) ByType(typ Type) []Task {
	var out []Task
	for _, t := range l.item.Get() {
		if strings.ToLower(t.Category) == string(typ) {
			out = append(out, t)
		}
	}
	return out
}

// Subscribe registers fn for every list change.
func (l *List) Subscribe(fn func([]Task)) func() { return l.item.Subscribe(fn) }

// Close stops following foreign writes.
func (l *List) Close() { l.item.Close() }

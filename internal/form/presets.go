package form

import (
	"time"

	"github.com/five82/recipunto/internal/auth"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/storage"
)

const (
	BoxFormKey  = "box-form-data"
	UserFormKey = "user-form-data"
)

// BoxDraft is the add-box form.
type BoxDraft struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	CurrentAmount int     `json:"currentAmount"`
	Capacity      int     `json:"capacity"`
	IsFull        bool    `json:"isFull"`
	Notes         string  `json:"notes"`
}

var (
	BoxLat           = NewField("lat", func(d *BoxDraft, v float64) { d.Lat = v })
	BoxLng           = NewField("lng", func(d *BoxDraft, v float64) { d.Lng = v })
	BoxCurrentAmount = NewField("currentAmount", func(d *BoxDraft, v int) { d.CurrentAmount = v })
	BoxCapacity      = NewField("capacity", func(d *BoxDraft, v int) { d.Capacity = v })
	BoxIsFull        = NewField("isFull", func(d *BoxDraft, v bool) { d.IsFull = v })
	BoxNotes         = NewField("notes", func(d *BoxDraft, v string) { d.Notes = v })
)

// DefaultBoxDraft is the empty add-box form.
func DefaultBoxDraft() BoxDraft {
	return BoxDraft{Capacity: 50}
}

// ValidateBoxDraft applies the box rules to a draft.
func ValidateBoxDraft(d BoxDraft) []string {
	return box.Validate(box.Input{
		Lat:           &d.Lat,
		Lng:           &d.Lng,
		Capacity:      &d.Capacity,
		CurrentAmount: &d.CurrentAmount,
	})
}

// NewBoxForm returns the add-box form. Unset options take the box defaults.
func NewBoxForm(store *storage.Store, opts Options[BoxDraft]) *Form[BoxDraft] {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Validate == nil {
		opts.Validate = ValidateBoxDraft
	}
	return New(store, BoxFormKey, DefaultBoxDraft(), opts)
}

// UserPreferences is the preferences block of the profile form.
type UserPreferences struct {
	Notifications bool   `json:"notifications"`
	Theme         string `json:"theme"`
	Language      string `json:"language"`
}

// UserDraft is the profile form.
type UserDraft struct {
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	Preferences UserPreferences `json:"preferences"`
}

var (
	UserFullName = NewField("fullName", func(d *UserDraft, v string) { d.FullName = v })
	UserEmail    = NewField("email", func(d *UserDraft, v string) { d.Email = v })
	UserPhone    = NewField("phone", func(d *UserDraft, v string) { d.Phone = v })
	UserPrefs    = NewField("preferences", func(d *UserDraft, v UserPreferences) { d.Preferences = v })
)

// DefaultUserDraft is the empty profile form.
func DefaultUserDraft() UserDraft {
	return UserDraft{Preferences: UserPreferences{Notifications: true, Theme: "system", Language: "es"}}
}

// ValidateUserDraft checks the email when one is given, and the preference
// values.
func ValidateUserDraft(d UserDraft) []string {
	var msgs []string
	if d.Email != "" && !auth.ValidateEmail(d.Email) {
		msgs = append(msgs, "email is not valid")
	}
	switch d.Preferences.Theme {
	case "light", "dark", "system":
	default:
		msgs = append(msgs, "theme must be light, dark or system")
	}
	switch d.Preferences.Language {
	case "es", "en":
	default:
		msgs = append(msgs, "language must be es or en")
	}
	return msgs
}

// NewUserForm returns the profile form. Unset options take the profile
// defaults.
func NewUserForm(store *storage.Store, opts Options[UserDraft]) *Form[UserDraft] {
	if opts.Debounce <= 0 {
		opts.Debounce = 1500 * time.Millisecond
	}
	if opts.Validate == nil {
		opts.Validate = ValidateUserDraft
	}
	return New(store, UserFormKey, DefaultUserDraft(), opts)
}

// Package auth holds the signed-in user's session and keeps it in the local
// store between runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/five82/recipunto/internal/backend"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/storage"
)

// Key is the storage key of the session.
const Key = "auth-session"

var (
	// ErrInvalidEmail is returned before any request for a malformed address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNoSession is returned when an operation needs a signed-in user.
	ErrNoSession = errors.New("no active session")
)

// PasswordError lists the unmet password rules.
type PasswordError struct {
	Messages []string
}

func (e *PasswordError) Error() string {
	return "weak password: " + strings.Join(e.Messages, "; ")
}

// Backend is the auth API. *backend.Client implements it.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (backend.TokenResponse, error)
	SignUp(ctx context.Context, email, password string) (backend.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (backend.TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// User identifies the signed-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a persisted login.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

// Claims are the access token fields the client reads. The backend verifies
// the signature, so the client never does.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Options configures a Manager.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Manager signs users in and out.
type Manager struct {
	backend Backend
	item    *persist.Item[*Session]
	now     func() time.Time
	log     *zap.Logger

	mu     sync.Mutex
	subs   map[int]func(*User)
	nextID int
}

// NewManager loads any stored session. An expired session that cannot be
// refreshed is dropped.
func NewManager(store *storage.Store, b Backend, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.Named("auth")
	item := persist.NewWithCodec(store, Key, (*Session)(nil), persist.JSON[*Session](),
		persist.WithLogger(log), persist.FollowRemovals())
	m := &Manager{
		backend: b,
		item:    item,
		now:     opts.Now,
		log:     log,
		subs:    make(map[int]func(*User)),
	}
	if s := m.item.Get(); s != nil && m.expired(*s) && s.RefreshToken == "" {
		log.Info("stored session expired", zap.String("user", s.User.ID))
		m.item.Remove()
	}
	m.item.Subscribe(m.notify)
	return m
}

func (m *Manager) expired(s Session) bool {
	return !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt)
}

// User returns the signed-in user.
func (m *Manager) User() (User, bool) {
	s := m.item.Get()
	if s == nil {
		return User{}, false
	}
	return s.User, true
}

// Session returns the current session.
func (m *Manager) Session() (Session, bool) {
	s := m.item.Get()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// SignIn exchanges credentials for a session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (User, error) {
	if !ValidateEmail(email) {
		return User{}, ErrInvalidEmail
	}
	tok, err := m.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	s, err := m.sessionFrom(tok)
	if err != nil {
		return User{}, err
	}
	m.install(&s)
	m.log.Info("signed in", zap.String("user", s.User.ID))
	return s.User, nil
}

// SignUp registers a user. When the backend requires email confirmation no
// session is started and ok is false.
func (m *Manager) SignUp(ctx context.Context, email, password string) (u User, ok bool, err error) {
	if !ValidateEmail(email) {
		return User{}, false, ErrInvalidEmail
	}
	if msgs := ValidatePassword(password); len(msgs) > 0 {
		return User{}, false, &PasswordError{Messages: msgs}
	}
	tok, err := m.backend.SignUp(ctx, email, password)
	if err != nil {
		return User{}, false, err
	}
	if tok.AccessToken == "" {
		return User{ID: tok.User.ID, Email: email}, false, nil
	}
	s, err := m.sessionFrom(tok)
	if err != nil {
		return User{}, false, err
	}
	m.install(&s)
	return s.User, true, nil
}

// SignOut revokes the session on the backend and forgets it locally. The
// local session is dropped even when the backend call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	s := m.item.Get()
	if s == nil {
		return nil
	}
	err := m.backend.SignOut(ctx, s.AccessToken)
	m.install(nil)
	if err != nil && !errors.Is(err, backend.ErrUnauthenticated) {
		return err
	}
	return nil
}

// RefreshIfNeeded renews the session when it expires within margin.
func (m *Manager) RefreshIfNeeded(ctx context.Context, margin time.Duration) error {
	s := m.item.Get()
	if s == nil {
		return ErrNoSession
	}
	if s.ExpiresAt.IsZero() || m.now().Add(margin).Before(s.ExpiresAt) {
		return nil
	}
	if s.RefreshToken == "" {
		m.install(nil)
		return ErrNoSession
	}
	tok, err := m.backend.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return err
	}
	next, err := m.sessionFrom(tok)
	if err != nil {
		return err
	}
	m.install(&next)
	return nil
}

// OnChange registers fn for every session change, including token refreshes
// and logins or logouts made by another process sharing the store. fn
// receives nil on sign out. The returned function unregisters it.
func (m *Manager) OnChange(fn func(*User)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) install(s *Session) {
	if s == nil {
		m.item.Remove()
		return
	}
	m.item.Set(s)
}

func (m *Manager) notify(s *Session) {
	m.mu.Lock()
	fns := make([]func(*User), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	var u *User
	if s != nil {
		dup := s.User
		u = &dup
	}
	for _, fn := range fns {
		fn(u)
	}
}

// sessionFrom reads the user and expiry from the access token claims,
// falling back to the response body.
func (m *Manager) sessionFrom(tok backend.TokenResponse) (Session, error) {
	if tok.AccessToken == "" {
		return Session{}, errors.New("auth response has no access token")
	}
	s := Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		User:         User{ID: tok.User.ID, Email: tok.User.Email},
	}
	switch {
	case tok.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		s.ExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	claims, err := ParseClaims(tok.AccessToken)
	if err != nil {
		m.log.Debug("access token is not a readable JWT", zap.Error(err))
	} else {
		if claims.Subject != "" {
			s.User.ID = claims.Subject
		}
		if claims.Email != "" {
			s.User.Email = claims.Email
		}
		if claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if s.User.ID == "" {
		return Session{}, errors.New("auth response has no user id")
	}
	return s, nil
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/R3E-Network/renkonet/internal/database"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/supabase/client"
)

// ErrNoIdentity is returned by operations that need a signed-in user.
var ErrNoIdentity = errors.New("no signed-in user")

// ProfileStore is the part of the repository the manager uses.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*database.Profile, error)
	CreateProfile(ctx context.Context, p *database.NewProfile) (*database.Profile, error)
	UpdateProfile(ctx context.Context, id string, upd database.ProfileUpdate) (*database.Profile, error)
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	User    *client.User
	Profile *database.Profile
	Loading bool
	Err     error
}

func (s Snapshot) IsAuthenticated() bool { return s.User != nil }

func (s Snapshot) IsAdmin() bool { return s.Profile.IsAdmin() }

func (s Snapshot) IsVerified() bool { return s.Profile.HasVerifiedBadge() }

func (s Snapshot) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Manager tracks the current identity and its profile. It reacts to the
// gateway's auth-state events so every sign-in path lands in one place.
type Manager struct {
	gateway  *Gateway
	profiles ProfileStore
	log      *logging.Logger

	mu      sync.RWMutex
	user    *client.User
	profile *database.Profile
	loading bool
	err     error

	unsubscribe func()
}

func NewManager(gw *Gateway, profiles ProfileStore, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewDiscard()
	}
	m := &Manager{
		gateway:  gw,
		profiles: profiles,
		log:      log,
		loading:  true,
	}
	m.unsubscribe = gw.OnAuthStateChange(m.handle)
	return m
}

// Initialize adopts a persisted session, if any, and loads its profile.
func (m *Manager) Initialize(ctx context.Context) error {
	m.setLoading(true)
	sess, err := m.gateway.GetSession(ctx)
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Warn("restore session failed")
		m.finish(err)
		return err
	}
	if sess == nil || sess.User == nil {
		m.finish(nil)
		return nil
	}
	m.fetchOrCreate(ctx, sess.User)
	return m.Err()
}

func (m *Manager) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventSignedIn:
		if ev.Session != nil && ev.Session.User != nil {
			m.fetchOrCreate(ctx, ev.Session.User)
		}
	case EventSignedOut:
		m.mu.Lock()
		m.user = nil
		m.profile = nil
		m.loading = false
		m.mu.Unlock()
	case EventTokenRefreshed:
		if ev.Session != nil && ev.Session.User != nil {
			m.mu.Lock()
			if m.user != nil && m.user.ID == ev.Session.User.ID {
				u := *ev.Session.User
				m.user = &u
			}
			m.mu.Unlock()
		}
	}
}

// fetchOrCreate loads the user's profile, creating it on first sign-in.
func (m *Manager) fetchOrCreate(ctx context.Context, user *client.User) {
	u := *user
	m.mu.Lock()
	m.user = &u
	m.loading = true
	m.mu.Unlock()

	profile, err := m.profiles.GetProfile(ctx, u.ID)
	if database.IsNotFound(err) {
		profile, err = m.profiles.CreateProfile(ctx, &database.NewProfile{
			ID:         u.ID,
			Username:   UsernameFromEmail(u.Email),
			FullName:   u.MetadataString("full_name"),
			Role:       database.RoleNormal,
			IsVerified: false,
		})
		if database.IsConflict(err) {
			// Another client created it first.
			profile, err = m.profiles.GetProfile(ctx, u.ID)
		}
	}
	if err != nil {
		m.log.WithContext(ctx).WithError(err).WithField("user_id", u.ID).Warn("load profile failed")
		m.mu.Lock()
		if m.user != nil && m.user.ID == u.ID {
			m.profile = nil
		}
		m.mu.Unlock()
		m.finish(err)
		return
	}

	m.mu.Lock()
	if m.user != nil && m.user.ID == u.ID {
		m.profile = profile
	}
	m.mu.Unlock()
	m.finish(nil)
}

// SignIn signs in with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.setLoading(true)
	if _, err := m.gateway.SignIn(ctx, email, password); err != nil {
		m.finish(err)
		return err
	}
	return m.Err()
}

// SignUp registers a new account. The bool reports whether the user is now
// signed in; it is false when email confirmation is pending.
func (m *Manager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (bool, error) {
	m.setLoading(true)
	sess, err := m.gateway.SignUp(ctx, email, password, metadata)
	if err != nil {
		m.finish(err)
		return false, err
	}
	if sess.AccessToken == "" {
		m.finish(nil)
		return false, nil
	}
	return true, m.Err()
}

// SignOut clears identity and profile even when the remote call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.gateway.SignOut(ctx)
	m.finish(err)
	return err
}

// UpdateProfile changes the current user's profile.
func (m *Manager) UpdateProfile(ctx context.Context, upd database.ProfileUpdate) (*database.Profile, error) {
	id := m.CurrentUserID()
	if id == "" {
		m.finish(ErrNoIdentity)
		return nil, ErrNoIdentity
	}
	profile, err := m.profiles.UpdateProfile(ctx, id, upd)
	if err != nil {
		m.finish(err)
		return nil, err
	}
	m.mu.Lock()
	if m.user != nil && m.user.ID == id {
		m.profile = profile
	}
	m.err = nil
	m.mu.Unlock()
	cp := *profile
	return &cp, nil
}

// ReloadProfile re-reads the current profile, e.g. after an admin changed it.
func (m *Manager) ReloadProfile(ctx context.Context) error {
	id := m.CurrentUserID()
	if id == "" {
		return ErrNoIdentity
	}
	profile, err := m.profiles.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.user != nil && m.user.ID == id {
		m.profile = profile
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) finish(err error) {
	m.mu.Lock()
	m.loading = false
	m.err = err
	m.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Loading: m.loading, Err: m.err}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	if m.profile != nil {
		p := *m.profile
		s.Profile = &p
	}
	return s
}

func (m *Manager) CurrentUserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *Manager) CurrentProfile() *database.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

func (m *Manager) IsAuthenticated() bool { return m.CurrentUserID() != "" }
func (m *Manager) IsAdmin() bool         { return m.CurrentProfile().IsAdmin() }
func (m *Manager) IsVerified() bool      { return m.CurrentProfile().HasVerifiedBadge() }

func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Close stops listening for auth-state changes.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// UsernameFromEmail derives the default username: the local part of the
// address, or "user" when there is none.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "user"
	}
	return local
}

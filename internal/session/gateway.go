package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/supabase/client"
)

// EventType names an auth-state change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is delivered to auth-state listeners. Session is nil for SIGNED_OUT.
type Event struct {
	Type    EventType
	Session *client.Session
}

// Listener receives auth-state changes synchronously, on the goroutine that
// caused them.
type Listener func(ctx context.Context, ev Event)

// Authenticator is the auth surface of the gateway. *client.AuthClient
// satisfies it.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*client.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*client.Session, error)
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

var _ Authenticator = (*client.AuthClient)(nil)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Auth      Authenticator
	Store     Store
	JWTSecret string
	Logger    *logging.Logger
	Now       func() time.Time
}

// Gateway holds the current auth session, persists it and fans out
// auth-state events.
type Gateway struct {
	auth   Authenticator
	store  Store
	secret string
	log    *logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	session   *client.Session
	loaded    bool
	listeners map[int]Listener
	nextID    int
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		auth:      cfg.Auth,
		store:     cfg.Store,
		secret:    cfg.JWTSecret,
		log:       cfg.Logger,
		now:       cfg.Now,
		listeners: make(map[int]Listener),
	}
}

// OnAuthStateChange registers l and returns a function that removes it.
func (g *Gateway) OnAuthStateChange(l Listener) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

func (g *Gateway) emit(ctx context.Context, ev Event) {
	g.mu.RLock()
	ids := make([]int, 0, len(g.listeners))
	for id := range g.listeners {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Ints(ids)

	metrics.RecordAuthEvent(string(ev.Type))
	for _, id := range ids {
		g.mu.RLock()
		l, ok := g.listeners[id]
		g.mu.RUnlock()
		if ok {
			l(ctx, ev)
		}
	}
}

// AccessToken returns the current access token or "". It never does I/O, so
// it can back a client.TokenSource.
func (g *Gateway) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return ""
	}
	return g.session.AccessToken
}

// Current returns a copy of the in-memory session without touching the store.
func (g *Gateway) Current() *client.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	cp := *g.session
	return &cp
}

// GetSession returns the current session, loading it from the store on first
// use. An expired token is refreshed before it is returned; a session that
// cannot be refreshed is dropped.
func (g *Gateway) GetSession(ctx context.Context) (*client.Session, error) {
	g.mu.Lock()
	if !g.loaded {
		stored, err := g.store.Load(ctx)
		if err != nil {
			g.mu.Unlock()
			return nil, fmt.Errorf("load session: %w", err)
		}
		g.session = stored
		g.loaded = true
	}
	sess := g.session
	g.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	if NeedsRefresh(sess, g.secret, g.now(), 0) {
		refreshed, err := g.Refresh(ctx)
		if err != nil {
			g.log.WithError(err).Warn("stored session could not be refreshed; discarding it")
			g.drop(ctx)
			return nil, nil
		}
		sess = refreshed
	}

	if sess.User == nil {
		user, err := g.auth.GetUser(ctx, sess.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		g.mu.Lock()
		if g.session != nil {
			g.session.User = user
		}
		g.mu.Unlock()
	}
	return g.Current(), nil
}

// SignIn signs in with email and password and emits SIGNED_IN.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*client.Session, error) {
	sess, err := g.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := g.adopt(ctx, sess); err != nil {
		return nil, err
	}
	g.emit(ctx, Event{Type: EventSignedIn, Session: g.Current()})
	return g.Current(), nil
}

// SignUp registers a user. When the project requires email confirmation no
// tokens come back; the user is returned and nobody is signed in.
func (g *Gateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.Session, error) {
	sess, err := g.auth.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return sess, nil
	}
	if err := g.adopt(ctx, sess); err != nil {
		return nil, err
	}
	g.emit(ctx, Event{Type: EventSignedIn, Session: g.Current()})
	return g.Current(), nil
}

// Refresh exchanges the refresh token for a new session and emits
// TOKEN_REFRESHED.
func (g *Gateway) Refresh(ctx context.Context) (*client.Session, error) {
	g.mu.RLock()
	var refreshToken string
	var user *client.User
	if g.session != nil {
		refreshToken = g.session.RefreshToken
		user = g.session.User
	}
	g.mu.RUnlock()
	if refreshToken == "" {
		return nil, errNoRefreshToken
	}

	sess, err := g.auth.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if sess.User == nil {
		sess.User = user
	}
	if err := g.adopt(ctx, sess); err != nil {
		return nil, err
	}
	g.emit(ctx, Event{Type: EventTokenRefreshed, Session: g.Current()})
	return g.Current(), nil
}

// RefreshIfNeeded refreshes when the token expires within leeway.
func (g *Gateway) RefreshIfNeeded(ctx context.Context, leeway time.Duration) (bool, error) {
	sess := g.Current()
	if !NeedsRefresh(sess, g.secret, g.now(), leeway) {
		return false, nil
	}
	if _, err := g.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SignOut revokes the session remotely and always clears it locally.
// A token the server no longer accepts counts as signed out.
func (g *Gateway) SignOut(ctx context.Context) error {
	token := g.AccessToken()
	var remoteErr error
	if token != "" {
		if err := g.auth.SignOut(ctx, token); err != nil && !alreadySignedOut(err) {
			remoteErr = err
		}
	}
	g.drop(ctx)
	return remoteErr
}

func (g *Gateway) drop(ctx context.Context) {
	g.mu.Lock()
	g.session = nil
	g.loaded = true
	g.mu.Unlock()
	if err := g.store.Clear(ctx); err != nil {
		g.log.WithError(err).Warn("failed to clear stored session")
	}
	g.emit(ctx, Event{Type: EventSignedOut})
}

func (g *Gateway) adopt(ctx context.Context, sess *client.Session) error {
	if sess == nil || sess.AccessToken == "" {
		return errors.New("auth response carried no access token")
	}
	if sess.ExpiresAt == 0 {
		if exp, err := TokenExpiry(sess, g.secret); err == nil && !exp.IsZero() {
			sess.ExpiresAt = exp.Unix()
		}
	}
	cp := *sess
	g.mu.Lock()
	g.session = &cp
	g.loaded = true
	g.mu.Unlock()
	if err := g.store.Save(ctx, &cp); err != nil {
		g.log.WithError(err).Warn("failed to persist session")
	}
	return nil
}

var errNoRefreshToken = errors.New("no refresh token")

func alreadySignedOut(err error) bool {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

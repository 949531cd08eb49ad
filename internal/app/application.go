package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/renkonet/internal/app/system"
	"github.com/R3E-Network/renkonet/internal/config"
	"github.com/R3E-Network/renkonet/internal/database"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/internal/session"
	"github.com/R3E-Network/renkonet/services/admin"
	"github.com/R3E-Network/renkonet/services/explore"
	"github.com/R3E-Network/renkonet/services/feed"
	"github.com/R3E-Network/renkonet/services/messages"
	"github.com/R3E-Network/renkonet/services/profile"
	"github.com/R3E-Network/renkonet/services/stories"
	"github.com/R3E-Network/renkonet/services/topics"
	"github.com/R3E-Network/renkonet/services/verification"
	"github.com/R3E-Network/renkonet/supabase/client"
)

// Uploader stores public objects in one storage bucket.
// *client.BucketClient satisfies it.
type Uploader interface {
	feed.Uploader
	stories.Uploader
}

// Deps overrides the backends New would otherwise build from the config.
// Tests use it to run the whole application against in-memory fakes.
type Deps struct {
	Repository   database.RepositoryInterface
	Auth         session.Authenticator
	SessionStore session.Store
	PostImages   Uploader
	StoryMedia   Uploader
	ChangeFeed   messages.ChangeFeed
}

// Application ties the gateway, the session and the views together and
// manages the lifecycle of background services.
type Application struct {
	manager *system.Manager
	log     *logging.Logger
	cfg     *config.Config

	Client    *client.Client
	Transport *client.ResilientTransport
	Repo      database.RepositoryInterface
	Gateway   *session.Gateway
	Session   *session.Manager
	refresher *session.Refresher

	Feed         *feed.Feed
	Explore      *explore.Explore
	Inbox        *messages.Inbox
	Profile      *profile.View
	Topics       *topics.Board
	Stories      *stories.Strip
	Verification *verification.View
	Admin        *admin.Panel

	unsubscribe func()
	resetMu     sync.Mutex
}

// New builds the application. Anything left nil in deps is built from cfg
// against the Supabase project.
func New(cfg *config.Config, deps Deps, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logging.New("renkonet", cfg.LogLevel, cfg.LogFormat)
	}

	a := &Application{manager: system.NewManager(), log: log, cfg: cfg}

	needClient := deps.Repository == nil || deps.Auth == nil || deps.PostImages == nil ||
		deps.StoryMedia == nil || (deps.ChangeFeed == nil && cfg.EnableRealtime)
	if needClient {
		c, transport, err := client.NewResilient(client.ResilienceConfig{
			Config:               client.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey},
			RetryConfig:          client.DefaultRetryConfig(),
			CircuitBreakerConfig: client.DefaultCircuitBreakerConfig(),
			Timeout:              cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create supabase client: %w", err)
		}
		a.Client, a.Transport = c, transport
	}

	if deps.Repository == nil {
		deps.Repository = database.NewRepository(a.Client)
	}
	if deps.Auth == nil {
		deps.Auth = a.Client.Auth()
	}
	if deps.SessionStore == nil {
		store, err := session.NewStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("create session store: %w", err)
		}
		deps.SessionStore = store
	}
	if deps.PostImages == nil {
		deps.PostImages = a.Client.Storage().From(feed.ImageBucket)
	}
	if deps.StoryMedia == nil {
		deps.StoryMedia = a.Client.Storage().From(stories.Bucket)
	}
	a.Repo = deps.Repository

	a.Gateway = session.NewGateway(session.GatewayConfig{
		Auth:      deps.Auth,
		Store:     deps.SessionStore,
		JWTSecret: cfg.SupabaseJWTSecret,
		Logger:    log.Named("session"),
	})
	if a.Client != nil {
		a.Client.SetTokenSource(a.Gateway.AccessToken)
	}
	a.Session = session.NewManager(a.Gateway, a.Repo, log.Named("session"))

	refresher, err := session.NewRefresher(a.Gateway, cfg.RefreshSchedule, cfg.RefreshLeeway, log.Named("refresher"))
	if err != nil {
		return nil, err
	}
	a.refresher = refresher

	a.Feed = feed.New(a.Repo, deps.PostImages, a.Session, log.Named("feed"))
	a.Explore = explore.New(a.Repo, a.Session, cfg.SearchDebounce, log.Named("explore"))
	a.Inbox = messages.NewInbox(a.Repo, a.Session, log.Named("messages"))
	a.Profile = profile.New(a.Repo, a.Session, log.Named("profile"))
	a.Topics = topics.NewBoard(a.Repo, a.Session, log.Named("topics"))
	a.Stories = stories.New(a.Repo, deps.StoryMedia, a.Session, log.Named("stories"))
	a.Verification = verification.New(a.Repo, a.Session, log.Named("verification"))
	a.Admin = admin.NewPanel(a.Repo, a.Session, log.Named("admin"))

	// Registered after the session manager, so listeners here see the
	// profile it has already loaded.
	a.unsubscribe = a.Gateway.OnAuthStateChange(a.onAuthEvent)

	services := []system.Service{&refresherService{r: refresher}}
	if cfg.EnableRealtime {
		feedSrc := deps.ChangeFeed
		var socket realtimeSocket
		if feedSrc == nil {
			rt := client.NewRealtimeClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
			rt.SetTokenSource(a.Gateway.AccessToken)
			feedSrc, socket = rt, rt
		}
		services = append(services, newInboxWatcher(a.Inbox, a.Gateway, a.Session, feedSrc, socket, log.Named("realtime")))
	}
	for _, svc := range services {
		if err := a.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return a, nil
}

func (a *Application) onAuthEvent(ctx context.Context, ev session.Event) {
	if ev.Type == session.EventSignedOut {
		a.ResetViews()
	}
}

// ResetViews clears every view. It runs on sign-out so no data from the
// previous identity survives.
func (a *Application) ResetViews() {
	a.resetMu.Lock()
	defer a.resetMu.Unlock()
	a.Feed.Reset()
	a.Explore.Reset()
	a.Inbox.Reset()
	a.Profile.Reset()
	a.Topics.Reset()
	a.Stories.Reset()
	a.Verification.Reset()
	a.Admin.Reset()
}

// Views lists every view for status reporting.
func (a *Application) Views() []StatusView {
	return []StatusView{a.Feed, a.Explore, a.Inbox, a.Profile, a.Topics, a.Stories, a.Verification.Base, a.Admin}
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start restores the persisted session and starts background services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Session.Initialize(ctx); err != nil {
		a.log.WithContext(ctx).WithError(err).Warn("restore session failed")
	}
	return a.manager.Start(ctx)
}

// Stop stops background services and detaches from the session.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.Session.Close()
	return err
}

// Ping checks the gateway.
func (a *Application) Ping(ctx context.Context) error {
	return a.Repo.Ping(ctx)
}

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger { return a.log }

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.cfg }

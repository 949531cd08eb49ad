// Package explore backs the discovery view: trending posts, suggested users
// and search.
package explore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

const (
	trendingLimit     = 10
	suggestedLimit    = 5
	postResultLimit   = 10
	peopleResultLimit = 5
)

// Store is the data the explore view reads.
type Store interface {
	ListTrendingPosts(ctx context.Context, limit int) ([]database.Post, error)
	ListSuggestedProfiles(ctx context.Context, excludeID string, limit int) ([]database.Profile, error)
	SearchPosts(ctx context.Context, query string, limit int) ([]database.Post, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]database.Profile, error)
}

// Identity yields the signed-in user's id, or "".
type Identity interface {
	CurrentUserID() string
}

// Results holds one search answer.
type Results struct {
	Query  string             `json:"query"`
	Posts  []database.Post    `json:"posts"`
	People []database.Profile `json:"people"`
}

// State is a copy of the view for rendering. Results is nil when no search
// is active.
type State struct {
	Trending  []database.Post    `json:"trending"`
	Suggested []database.Profile `json:"suggested"`
	Results   *Results           `json:"results"`
	Loading   bool               `json:"loading"`
	Error     string             `json:"error,omitempty"`
}

// Explore is the discovery view.
type Explore struct {
	*service.Base
	store    Store
	identity Identity
	log      *logging.Logger
	debounce *Debouncer

	mu        sync.RWMutex
	trending  []database.Post
	suggested []database.Profile
	results   *Results
	searchSeq uint64
}

func New(store Store, identity Identity, debounce time.Duration, log *logging.Logger) *Explore {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Explore{
		Base:     service.NewBase("explore"),
		store:    store,
		identity: identity,
		log:      log,
		debounce: NewDebouncer(debounce),
	}
}

// Load fetches trending posts and suggested users.
func (e *Explore) Load(ctx context.Context) error {
	gen := e.Begin()
	posts, err := e.store.ListTrendingPosts(ctx, trendingLimit)
	metrics.RecordGatewayCall("posts.trending", err)
	if err != nil {
		e.log.WithContext(ctx).WithError(err).Warn("load trending posts failed")
		e.Finish(gen, err)
		return err
	}
	people, err := e.store.ListSuggestedProfiles(ctx, e.identity.CurrentUserID(), suggestedLimit)
	metrics.RecordGatewayCall("profiles.suggested", err)
	if err != nil {
		e.log.WithContext(ctx).WithError(err).Warn("load suggested users failed")
		e.Finish(gen, err)
		return err
	}
	if !e.Finish(gen, nil) {
		return nil
	}

	e.mu.Lock()
	e.trending = posts
	e.suggested = people
	e.mu.Unlock()
	return nil
}

// Search looks up posts and people matching q. A blank query clears the
// results without a request. Answers to superseded queries are dropped.
func (e *Explore) Search(ctx context.Context, q string) error {
	q = strings.TrimSpace(q)

	e.mu.Lock()
	e.searchSeq++
	seq := e.searchSeq
	if q == "" {
		e.results = nil
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	gen := e.Begin()
	posts, err := e.store.SearchPosts(ctx, q, postResultLimit)
	metrics.RecordGatewayCall("posts.search", err)
	var people []database.Profile
	if err == nil {
		people, err = e.store.SearchProfiles(ctx, q, peopleResultLimit)
		metrics.RecordGatewayCall("profiles.search", err)
	}
	if err != nil {
		e.log.WithContext(ctx).WithError(err).WithField("query", q).Warn("search failed")
		e.Finish(gen, err)
		return err
	}
	if !e.Finish(gen, nil) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.searchSeq {
		return nil
	}
	e.results = &Results{Query: q, Posts: posts, People: people}
	return nil
}

// QueueSearch debounces Search. A blank query clears at once.
func (e *Explore) QueueSearch(ctx context.Context, q string) {
	if strings.TrimSpace(q) == "" {
		e.debounce.Stop()
		_ = e.Search(ctx, q)
		return
	}
	e.debounce.Trigger(func() {
		_ = e.Search(ctx, q)
	})
}

func (e *Explore) Results() *Results {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.results == nil {
		return nil
	}
	r := *e.results
	return &r
}

func (e *Explore) State() State {
	e.mu.RLock()
	s := State{
		Trending:  append([]database.Post{}, e.trending...),
		Suggested: append([]database.Profile{}, e.suggested...),
	}
	if e.results != nil {
		r := *e.results
		s.Results = &r
	}
	e.mu.RUnlock()
	s.Loading = e.Loading()
	if err := e.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// Reset drops everything and cancels a pending search.
func (e *Explore) Reset() {
	e.debounce.Stop()
	e.ResetState()
	e.mu.Lock()
	e.trending = nil
	e.suggested = nil
	e.results = nil
	e.searchSeq++
	e.mu.Unlock()
}

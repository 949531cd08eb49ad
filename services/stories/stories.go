// Package stories backs the stories strip: short-lived media grouped by
// author.
package stories

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
	"github.com/R3E-Network/renkonet/supabase/client"
)

const (
	// Bucket holds story media.
	Bucket = "stories"
	// DefaultTTL is how long a story stays visible.
	DefaultTTL = 24 * time.Hour
)

type Store interface {
	ListActiveStories(ctx context.Context, now time.Time) ([]database.Story, error)
	CreateStory(ctx context.Context, s *database.NewStory) (*database.Story, error)
}

type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (*client.Response, error)
	GetPublicURL(path string) string
}

type Identity interface {
	CurrentUserID() string
}

// Media is an uploaded story file.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// Group is one author's active stories, newest first.
type Group struct {
	UserID  string                   `json:"user_id"`
	Author  *database.ProfileSnippet `json:"author,omitempty"`
	Stories []database.Story         `json:"stories"`
}

// GroupByAuthor groups stories by author in order of first appearance.
func GroupByAuthor(list []database.Story) []Group {
	out := []Group{}
	index := map[string]int{}
	for _, s := range list {
		i, ok := index[s.UserID]
		if !ok {
			i = len(out)
			index[s.UserID] = i
			out = append(out, Group{UserID: s.UserID, Author: s.Author})
		}
		out[i].Stories = append(out[i].Stories, s)
	}
	return out
}

type Strip struct {
	*service.Base
	store    Store
	media    Uploader
	identity Identity
	log      *logging.Logger
	now      func() time.Time

	mu     sync.RWMutex
	groups []Group
}

func New(store Store, media Uploader, identity Identity, log *logging.Logger) *Strip {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Strip{
		Base:     service.NewBase("stories"),
		store:    store,
		media:    media,
		identity: identity,
		log:      log,
		now:      time.Now,
	}
}

// Load fetches unexpired stories.
func (s *Strip) Load(ctx context.Context) error {
	gen := s.Begin()
	list, err := s.store.ListActiveStories(ctx, s.now())
	metrics.RecordGatewayCall("stories.list", err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("load stories failed")
		s.Finish(gen, err)
		return err
	}
	if !s.Finish(gen, nil) {
		return nil
	}
	groups := GroupByAuthor(list)
	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()
	return nil
}

// Create uploads media and publishes it for ttl (DefaultTTL when zero).
func (s *Strip) Create(ctx context.Context, m Media, ttl time.Duration) (*database.Story, error) {
	self := s.identity.CurrentUserID()
	if self == "" {
		return nil, svcerrors.Unauthorized("sign in to post stories")
	}
	if len(m.Data) == 0 {
		err := svcerrors.Validation("media", "story media is required")
		s.SetErr(err)
		return nil, err
	}
	if s.media == nil {
		return nil, svcerrors.Unavailable("media storage is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	gen := s.Begin()
	objectPath := fmt.Sprintf("%s/%s%s", self, uuid.NewString(), strings.ToLower(path.Ext(m.Name)))
	_, err := s.media.Upload(ctx, objectPath, m.Data, m.ContentType)
	metrics.RecordGatewayCall("storage.upload", err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("upload story media failed")
		s.Finish(gen, err)
		return nil, err
	}

	story, err := s.store.CreateStory(ctx, &database.NewStory{
		UserID:    self,
		MediaURL:  s.media.GetPublicURL(objectPath),
		ExpiresAt: s.now().Add(ttl),
	})
	metrics.RecordGatewayCall("stories.create", err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("create story failed")
		s.Finish(gen, err)
		return nil, err
	}
	s.Finish(gen, nil)

	_ = s.Load(ctx)
	return story, nil
}

func (s *Strip) Groups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Group{}, s.groups...)
}

func (s *Strip) Reset() {
	s.ResetState()
	s.mu.Lock()
	s.groups = nil
	s.mu.Unlock()
}

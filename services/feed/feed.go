// Package feed backs the home feed: the newest posts, post creation and the
// per-post like toggle.
package feed

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
	"github.com/R3E-Network/renkonet/supabase/client"
)

const (
	// PageSize is how many posts the feed shows.
	PageSize = 20
	// ImageBucket holds post images.
	ImageBucket = "post-images"
)

// Store is the data the feed reads and writes.
type Store interface {
	LikeStore
	ListFeed(ctx context.Context, limit int) ([]database.Post, error)
	CreatePost(ctx context.Context, p *database.NewPost) (*database.Post, error)
	DeletePost(ctx context.Context, id string) error
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
}

// Uploader stores files in a bucket. *client.BucketClient satisfies it.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (*client.Response, error)
	GetPublicURL(path string) string
}

var _ Uploader = (*client.BucketClient)(nil)

// Identity yields the signed-in user's id, or "".
type Identity interface {
	CurrentUserID() string
}

// Image is an optional attachment for a new post.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Feed is the home view.
type Feed struct {
	*service.Base
	store    Store
	images   Uploader
	identity Identity
	log      *logging.Logger

	mu      sync.RWMutex
	cards   []*PostCard
	posting bool
}

func New(store Store, images Uploader, identity Identity, log *logging.Logger) *Feed {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Feed{
		Base:     service.NewBase("feed"),
		store:    store,
		images:   images,
		identity: identity,
		log:      log,
	}
}

// Load fetches the newest posts and which of them the user has liked.
func (f *Feed) Load(ctx context.Context) error {
	gen := f.Begin()
	posts, err := f.store.ListFeed(ctx, PageSize)
	metrics.RecordGatewayCall("posts.feed", err)
	if err != nil {
		f.log.WithContext(ctx).WithError(err).Warn("load feed failed")
		f.Finish(gen, err)
		return err
	}

	liked := map[string]bool{}
	if self := f.identity.CurrentUserID(); self != "" && len(posts) > 0 {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		liked, err = f.store.LikedPostIDs(ctx, self, ids)
		metrics.RecordGatewayCall("likes.list", err)
		if err != nil {
			f.log.WithContext(ctx).WithError(err).Warn("load liked state failed")
			f.Finish(gen, err)
			return err
		}
	}
	if !f.Finish(gen, nil) {
		return nil
	}

	cards := make([]*PostCard, len(posts))
	for i, p := range posts {
		cards[i] = NewPostCard(p, liked[p.ID], f.store, f.identity, f.log)
	}
	f.mu.Lock()
	f.cards = cards
	f.mu.Unlock()
	return nil
}

// Refresh reloads the feed.
func (f *Feed) Refresh(ctx context.Context) error { return f.Load(ctx) }

// CreatePost validates content, uploads the optional image, inserts the post
// and puts it at the top of the feed.
func (f *Feed) CreatePost(ctx context.Context, content string, img *Image) (*database.Post, error) {
	self := f.identity.CurrentUserID()
	if self == "" {
		err := svcerrors.Unauthorized("sign in to post")
		f.SetErr(err)
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		err := svcerrors.Validation("content", "post content is required")
		f.SetErr(err)
		return nil, err
	}

	f.mu.Lock()
	if f.posting {
		f.mu.Unlock()
		return nil, svcerrors.Busy("a post is already being published")
	}
	f.posting = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.posting = false
		f.mu.Unlock()
	}()

	gen := f.Begin()
	np := &database.NewPost{UserID: self, Content: content}
	if img != nil && len(img.Data) > 0 {
		url, err := f.upload(ctx, self, img)
		if err != nil {
			f.log.WithContext(ctx).WithError(err).Warn("upload post image failed")
			f.Finish(gen, err)
			return nil, err
		}
		np.ImageURL = url
	}

	post, err := f.store.CreatePost(ctx, np)
	metrics.RecordGatewayCall("posts.create", err)
	if err != nil {
		f.log.WithContext(ctx).WithError(err).Warn("create post failed")
		f.Finish(gen, err)
		return nil, err
	}
	if f.Finish(gen, nil) {
		card := NewPostCard(*post, false, f.store, f.identity, f.log)
		f.mu.Lock()
		f.cards = append([]*PostCard{card}, f.cards...)
		f.mu.Unlock()
	}
	return post, nil
}

func (f *Feed) upload(ctx context.Context, owner string, img *Image) (string, error) {
	if f.images == nil {
		return "", svcerrors.Unavailable("image storage is not configured")
	}
	ext := strings.ToLower(path.Ext(img.Name))
	objectPath := fmt.Sprintf("%s/%s%s", owner, uuid.NewString(), ext)
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := f.images.Upload(ctx, objectPath, img.Data, contentType)
	metrics.RecordGatewayCall("storage.upload", err)
	if err != nil {
		return "", err
	}
	return f.images.GetPublicURL(objectPath), nil
}

// DeletePost removes one of the user's own posts.
func (f *Feed) DeletePost(ctx context.Context, postID string) error {
	self := f.identity.CurrentUserID()
	if self == "" {
		return svcerrors.Unauthorized("sign in to delete posts")
	}
	card := f.Card(postID)
	if card == nil {
		return svcerrors.NotFound("post", postID)
	}
	if card.Post().UserID != self {
		return svcerrors.Forbidden("only the author can delete a post")
	}

	gen := f.Begin()
	err := f.store.DeletePost(ctx, postID)
	metrics.RecordGatewayCall("posts.delete", err)
	if err != nil {
		f.log.WithContext(ctx).WithError(err).WithField("post_id", postID).Warn("delete post failed")
		f.Finish(gen, err)
		return err
	}
	if f.Finish(gen, nil) {
		f.mu.Lock()
		f.cards = removeCard(f.cards, postID)
		f.mu.Unlock()
	}
	return nil
}

func removeCard(cards []*PostCard, id string) []*PostCard {
	out := cards[:0:0]
	for _, c := range cards {
		if c.ID() != id {
			out = append(out, c)
		}
	}
	return out
}

// Card returns the card for postID, or nil.
func (f *Feed) Card(postID string) *PostCard {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.cards {
		if c.ID() == postID {
			return c
		}
	}
	return nil
}

// ToggleLike toggles the like on a displayed post.
func (f *Feed) ToggleLike(ctx context.Context, postID string) (Result, error) {
	card := f.Card(postID)
	if card == nil {
		return Result{}, svcerrors.NotFound("post", postID)
	}
	return card.ToggleLike(ctx), nil
}

func (f *Feed) Cards() []*PostCard {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*PostCard(nil), f.cards...)
}

// Views returns the feed for rendering.
func (f *Feed) Views() []CardView {
	cards := f.Cards()
	out := make([]CardView, len(cards))
	for i, c := range cards {
		out[i] = c.View()
	}
	return out
}

// Reset drops all posts, e.g. on sign-out.
func (f *Feed) Reset() {
	f.ResetState()
	f.mu.Lock()
	f.cards = nil
	f.mu.Unlock()
}

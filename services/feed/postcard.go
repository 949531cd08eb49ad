package feed

import (
	"context"
	"sync"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
)

// LikeStore is what a card needs to toggle a like.
type LikeStore interface {
	CreateLike(ctx context.Context, userID, postID string) error
	DeleteLike(ctx context.Context, userID, postID string) error
	AdjustPostLikes(ctx context.Context, postID string, delta int) (int, error)
}

// Outcome tags the result of a like toggle.
type Outcome int

const (
	// Applied: the toggle reached the server and the card shows its result.
	Applied Outcome = iota + 1
	// Reverted: a write failed and the card went back to the server state.
	Reverted
	// Ignored: nothing was attempted (busy or signed out).
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Reverted:
		return "reverted"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Result reports what ToggleLike did.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Liked   bool    `json:"liked"`
	Count   int     `json:"likes_count"`
	Err     error   `json:"-"`
}

// ErrBusy is returned while a toggle on the same card is in flight.
var ErrBusy = svcerrors.Busy("like toggle already in progress")

// PostCard is one displayed post with its like state.
type PostCard struct {
	store    LikeStore
	identity Identity
	log      *logging.Logger

	mu          sync.RWMutex
	post        database.Post
	liked       bool
	count       int
	serverCount int
	busy        bool
}

// NewPostCard wraps post. liked is the state read from the likes table.
func NewPostCard(post database.Post, liked bool, store LikeStore, identity Identity, log *logging.Logger) *PostCard {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &PostCard{
		store:       store,
		identity:    identity,
		log:         log,
		post:        post,
		liked:       liked,
		count:       post.LikesCount,
		serverCount: post.LikesCount,
	}
}

// ToggleLike flips the like optimistically, writes the like row, then moves
// the counter with an atomic RPC. If either write fails the card returns to
// its last known server state.
func (c *PostCard) ToggleLike(ctx context.Context) Result {
	userID := c.identity.CurrentUserID()
	if userID == "" {
		return c.ignored(svcerrors.Unauthorized("sign in to like posts"))
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return c.ignored(ErrBusy)
	}
	c.busy = true
	wasLiked := c.liked
	c.liked = !wasLiked
	if c.liked {
		c.count++
	} else if c.count > 0 {
		c.count--
	}
	postID := c.post.ID
	c.mu.Unlock()

	delta := 1
	var err error
	if wasLiked {
		delta = -1
		err = c.store.DeleteLike(ctx, userID, postID)
	} else {
		err = c.store.CreateLike(ctx, userID, postID)
	}
	metrics.RecordGatewayCall("likes.write", err)

	var count int
	if err == nil {
		count, err = c.store.AdjustPostLikes(ctx, postID, delta)
		metrics.RecordGatewayCall("likes.count", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.liked = wasLiked
		c.count = c.serverCount
		c.log.WithContext(ctx).WithError(err).WithField("post_id", postID).Warn("like toggle reverted")
		metrics.RecordLikeToggle(Reverted.String())
		return Result{Outcome: Reverted, Liked: c.liked, Count: c.count, Err: err}
	}
	c.count = count
	c.serverCount = count
	c.post.LikesCount = count
	metrics.RecordLikeToggle(Applied.String())
	return Result{Outcome: Applied, Liked: c.liked, Count: c.count}
}

func (c *PostCard) ignored(err error) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	metrics.RecordLikeToggle(Ignored.String())
	return Result{Outcome: Ignored, Liked: c.liked, Count: c.count, Err: err}
}

func (c *PostCard) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.post.ID
}

// Post returns the post with the card's displayed like count.
func (c *PostCard) Post() database.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.post
	p.LikesCount = c.count
	return p
}

func (c *PostCard) Liked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liked
}

func (c *PostCard) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

func (c *PostCard) Busy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.busy
}

// CardView is the JSON form of a card.
type CardView struct {
	database.Post
	Liked bool `json:"liked"`
	Busy  bool `json:"busy"`
}

func (c *PostCard) View() CardView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.post
	p.LikesCount = c.count
	return CardView{Post: p, Liked: c.liked, Busy: c.busy}
}

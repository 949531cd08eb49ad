// Package topics backs the communities board: listing, creating, joining
// and leaving topics.
package topics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

const (
	trendingWindow = 7 * 24 * time.Hour
	trendingLimit  = 5
)

type Store interface {
	ListTopics(ctx context.Context) ([]database.Topic, error)
	ListTrendingTopics(ctx context.Context, since time.Time, limit int) ([]database.Topic, error)
	ListMemberTopics(ctx context.Context, userID string) ([]database.Topic, error)
	CountTopicMembers(ctx context.Context, topicID string) (int, error)
	CreateTopic(ctx context.Context, t *database.NewTopic) (*database.Topic, error)
	AddTopicMember(ctx context.Context, topicID, userID string) error
	RemoveTopicMember(ctx context.Context, topicID, userID string) error
	AdjustTopicMembers(ctx context.Context, topicID string, delta int) error
}

type Identity interface {
	CurrentUserID() string
}

// PartialError reports a membership change whose counter update failed.
// The membership row is authoritative; the next Load corrects the counter.
type PartialError struct {
	Op      string
	TopicID string
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s topic %s: membership saved but counter not updated: %v", e.Op, e.TopicID, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

type State struct {
	Topics   []database.Topic `json:"topics"`
	Trending []database.Topic `json:"trending"`
	Mine     []database.Topic `json:"mine"`
	Loading  bool             `json:"loading"`
	Error    string           `json:"error,omitempty"`
}

// Board is the topics view.
type Board struct {
	*service.Base
	store    Store
	identity Identity
	log      *logging.Logger
	now      func() time.Time

	mu       sync.RWMutex
	topics   []database.Topic
	trending []database.Topic
	mine     []database.Topic
}

func NewBoard(store Store, identity Identity, log *logging.Logger) *Board {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Board{
		Base:     service.NewBase("topics"),
		store:    store,
		identity: identity,
		log:      log,
		now:      time.Now,
	}
}

// Load fetches all topics, most members first, and replaces each stored
// counter with a live count of memberships.
func (b *Board) Load(ctx context.Context) error {
	gen := b.Begin()
	list, err := b.store.ListTopics(ctx)
	metrics.RecordGatewayCall("topics.list", err)
	if err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("load topics failed")
		b.Finish(gen, err)
		return err
	}

	heals := 0
	for i := range list {
		n, err := b.store.CountTopicMembers(ctx, list[i].ID)
		metrics.RecordGatewayCall("topics.count_members", err)
		if err != nil {
			b.log.WithContext(ctx).WithError(err).WithField("topic_id", list[i].ID).Debug("live member count unavailable")
			continue
		}
		if n != list[i].MembersCount {
			heals++
			list[i].MembersCount = n
		}
	}
	metrics.RecordCounterHeals(heals)
	if !b.Finish(gen, nil) {
		return nil
	}

	b.mu.Lock()
	b.topics = list
	b.mu.Unlock()
	return nil
}

// LoadTrending fetches the busiest topics created in the last week.
func (b *Board) LoadTrending(ctx context.Context) error {
	gen := b.Begin()
	list, err := b.store.ListTrendingTopics(ctx, b.now().Add(-trendingWindow), trendingLimit)
	metrics.RecordGatewayCall("topics.trending", err)
	if err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("load trending topics failed")
		b.Finish(gen, err)
		return err
	}
	if !b.Finish(gen, nil) {
		return nil
	}
	b.mu.Lock()
	b.trending = list
	b.mu.Unlock()
	return nil
}

// LoadMine fetches the topics the user belongs to.
func (b *Board) LoadMine(ctx context.Context) error {
	self := b.identity.CurrentUserID()
	if self == "" {
		b.mu.Lock()
		b.mine = nil
		b.mu.Unlock()
		return nil
	}
	gen := b.Begin()
	list, err := b.store.ListMemberTopics(ctx, self)
	metrics.RecordGatewayCall("topics.mine", err)
	if err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("load my topics failed")
		b.Finish(gen, err)
		return err
	}
	if !b.Finish(gen, nil) {
		return nil
	}
	b.mu.Lock()
	b.mine = list
	b.mu.Unlock()
	return nil
}

// Refresh runs Load, LoadTrending and LoadMine and returns the first error.
func (b *Board) Refresh(ctx context.Context) error {
	var first error
	for _, load := range []func(context.Context) error{b.Load, b.LoadTrending, b.LoadMine} {
		if err := load(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create adds a topic with the user as its first member.
func (b *Board) Create(ctx context.Context, name, description string) (*database.Topic, error) {
	self := b.identity.CurrentUserID()
	if self == "" {
		return nil, svcerrors.Unauthorized("sign in to create topics")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err := svcerrors.Validation("name", "topic name is required")
		b.SetErr(err)
		return nil, err
	}

	gen := b.Begin()
	topic, err := b.store.CreateTopic(ctx, &database.NewTopic{
		Name:         name,
		Description:  strings.TrimSpace(description),
		CreatorID:    self,
		MembersCount: 1,
	})
	metrics.RecordGatewayCall("topics.create", err)
	if err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("create topic failed")
		b.Finish(gen, err)
		return nil, err
	}
	err = b.store.AddTopicMember(ctx, topic.ID, self)
	metrics.RecordGatewayCall("topics.join", err)
	if err != nil {
		err = &PartialError{Op: "create", TopicID: topic.ID, Err: err}
		b.log.WithContext(ctx).WithError(err).Warn("creator auto-join failed")
	}
	b.Finish(gen, err)

	b.reload(ctx, err)
	return topic, err
}

// Join inserts the membership, then bumps the counter.
func (b *Board) Join(ctx context.Context, topicID string) error {
	return b.changeMembership(ctx, "join", topicID, b.store.AddTopicMember, 1)
}

// Leave deletes the membership, then lowers the counter.
func (b *Board) Leave(ctx context.Context, topicID string) error {
	return b.changeMembership(ctx, "leave", topicID, b.store.RemoveTopicMember, -1)
}

func (b *Board) changeMembership(ctx context.Context, op, topicID string, write func(context.Context, string, string) error, delta int) error {
	self := b.identity.CurrentUserID()
	if self == "" {
		return svcerrors.Unauthorized("sign in to " + op + " topics")
	}

	gen := b.Begin()
	err := write(ctx, topicID, self)
	metrics.RecordGatewayCall("topics."+op, err)
	if err != nil {
		b.log.WithContext(ctx).WithError(err).WithField("topic_id", topicID).Warnf("%s topic failed", op)
		b.Finish(gen, err)
		return err
	}

	err = b.store.AdjustTopicMembers(ctx, topicID, delta)
	metrics.RecordGatewayCall("topics.adjust_members", err)
	if err != nil {
		err = &PartialError{Op: op, TopicID: topicID, Err: err}
		b.log.WithContext(ctx).WithError(err).Warn("topic counter update failed")
	}
	b.Finish(gen, err)

	b.reload(ctx, err)
	return err
}

// reload refreshes topics and memberships after a change. Its errors are
// recorded on the view, not returned. A partial failure of the change
// itself outlives a successful reload.
func (b *Board) reload(ctx context.Context, changeErr error) {
	_ = b.Load(ctx)
	_ = b.LoadMine(ctx)
	if changeErr != nil {
		b.SetErr(changeErr)
	}
}

// IsMember reports membership from the last LoadMine.
func (b *Board) IsMember(topicID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.mine {
		if t.ID == topicID {
			return true
		}
	}
	return false
}

// Search filters the loaded topics by name or description.
func (b *Board) Search(term string) []database.Topic {
	term = strings.ToLower(strings.TrimSpace(term))
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []database.Topic{}
	for _, t := range b.topics {
		if term == "" ||
			strings.Contains(strings.ToLower(t.Name), term) ||
			strings.Contains(strings.ToLower(t.Description), term) {
			out = append(out, t)
		}
	}
	return out
}

func (b *Board) Topics() []database.Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]database.Topic(nil), b.topics...)
}

func (b *Board) State() State {
	b.mu.RLock()
	s := State{
		Topics:   append([]database.Topic{}, b.topics...),
		Trending: append([]database.Topic{}, b.trending...),
		Mine:     append([]database.Topic{}, b.mine...),
	}
	b.mu.RUnlock()
	s.Loading = b.Loading()
	if err := b.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (b *Board) Reset() {
	b.ResetState()
	b.mu.Lock()
	b.topics = nil
	b.trending = nil
	b.mine = nil
	b.mu.Unlock()
}

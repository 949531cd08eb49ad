// Package database is the typed gateway over the Supabase data API. Every
// collection operation the views use is one Repository method.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/renkonet/supabase/client"
)

// Embedded resource selections.
const (
	postSelect         = "*,profiles:user_id(username,full_name,avatar_url,is_verified,role)"
	messageSelect      = "*,sender:sender_id(username,avatar_url),receiver:receiver_id(username,avatar_url)"
	topicSelect        = "*,profiles:creator_id(username,avatar_url)"
	storySelect        = "*,profiles:user_id(username,avatar_url)"
	verificationSelect = "*,profiles:user_id(username,full_name,avatar_url)"
)

// RepositoryInterface is the union of every collection operation.
type RepositoryInterface interface {
	Ping(ctx context.Context) error

	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*Profile, error)
	CreateProfile(ctx context.Context, p *NewProfile) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	ListSuggestedProfiles(ctx context.Context, excludeID string, limit int) ([]Profile, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]Profile, error)

	ListFeed(ctx context.Context, limit int) ([]Post, error)
	CountPosts(ctx context.Context) (int, error)
	ListTrendingPosts(ctx context.Context, limit int) ([]Post, error)
	SearchPosts(ctx context.Context, query string, limit int) ([]Post, error)
	ListPostsByUser(ctx context.Context, userID string) ([]Post, error)
	CreatePost(ctx context.Context, p *NewPost) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	CreateLike(ctx context.Context, userID, postID string) error
	DeleteLike(ctx context.Context, userID, postID string) error
	AdjustPostLikes(ctx context.Context, postID string, delta int) (int, error)

	ListMessagesFor(ctx context.Context, userID string) ([]Message, error)
	ListThread(ctx context.Context, userID, otherID string) ([]Message, error)
	CreateMessage(ctx context.Context, m *NewMessage) (*Message, error)

	ListActiveStories(ctx context.Context, now time.Time) ([]Story, error)
	CreateStory(ctx context.Context, s *NewStory) (*Story, error)

	ListTopics(ctx context.Context) ([]Topic, error)
	ListTrendingTopics(ctx context.Context, since time.Time, limit int) ([]Topic, error)
	ListMemberTopics(ctx context.Context, userID string) ([]Topic, error)
	CountTopicMembers(ctx context.Context, topicID string) (int, error)
	CreateTopic(ctx context.Context, t *NewTopic) (*Topic, error)
	AddTopicMember(ctx context.Context, topicID, userID string) error
	RemoveTopicMember(ctx context.Context, topicID, userID string) error
	AdjustTopicMembers(ctx context.Context, topicID string, delta int) error

	LatestVerificationRequest(ctx context.Context, userID string) (*VerificationRequest, error)
	ListVerificationRequests(ctx context.Context) ([]VerificationRequest, error)
	CreateVerificationRequest(ctx context.Context, req *NewVerificationRequest) (*VerificationRequest, error)
	UpdateVerificationStatus(ctx context.Context, id, status string, at time.Time) (*VerificationRequest, error)

	ListAds(ctx context.Context) ([]Ad, error)
	CreateAd(ctx context.Context, ad *NewAd) (*Ad, error)
	SetAdActive(ctx context.Context, id string, active bool) (*Ad, error)
}

// Repository implements RepositoryInterface over a Supabase client.
type Repository struct {
	client *client.Client
}

var _ RepositoryInterface = (*Repository)(nil)

// NewRepository creates a repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// Ping issues a cheap count request against profiles.
func (r *Repository) Ping(ctx context.Context) error {
	_, err := r.client.From("profiles").Select("id").Count("exact").Head().Limit(1).Execute(ctx)
	return classify("ping", err)
}

func decodeRows[T any](op string, resp *client.Response) ([]T, error) {
	rows := []T{}
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("%s: %w: decode: %v", op, ErrDatabaseError, err)
	}
	return rows, nil
}

// decodeOne decodes a representation response and returns its first row.
func decodeOne[T any](op, resource, id string, resp *client.Response) (*T, error) {
	rows, err := decodeRows[T](op, resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewNotFoundError(resource, id)
	}
	return &rows[0], nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	return nil
}

// likePattern builds an ILIKE pattern for a user query. Characters that
// would break PostgREST's or=() grammar are dropped.
func likePattern(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '%':
			return -1
		}
		return r
	}, strings.TrimSpace(query))
	return "%" + cleaned + "%"
}

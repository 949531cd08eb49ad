package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListTopics returns every topic, largest first.
func (r *Repository) ListTopics(ctx context.Context) ([]Topic, error) {
	resp, err := r.client.From("topics").Select(topicSelect).Order("members_count", false).Execute(ctx)
	if err != nil {
		return nil, classify("list topics", err)
	}
	return decodeRows[Topic]("list topics", resp)
}

// ListTrendingTopics returns the largest topics created since the given time.
func (r *Repository) ListTrendingTopics(ctx context.Context, since time.Time, limit int) ([]Topic, error) {
	resp, err := r.client.From("topics").Select(topicSelect).
		Gte("created_at", since.UTC().Format(time.RFC3339)).
		Order("members_count", false).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, classify("list trending topics", err)
	}
	return decodeRows[Topic]("list trending topics", resp)
}

// ListMemberTopics returns the topics userID belongs to.
func (r *Repository) ListMemberTopics(ctx context.Context, userID string) ([]Topic, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("topic_members").Select("topic_id,topics("+topicSelect+")").Eq("user_id", userID).Execute(ctx)
	if err != nil {
		return nil, classify("list member topics", err)
	}
	rows, err := decodeRows[struct {
		TopicID string `json:"topic_id"`
		Topic   *Topic `json:"topics"`
	}]("list member topics", resp)
	if err != nil {
		return nil, err
	}
	topics := make([]Topic, 0, len(rows))
	for _, row := range rows {
		if row.Topic != nil {
			topics = append(topics, *row.Topic)
		}
	}
	return topics, nil
}

// CountTopicMembers returns the live membership count.
func (r *Repository) CountTopicMembers(ctx context.Context, topicID string) (int, error) {
	if err := requireID("topic id", topicID); err != nil {
		return 0, err
	}
	resp, err := r.client.From("topic_members").Select("*").Eq("topic_id", topicID).Count("exact").Head().Execute(ctx)
	if err != nil {
		return 0, classify("count topic members", err)
	}
	n := resp.Count()
	if n < 0 {
		return 0, fmt.Errorf("count topic members: %w: missing Content-Range", ErrDatabaseError)
	}
	return n, nil
}

// CreateTopic inserts a topic.
func (r *Repository) CreateTopic(ctx context.Context, t *NewTopic) (*Topic, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: topic cannot be nil", ErrInvalidInput)
	}
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("%w: topic name cannot be empty", ErrInvalidInput)
	}
	if err := requireID("creator id", t.CreatorID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("topics").Select(topicSelect).ExecuteInsert(ctx, t)
	if err != nil {
		return nil, classify("create topic", err)
	}
	return decodeOne[Topic]("create topic", "topic", "", resp)
}

// AddTopicMember inserts a membership. A duplicate returns ErrConflict.
func (r *Repository) AddTopicMember(ctx context.Context, topicID, userID string) error {
	if err := requireID("topic id", topicID); err != nil {
		return err
	}
	if err := requireID("user id", userID); err != nil {
		return err
	}
	_, err := r.client.From("topic_members").ExecuteInsert(ctx, TopicMember{TopicID: topicID, UserID: userID})
	return classify("add topic member", err)
}

// RemoveTopicMember deletes a membership.
func (r *Repository) RemoveTopicMember(ctx context.Context, topicID, userID string) error {
	if err := requireID("topic id", topicID); err != nil {
		return err
	}
	if err := requireID("user id", userID); err != nil {
		return err
	}
	_, err := r.client.From("topic_members").Eq("topic_id", topicID).Eq("user_id", userID).ExecuteDelete(ctx)
	return classify("remove topic member", err)
}

// AdjustTopicMembers nudges members_count through the counter RPCs.
func (r *Repository) AdjustTopicMembers(ctx context.Context, topicID string, delta int) error {
	if err := requireID("topic id", topicID); err != nil {
		return err
	}
	fn := "increment_topic_members"
	switch {
	case delta < 0:
		fn = "decrement_topic_members"
	case delta == 0:
		return fmt.Errorf("%w: delta cannot be zero", ErrInvalidInput)
	}
	_, err := r.client.RPC(ctx, fn, map[string]string{"topic_id": topicID})
	return classify(fn, err)
}

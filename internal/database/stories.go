package database

import (
	"context"
	"fmt"
	"time"
)

// ListActiveStories returns stories that expire after now, newest first.
func (r *Repository) ListActiveStories(ctx context.Context, now time.Time) ([]Story, error) {
	resp, err := r.client.From("stories").Select(storySelect).
		Gt("expires_at", now.UTC().Format(time.RFC3339)).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, classify("list stories", err)
	}
	return decodeRows[Story]("list stories", resp)
}

// CreateStory inserts a story.
func (r *Repository) CreateStory(ctx context.Context, s *NewStory) (*Story, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: story cannot be nil", ErrInvalidInput)
	}
	if err := requireID("user id", s.UserID); err != nil {
		return nil, err
	}
	if err := requireID("media url", s.MediaURL); err != nil {
		return nil, err
	}
	resp, err := r.client.From("stories").Select(storySelect).ExecuteInsert(ctx, s)
	if err != nil {
		return nil, classify("create story", err)
	}
	return decodeOne[Story]("create story", "story", "", resp)
}

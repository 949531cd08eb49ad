package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ListFeed returns the newest posts with their author snippet.
func (r *Repository) ListFeed(ctx context.Context, limit int) ([]Post, error) {
	resp, err := r.client.From("posts").Select(postSelect).Order("created_at", false).Limit(limit).Execute(ctx)
	if err != nil {
		return nil, classify("list feed", err)
	}
	return decodeRows[Post]("list feed", resp)
}

// CountPosts returns the exact number of posts.
func (r *Repository) CountPosts(ctx context.Context) (int, error) {
	resp, err := r.client.From("posts").Select("id").Count("exact").Head().Execute(ctx)
	if err != nil {
		return 0, classify("count posts", err)
	}
	n := resp.Count()
	if n < 0 {
		return 0, fmt.Errorf("count posts: %w: missing Content-Range", ErrDatabaseError)
	}
	return n, nil
}

// ListTrendingPosts returns the most liked posts.
func (r *Repository) ListTrendingPosts(ctx context.Context, limit int) ([]Post, error) {
	resp, err := r.client.From("posts").Select(postSelect).Order("likes_count", false).Limit(limit).Execute(ctx)
	if err != nil {
		return nil, classify("list trending posts", err)
	}
	return decodeRows[Post]("list trending posts", resp)
}

// SearchPosts matches post content case-insensitively, newest first.
func (r *Repository) SearchPosts(ctx context.Context, query string, limit int) ([]Post, error) {
	resp, err := r.client.From("posts").Select(postSelect).
		ILike("content", likePattern(query)).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, classify("search posts", err)
	}
	return decodeRows[Post]("search posts", resp)
}

// ListPostsByUser returns one author's posts, newest first.
func (r *Repository) ListPostsByUser(ctx context.Context, userID string) ([]Post, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("posts").Select(postSelect).Eq("user_id", userID).Order("created_at", false).Execute(ctx)
	if err != nil {
		return nil, classify("list posts by user", err)
	}
	return decodeRows[Post]("list posts by user", resp)
}

// CreatePost inserts a post and returns it with the author snippet.
func (r *Repository) CreatePost(ctx context.Context, p *NewPost) (*Post, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: post cannot be nil", ErrInvalidInput)
	}
	if err := requireID("user id", p.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}
	resp, err := r.client.From("posts").Select(postSelect).ExecuteInsert(ctx, p)
	if err != nil {
		return nil, classify("create post", err)
	}
	return decodeOne[Post]("create post", "post", "", resp)
}

// DeletePost removes a post.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	if err := requireID("post id", id); err != nil {
		return err
	}
	resp, err := r.client.From("posts").Eq("id", id).ExecuteDelete(ctx)
	if err != nil {
		return classify("delete post", err)
	}
	rows, err := decodeRows[Post]("delete post", resp)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return NewNotFoundError("post", id)
	}
	return nil
}

// LikedPostIDs returns which of postIDs userID has liked.
func (r *Repository) LikedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return out, nil
	}
	resp, err := r.client.From("likes").Select("post_id").Eq("user_id", userID).In("post_id", postIDs).Execute(ctx)
	if err != nil {
		return nil, classify("list likes", err)
	}
	rows, err := decodeRows[Like]("list likes", resp)
	if err != nil {
		return nil, err
	}
	for _, l := range rows {
		out[l.PostID] = true
	}
	return out, nil
}

// CreateLike inserts the (user, post) like. A duplicate returns ErrConflict.
func (r *Repository) CreateLike(ctx context.Context, userID, postID string) error {
	if err := requireID("user id", userID); err != nil {
		return err
	}
	if err := requireID("post id", postID); err != nil {
		return err
	}
	_, err := r.client.From("likes").ExecuteInsert(ctx, Like{UserID: userID, PostID: postID})
	return classify("create like", err)
}

// DeleteLike removes the (user, post) like.
func (r *Repository) DeleteLike(ctx context.Context, userID, postID string) error {
	if err := requireID("user id", userID); err != nil {
		return err
	}
	if err := requireID("post id", postID); err != nil {
		return err
	}
	_, err := r.client.From("likes").Eq("user_id", userID).Eq("post_id", postID).ExecuteDelete(ctx)
	return classify("delete like", err)
}

// AdjustPostLikes moves likes_count by one in the database and returns the
// new value. The decrement floors at zero.
func (r *Repository) AdjustPostLikes(ctx context.Context, postID string, delta int) (int, error) {
	if err := requireID("post id", postID); err != nil {
		return 0, err
	}
	fn := "increment_post_likes"
	switch {
	case delta < 0:
		fn = "decrement_post_likes"
	case delta == 0:
		return 0, fmt.Errorf("%w: delta cannot be zero", ErrInvalidInput)
	}
	resp, err := r.client.RPC(ctx, fn, map[string]string{"post_id": postID})
	if err != nil {
		return 0, classify(fn, err)
	}
	var count int
	if err := json.Unmarshal(resp.Body, &count); err != nil {
		return 0, fmt.Errorf("%s: %w: decode: %v", fn, ErrDatabaseError, err)
	}
	return count, nil
}

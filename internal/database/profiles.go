package database

import (
	"context"
	"fmt"
)

// GetProfile returns the profile with the given user id.
func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	if err := requireID("profile id", id); err != nil {
		return nil, err
	}
	resp, err := r.client.From("profiles").Select("*").Eq("id", id).Limit(1).Execute(ctx)
	if err != nil {
		return nil, classify("get profile", err)
	}
	return decodeOne[Profile]("get profile", "profile", id, resp)
}

// GetProfileByUsername looks a profile up by its unique username.
func (r *Repository) GetProfileByUsername(ctx context.Context, username string) (*Profile, error) {
	if err := requireID("username", username); err != nil {
		return nil, err
	}
	resp, err := r.client.From("profiles").Select("*").Eq("username", username).Limit(1).Execute(ctx)
	if err != nil {
		return nil, classify("get profile by username", err)
	}
	return decodeOne[Profile]("get profile by username", "profile", username, resp)
}

// CreateProfile inserts a profile row.
func (r *Repository) CreateProfile(ctx context.Context, p *NewProfile) (*Profile, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: profile cannot be nil", ErrInvalidInput)
	}
	if err := requireID("profile id", p.ID); err != nil {
		return nil, err
	}
	if err := requireID("username", p.Username); err != nil {
		return nil, err
	}
	resp, err := r.client.From("profiles").Select("*").ExecuteInsert(ctx, p)
	if err != nil {
		return nil, classify("create profile", err)
	}
	return decodeOne[Profile]("create profile", "profile", p.ID, resp)
}

// UpdateProfile patches the given fields and returns the stored row.
func (r *Repository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error) {
	if err := requireID("profile id", id); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, fmt.Errorf("%w: profile update is empty", ErrInvalidInput)
	}
	resp, err := r.client.From("profiles").Select("*").Eq("id", id).ExecuteUpdate(ctx, upd)
	if err != nil {
		return nil, classify("update profile", err)
	}
	return decodeOne[Profile]("update profile", "profile", id, resp)
}

// ListProfiles returns every profile, newest first.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	resp, err := r.client.From("profiles").Select("*").Order("created_at", false).Execute(ctx)
	if err != nil {
		return nil, classify("list profiles", err)
	}
	return decodeRows[Profile]("list profiles", resp)
}

// ListSuggestedProfiles returns the most followed profiles other than excludeID.
func (r *Repository) ListSuggestedProfiles(ctx context.Context, excludeID string, limit int) ([]Profile, error) {
	q := r.client.From("profiles").Select("*")
	if excludeID != "" {
		q = q.Neq("id", excludeID)
	}
	resp, err := q.Order("followers_count", false).Limit(limit).Execute(ctx)
	if err != nil {
		return nil, classify("list suggested profiles", err)
	}
	return decodeRows[Profile]("list suggested profiles", resp)
}

// SearchProfiles matches username or full name case-insensitively.
func (r *Repository) SearchProfiles(ctx context.Context, query string, limit int) ([]Profile, error) {
	pattern := likePattern(query)
	resp, err := r.client.From("profiles").Select("*").
		Or("username.ilike."+pattern, "full_name.ilike."+pattern).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, classify("search profiles", err)
	}
	return decodeRows[Profile]("search profiles", resp)
}

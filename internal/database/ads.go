package database

import (
	"context"
	"fmt"
	"strings"
)

// ListAds returns every ad, newest first.
func (r *Repository) ListAds(ctx context.Context) ([]Ad, error) {
	resp, err := r.client.From("ads").Select("*").Order("created_at", false).Execute(ctx)
	if err != nil {
		return nil, classify("list ads", err)
	}
	return decodeRows[Ad]("list ads", resp)
}

// CreateAd inserts an ad.
func (r *Repository) CreateAd(ctx context.Context, ad *NewAd) (*Ad, error) {
	if ad == nil || strings.TrimSpace(ad.Title) == "" {
		return nil, fmt.Errorf("%w: ad title cannot be empty", ErrInvalidInput)
	}
	resp, err := r.client.From("ads").Select("*").ExecuteInsert(ctx, ad)
	if err != nil {
		return nil, classify("create ad", err)
	}
	return decodeOne[Ad]("create ad", "ad", "", resp)
}

// SetAdActive toggles an ad on or off.
func (r *Repository) SetAdActive(ctx context.Context, id string, active bool) (*Ad, error) {
	if err := requireID("ad id", id); err != nil {
		return nil, err
	}
	resp, err := r.client.From("ads").Select("*").Eq("id", id).ExecuteUpdate(ctx, map[string]bool{"is_active": active})
	if err != nil {
		return nil, classify("set ad active", err)
	}
	return decodeOne[Ad]("set ad active", "ad", id, resp)
}

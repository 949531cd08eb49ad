// Package admin backs the moderation panel. Every operation requires the
// signed-in profile to carry the admin role.
package admin

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

const recentPostLimit = 50

// ErrAccessDenied is returned to non-admin viewers.
var ErrAccessDenied = svcerrors.Forbidden("access denied: admin role required")

type Store interface {
	ListProfiles(ctx context.Context) ([]database.Profile, error)
	UpdateProfile(ctx context.Context, id string, upd database.ProfileUpdate) (*database.Profile, error)
	ListFeed(ctx context.Context, limit int) ([]database.Post, error)
	CountPosts(ctx context.Context) (int, error)
	DeletePost(ctx context.Context, id string) error
	ListVerificationRequests(ctx context.Context) ([]database.VerificationRequest, error)
	UpdateVerificationStatus(ctx context.Context, id, status string, at time.Time) (*database.VerificationRequest, error)
	ListAds(ctx context.Context) ([]database.Ad, error)
	CreateAd(ctx context.Context, ad *database.NewAd) (*database.Ad, error)
	SetAdActive(ctx context.Context, id string, active bool) (*database.Ad, error)
}

// Viewer exposes the signed-in profile. *session.Manager satisfies it.
type Viewer interface {
	CurrentProfile() *database.Profile
}

type Stats struct {
	TotalUsers           int `json:"total_users"`
	TotalPosts           int `json:"total_posts"`
	PendingVerifications int `json:"pending_verifications"`
	ActiveAds            int `json:"active_ads"`
}

// AdForm is the new-ad form.
type AdForm struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
	LinkURL  string `json:"link_url"`
}

type State struct {
	Users         []database.Profile             `json:"users"`
	Posts         []database.Post                `json:"posts"`
	Verifications []database.VerificationRequest `json:"verifications"`
	Ads           []database.Ad                  `json:"ads"`
	Stats         Stats                          `json:"stats"`
	Loading       bool                           `json:"loading"`
	Error         string                         `json:"error,omitempty"`
}

// Panel is the admin view.
type Panel struct {
	*service.Base
	store  Store
	viewer Viewer
	log    *logging.Logger
	now    func() time.Time

	mu            sync.RWMutex
	users         []database.Profile
	posts         []database.Post
	totalPosts    int
	verifications []database.VerificationRequest
	ads           []database.Ad
}

func NewPanel(store Store, viewer Viewer, log *logging.Logger) *Panel {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Panel{
		Base:   service.NewBase("admin"),
		store:  store,
		viewer: viewer,
		log:    log,
		now:    time.Now,
	}
}

// Authorize returns ErrAccessDenied unless the viewer is an admin.
func (p *Panel) Authorize() error {
	if !p.viewer.CurrentProfile().IsAdmin() {
		return ErrAccessDenied
	}
	return nil
}

// Load fetches users, recent posts, verification requests and ads.
func (p *Panel) Load(ctx context.Context) error {
	if err := p.Authorize(); err != nil {
		return err
	}

	gen := p.Begin()
	users, err := p.store.ListProfiles(ctx)
	p.record("admin.users", err)
	var posts []database.Post
	if err == nil {
		posts, err = p.store.ListFeed(ctx, recentPostLimit)
		p.record("admin.posts", err)
	}
	var total int
	if err == nil {
		total, err = p.store.CountPosts(ctx)
		p.record("admin.count_posts", err)
	}
	var reqs []database.VerificationRequest
	if err == nil {
		reqs, err = p.store.ListVerificationRequests(ctx)
		p.record("admin.verifications", err)
	}
	var ads []database.Ad
	if err == nil {
		ads, err = p.store.ListAds(ctx)
		p.record("admin.ads", err)
	}
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Warn("load admin panel failed")
		p.Finish(gen, err)
		return err
	}
	if !p.Finish(gen, nil) {
		return nil
	}

	p.mu.Lock()
	p.users = users
	p.posts = posts
	p.totalPosts = total
	p.verifications = reqs
	p.ads = ads
	p.mu.Unlock()
	return nil
}

func (p *Panel) record(op string, err error) {
	metrics.RecordGatewayCall(op, err)
}

// run wraps a single mutation with the access check and the view's
// loading and error bookkeeping.
func (p *Panel) run(ctx context.Context, op string, fn func() error) error {
	if err := p.Authorize(); err != nil {
		return err
	}
	gen := p.Begin()
	err := fn()
	p.record(op, err)
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Warnf("%s failed", op)
	}
	p.Finish(gen, err)
	return err
}

// UpdateUserRole sets a user's role.
func (p *Panel) UpdateUserRole(ctx context.Context, userID, role string) error {
	if err := p.Authorize(); err != nil {
		return err
	}
	switch role {
	case database.RoleNormal, database.RoleVerified, database.RoleAdmin:
	default:
		return svcerrors.Validation("role", "role must be normal, verified or admin")
	}
	return p.run(ctx, "admin.update_role", func() error {
		updated, err := p.store.UpdateProfile(ctx, userID, database.ProfileUpdate{Role: &role})
		if err != nil {
			return err
		}
		p.patchUser(*updated)
		return nil
	})
}

// ToggleUserVerification flips a user's is_verified flag.
func (p *Panel) ToggleUserVerification(ctx context.Context, userID string) error {
	if err := p.Authorize(); err != nil {
		return err
	}
	user, ok := p.user(userID)
	if !ok {
		return svcerrors.NotFound("profile", userID)
	}
	next := !user.IsVerified
	return p.run(ctx, "admin.toggle_verification", func() error {
		updated, err := p.store.UpdateProfile(ctx, userID, database.ProfileUpdate{IsVerified: &next})
		if err != nil {
			return err
		}
		p.patchUser(*updated)
		return nil
	})
}

// DeletePost removes any post.
func (p *Panel) DeletePost(ctx context.Context, postID string) error {
	return p.run(ctx, "admin.delete_post", func() error {
		if err := p.store.DeletePost(ctx, postID); err != nil {
			return err
		}
		p.mu.Lock()
		kept := p.posts[:0:0]
		for _, post := range p.posts {
			if post.ID != postID {
				kept = append(kept, post)
			}
		}
		if len(kept) != len(p.posts) && p.totalPosts > 0 {
			p.totalPosts--
		}
		p.posts = kept
		p.mu.Unlock()
		return nil
	})
}

// ResolveVerification approves or rejects a request. Approval also marks the
// requester verified; that is a second, separate write.
func (p *Panel) ResolveVerification(ctx context.Context, requestID, status string) error {
	if err := p.Authorize(); err != nil {
		return err
	}
	if status != database.VerificationApproved && status != database.VerificationRejected {
		return svcerrors.Validation("status", "status must be approved or rejected")
	}
	return p.run(ctx, "admin.resolve_verification", func() error {
		req, err := p.store.UpdateVerificationStatus(ctx, requestID, status, p.now())
		if err != nil {
			return err
		}
		p.mu.Lock()
		for i := range p.verifications {
			if p.verifications[i].ID == requestID {
				requester := p.verifications[i].Requester
				p.verifications[i] = *req
				p.verifications[i].Requester = requester
			}
		}
		p.mu.Unlock()

		if status != database.VerificationApproved {
			return nil
		}
		verified := true
		updated, err := p.store.UpdateProfile(ctx, req.UserID, database.ProfileUpdate{IsVerified: &verified})
		if err != nil {
			return err
		}
		p.patchUser(*updated)
		return nil
	})
}

// CreateAd publishes an active ad and reloads the panel.
func (p *Panel) CreateAd(ctx context.Context, form AdForm) (*database.Ad, error) {
	if err := p.Authorize(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(form.Title)
	if title == "" {
		err := svcerrors.Validation("title", "ad title is required")
		p.SetErr(err)
		return nil, err
	}
	var ad *database.Ad
	err := p.run(ctx, "admin.create_ad", func() error {
		var err error
		ad, err = p.store.CreateAd(ctx, &database.NewAd{
			Title:    title,
			Content:  strings.TrimSpace(form.Content),
			ImageURL: strings.TrimSpace(form.ImageURL),
			LinkURL:  strings.TrimSpace(form.LinkURL),
			IsActive: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	_ = p.Load(ctx)
	return ad, nil
}

// ToggleAd flips an ad's active flag.
func (p *Panel) ToggleAd(ctx context.Context, adID string) error {
	if err := p.Authorize(); err != nil {
		return err
	}
	var current *database.Ad
	p.mu.RLock()
	for i := range p.ads {
		if p.ads[i].ID == adID {
			a := p.ads[i]
			current = &a
		}
	}
	p.mu.RUnlock()
	if current == nil {
		return svcerrors.NotFound("ad", adID)
	}
	return p.run(ctx, "admin.toggle_ad", func() error {
		updated, err := p.store.SetAdActive(ctx, adID, !current.IsActive)
		if err != nil {
			return err
		}
		p.mu.Lock()
		for i := range p.ads {
			if p.ads[i].ID == adID {
				p.ads[i] = *updated
			}
		}
		p.mu.Unlock()
		return nil
	})
}

func (p *Panel) user(id string) (database.Profile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.users {
		if u.ID == id {
			return u, true
		}
	}
	return database.Profile{}, false
}

func (p *Panel) patchUser(updated database.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.users {
		if p.users[i].ID == updated.ID {
			p.users[i] = updated
		}
	}
}

// Stats summarizes the loaded data.
func (p *Panel) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Stats{TotalUsers: len(p.users), TotalPosts: p.totalPosts}
	for _, v := range p.verifications {
		if v.Status == database.VerificationPending {
			s.PendingVerifications++
		}
	}
	for _, a := range p.ads {
		if a.IsActive {
			s.ActiveAds++
		}
	}
	return s
}

// State returns the panel for rendering. Non-admins get ErrAccessDenied and
// never see the data.
func (p *Panel) State() (State, error) {
	if err := p.Authorize(); err != nil {
		return State{}, err
	}
	p.mu.RLock()
	s := State{
		Users:         append([]database.Profile{}, p.users...),
		Posts:         append([]database.Post{}, p.posts...),
		Verifications: append([]database.VerificationRequest{}, p.verifications...),
		Ads:           append([]database.Ad{}, p.ads...),
	}
	p.mu.RUnlock()
	s.Stats = p.Stats()
	s.Loading = p.Loading()
	if err := p.Err(); err != nil {
		s.Error = err.Error()
	}
	return s, nil
}

func (p *Panel) Reset() {
	p.ResetState()
	p.mu.Lock()
	p.users = nil
	p.posts = nil
	p.totalPosts = 0
	p.verifications = nil
	p.ads = nil
	p.mu.Unlock()
}

// Package profile backs the profile page: a user's public profile, their
// posts and, for the owner, the edit form.
package profile

import (
	"context"
	"strings"
	"sync"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

type Store interface {
	GetProfile(ctx context.Context, id string) (*database.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*database.Profile, error)
	ListPostsByUser(ctx context.Context, userID string) ([]database.Post, error)
}

// Session is the identity and the profile writer. *session.Manager
// satisfies it.
type Session interface {
	CurrentUserID() string
	UpdateProfile(ctx context.Context, upd database.ProfileUpdate) (*database.Profile, error)
}

// Form is the edit form. Empty fields other than Username clear the value.
type Form struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

type State struct {
	Profile *database.Profile `json:"profile"`
	Posts   []database.Post   `json:"posts"`
	IsOwn   bool              `json:"is_own"`
	Loading bool              `json:"loading"`
	Error   string            `json:"error,omitempty"`
}

type View struct {
	*service.Base
	store   Store
	session Session
	log     *logging.Logger

	mu      sync.RWMutex
	profile *database.Profile
	posts   []database.Post
}

func New(store Store, session Session, log *logging.Logger) *View {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &View{
		Base:    service.NewBase("profile"),
		store:   store,
		session: session,
		log:     log,
	}
}

// Load shows username's profile, or the user's own when username is empty.
func (v *View) Load(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	self := v.session.CurrentUserID()
	if username == "" && self == "" {
		err := svcerrors.Unauthorized("sign in to view your profile")
		v.SetErr(err)
		return err
	}

	gen := v.Begin()
	var (
		p   *database.Profile
		err error
	)
	if username == "" {
		p, err = v.store.GetProfile(ctx, self)
	} else {
		p, err = v.store.GetProfileByUsername(ctx, username)
	}
	metrics.RecordGatewayCall("profiles.get", err)
	if database.IsNotFound(err) {
		err = svcerrors.NotFound("profile", username)
	}
	if err != nil {
		v.log.WithContext(ctx).WithError(err).WithField("username", username).Warn("load profile failed")
		v.Finish(gen, err)
		return err
	}

	posts, err := v.store.ListPostsByUser(ctx, p.ID)
	metrics.RecordGatewayCall("posts.by_user", err)
	if err != nil {
		v.log.WithContext(ctx).WithError(err).Warn("load profile posts failed")
		v.Finish(gen, err)
		return err
	}
	if !v.Finish(gen, nil) {
		return nil
	}

	v.mu.Lock()
	v.profile = p
	v.posts = posts
	v.mu.Unlock()
	return nil
}

// Update saves the form for the signed-in user.
func (v *View) Update(ctx context.Context, form Form) (*database.Profile, error) {
	username := strings.TrimSpace(form.Username)
	if username == "" {
		err := svcerrors.Validation("username", "username is required")
		v.SetErr(err)
		return nil, err
	}
	fullName := strings.TrimSpace(form.FullName)
	bio := strings.TrimSpace(form.Bio)
	avatar := strings.TrimSpace(form.AvatarURL)

	gen := v.Begin()
	p, err := v.session.UpdateProfile(ctx, database.ProfileUpdate{
		Username:  &username,
		FullName:  &fullName,
		Bio:       &bio,
		AvatarURL: &avatar,
	})
	metrics.RecordGatewayCall("profiles.update", err)
	if database.IsConflict(err) {
		err = svcerrors.Conflict("username is already taken")
	}
	if err != nil {
		v.Finish(gen, err)
		return nil, err
	}
	if v.Finish(gen, nil) {
		v.mu.Lock()
		if v.profile == nil || v.profile.ID == p.ID {
			cp := *p
			v.profile = &cp
		}
		v.mu.Unlock()
	}
	return p, nil
}

func (v *View) State() State {
	v.mu.RLock()
	s := State{Posts: append([]database.Post{}, v.posts...)}
	if v.profile != nil {
		p := *v.profile
		s.Profile = &p
		s.IsOwn = p.ID == v.session.CurrentUserID()
	}
	v.mu.RUnlock()
	s.Loading = v.Loading()
	if err := v.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (v *View) Reset() {
	v.ResetState()
	v.mu.Lock()
	v.profile = nil
	v.posts = nil
	v.mu.Unlock()
}

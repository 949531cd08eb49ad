package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
)

type viewer struct{ p *database.Profile }

func (v viewer) CurrentProfile() *database.Profile { return v.p }

var adminProfile = &database.Profile{ID: "root", Username: "root", Role: database.RoleAdmin}

func seededPanel(t *testing.T, who *database.Profile) (*Panel, *database.MockRepository) {
	t.Helper()
	repo := database.NewMockRepository()
	repo.SeedProfile(*adminProfile)
	repo.SeedProfile(database.Profile{ID: "alice", Username: "alice"})
	repo.SeedPost(database.Post{ID: "p1", UserID: "alice", Content: "hello"})
	repo.SeedPost(database.Post{ID: "p2", UserID: "alice", Content: "again"})
	repo.SeedVerification(database.VerificationRequest{ID: "vr1", UserID: "alice", Status: database.VerificationPending})
	repo.SeedAd(database.Ad{ID: "ad1", Title: "Shoes", IsActive: true})
	repo.SeedAd(database.Ad{ID: "ad2", Title: "Hats", IsActive: false})
	return NewPanel(repo, viewer{who}, nil), repo
}

func TestNonAdminIsDenied(t *testing.T) {
	p, repo := seededPanel(t, &database.Profile{ID: "alice", Role: database.RoleNormal, IsVerified: false})

	assert.ErrorIs(t, p.Load(context.Background()), ErrAccessDenied)
	_, err := p.State()
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, p.DeletePost(context.Background(), "p1"), ErrAccessDenied)
	assert.ErrorIs(t, p.ToggleUserVerification(context.Background(), "alice"), ErrAccessDenied)
	_, err = p.CreateAd(context.Background(), AdForm{})
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, 0, repo.TotalCalls())

	verifiedOnly, _ := seededPanel(t, &database.Profile{ID: "v", Role: database.RoleVerified, IsVerified: true})
	assert.ErrorIs(t, verifiedOnly.Authorize(), ErrAccessDenied)

	signedOut, _ := seededPanel(t, nil)
	assert.ErrorIs(t, signedOut.Authorize(), ErrAccessDenied)
}

func TestLoadAndStats(t *testing.T) {
	p, _ := seededPanel(t, adminProfile)
	require.NoError(t, p.Load(context.Background()))

	st, err := p.State()
	require.NoError(t, err)
	assert.Len(t, st.Users, 2)
	assert.Len(t, st.Posts, 2)
	assert.Equal(t, Stats{TotalUsers: 2, TotalPosts: 2, PendingVerifications: 1, ActiveAds: 1}, st.Stats)
}

func TestLoadFailureKeepsData(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	require.NoError(t, p.Load(context.Background()))
	repo.FailOn("ListAds", errors.New("boom"))

	require.Error(t, p.Load(context.Background()))
	st, err := p.State()
	require.NoError(t, err)
	assert.Len(t, st.Ads, 2)
	assert.NotEmpty(t, st.Error)
}

func TestUpdateUserRole(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))

	require.NoError(t, p.UpdateUserRole(ctx, "alice", database.RoleVerified))
	stored, _ := repo.Profile("alice")
	assert.Equal(t, database.RoleVerified, stored.Role)

	st, _ := p.State()
	for _, u := range st.Users {
		if u.ID == "alice" {
			assert.Equal(t, database.RoleVerified, u.Role)
		}
	}

	err := p.UpdateUserRole(ctx, "alice", "superuser")
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))
}

func TestToggleUserVerification(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))

	require.NoError(t, p.ToggleUserVerification(ctx, "alice"))
	stored, _ := repo.Profile("alice")
	assert.True(t, stored.IsVerified)

	require.NoError(t, p.ToggleUserVerification(ctx, "alice"))
	stored, _ = repo.Profile("alice")
	assert.False(t, stored.IsVerified)
}

func TestResolveVerificationApproves(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))

	require.NoError(t, p.ResolveVerification(ctx, "vr1", database.VerificationApproved))
	stored, _ := repo.Profile("alice")
	assert.True(t, stored.IsVerified)
	assert.Equal(t, 0, p.Stats().PendingVerifications)
}

func TestResolveVerificationSecondWriteFails(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))
	repo.FailOn("UpdateProfile", errors.New("rls"))

	require.Error(t, p.ResolveVerification(ctx, "vr1", database.VerificationApproved))
	st, _ := p.State()
	assert.Equal(t, database.VerificationApproved, st.Verifications[0].Status, "status write stands on its own")
	stored, _ := repo.Profile("alice")
	assert.False(t, stored.IsVerified)
}

func TestRejectDoesNotTouchProfile(t *testing.T) {
	p, repo := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.ResolveVerification(ctx, "vr1", database.VerificationRejected))
	assert.Equal(t, 0, repo.Calls("UpdateProfile"))
}

func TestDeletePost(t *testing.T) {
	p, _ := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.DeletePost(ctx, "p1"))

	st, _ := p.State()
	require.Len(t, st.Posts, 1)
	assert.Equal(t, "p2", st.Posts[0].ID)
	assert.Equal(t, 1, st.Stats.TotalPosts)
}

func TestAds(t *testing.T) {
	p, _ := seededPanel(t, adminProfile)
	ctx := context.Background()
	require.NoError(t, p.Load(ctx))

	ad, err := p.CreateAd(ctx, AdForm{Title: " Sale ", LinkURL: "https://shop.example"})
	require.NoError(t, err)
	assert.True(t, ad.IsActive)
	assert.Equal(t, 2, p.Stats().ActiveAds)

	require.NoError(t, p.ToggleAd(ctx, "ad2"))
	assert.Equal(t, 3, p.Stats().ActiveAds)

	_, err = p.CreateAd(ctx, AdForm{Title: " "})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))
}

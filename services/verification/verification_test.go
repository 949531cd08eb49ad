package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
)

type identity struct {
	id      string
	profile *database.Profile
}

func (i identity) CurrentUserID() string             { return i.id }
func (i identity) CurrentProfile() *database.Profile { return i.profile }

func newView(repo *database.MockRepository, p *database.Profile) *View {
	v := New(repo, identity{id: "me", profile: p}, nil)
	v.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return v
}

func TestBlankProfessionRejectedBeforeRequest(t *testing.T) {
	repo := database.NewMockRepository()
	v := newView(repo, &database.Profile{ID: "me", Role: database.RoleNormal})

	_, err := v.Submit(context.Background(), Form{Plan: "monthly", Profession: "   ", Reason: "press"})
	require.Error(t, err)
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))
	assert.Equal(t, 0, repo.TotalCalls())
}

func TestSubmitValidation(t *testing.T) {
	repo := database.NewMockRepository()
	v := newView(repo, &database.Profile{ID: "me"})

	_, err := v.Submit(context.Background(), Form{Plan: "monthly", Profession: "writer"})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))

	_, err = v.Submit(context.Background(), Form{Plan: "weekly", Profession: "writer", Reason: "press"})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))
	assert.Equal(t, 0, repo.TotalCalls())
}

func TestSubmit(t *testing.T) {
	repo := database.NewMockRepository()
	v := newView(repo, &database.Profile{ID: "me"})
	ctx := context.Background()
	require.NoError(t, v.Load(ctx))
	assert.Equal(t, StatusNone, v.Status())

	req, err := v.Submit(ctx, Form{Plan: "yearly", Profession: " journalist ", Reason: " public figure "})
	require.NoError(t, err)
	assert.Equal(t, database.VerificationPending, req.Status)
	assert.Equal(t, "journalist", req.Profession)
	assert.Equal(t, database.PaymentInfo{
		Plan:          "yearly",
		Amount:        99.99,
		Currency:      "USD",
		PaymentMethod: "stripe",
		TransactionID: "tx_1700000000123",
		Status:        "completed",
	}, req.PaymentInfo)

	assert.Equal(t, StatusPending, v.Status())

	_, err = v.Submit(ctx, Form{Plan: "monthly", Profession: "x", Reason: "y"})
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeConflict))
	assert.Equal(t, 1, repo.Calls("CreateVerificationRequest"))
}

func TestStatus(t *testing.T) {
	repo := database.NewMockRepository()
	repo.SeedVerification(database.VerificationRequest{UserID: "me", Status: database.VerificationRejected})
	v := newView(repo, &database.Profile{ID: "me"})
	require.NoError(t, v.Load(context.Background()))
	assert.Equal(t, StatusRejected, v.Status())

	verified := newView(repo, &database.Profile{ID: "me", IsVerified: true})
	require.NoError(t, verified.Load(context.Background()))
	assert.Equal(t, StatusVerified, verified.Status())
}

func TestPlans(t *testing.T) {
	p, ok := LookupPlan("monthly")
	require.True(t, ok)
	assert.Equal(t, 9.99, p.Price)
	assert.Len(t, Plans(), 2)
}

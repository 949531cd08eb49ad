// Package verification backs the paid verification page.
package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

// Plan is a purchasable verification plan.
type Plan struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}

var plans = []Plan{
	{ID: "monthly", Name: "Monthly", Price: 9.99, Currency: "USD", Interval: "month"},
	{ID: "yearly", Name: "Yearly", Price: 99.99, Currency: "USD", Interval: "year"},
}

// Plans lists the available plans.
func Plans() []Plan { return append([]Plan(nil), plans...) }

// LookupPlan finds a plan by id.
func LookupPlan(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Status values shown to the user.
const (
	StatusNone     = "none"
	StatusPending  = "pending"
	StatusRejected = "rejected"
	StatusVerified = "verified"
)

type Store interface {
	LatestVerificationRequest(ctx context.Context, userID string) (*database.VerificationRequest, error)
	CreateVerificationRequest(ctx context.Context, req *database.NewVerificationRequest) (*database.VerificationRequest, error)
}

// Identity is the signed-in user. *session.Manager satisfies it.
type Identity interface {
	CurrentUserID() string
	CurrentProfile() *database.Profile
}

// Form is the application form.
type Form struct {
	Plan        string `json:"plan"`
	Profession  string `json:"profession"`
	Reason      string `json:"reason"`
	Website     string `json:"website"`
	SocialMedia string `json:"social_media"`
}

type State struct {
	Status  string                        `json:"status"`
	Request *database.VerificationRequest `json:"request,omitempty"`
	Plans   []Plan                        `json:"plans"`
	Loading bool                          `json:"loading"`
	Error   string                        `json:"error,omitempty"`
}

type View struct {
	*service.Base
	store    Store
	identity Identity
	log      *logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	request *database.VerificationRequest
}

func New(store Store, identity Identity, log *logging.Logger) *View {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &View{
		Base:     service.NewBase("verification"),
		store:    store,
		identity: identity,
		log:      log,
		now:      time.Now,
	}
}

// Load fetches the user's latest request, if any.
func (v *View) Load(ctx context.Context) error {
	self := v.identity.CurrentUserID()
	if self == "" {
		err := svcerrors.Unauthorized("sign in to request verification")
		v.SetErr(err)
		return err
	}
	gen := v.Begin()
	req, err := v.store.LatestVerificationRequest(ctx, self)
	metrics.RecordGatewayCall("verification.latest", err)
	if database.IsNotFound(err) {
		req, err = nil, nil
	}
	if err != nil {
		v.log.WithContext(ctx).WithError(err).Warn("load verification request failed")
		v.Finish(gen, err)
		return err
	}
	if !v.Finish(gen, nil) {
		return nil
	}
	v.mu.Lock()
	v.request = req
	v.mu.Unlock()
	return nil
}

// Status derives what the page shows. A verified badge wins over any
// request state.
func (v *View) Status() string {
	if v.identity.CurrentProfile().HasVerifiedBadge() {
		return StatusVerified
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.request == nil {
		return StatusNone
	}
	switch v.request.Status {
	case database.VerificationPending:
		return StatusPending
	case database.VerificationRejected:
		return StatusRejected
	case database.VerificationApproved:
		return StatusVerified
	}
	return StatusNone
}

// Submit validates the form, records a simulated payment and files a
// pending request.
func (v *View) Submit(ctx context.Context, form Form) (*database.VerificationRequest, error) {
	self := v.identity.CurrentUserID()
	if self == "" {
		return nil, svcerrors.Unauthorized("sign in to request verification")
	}
	profession := strings.TrimSpace(form.Profession)
	reason := strings.TrimSpace(form.Reason)
	var verr error
	switch {
	case profession == "":
		verr = svcerrors.Validation("profession", "profession is required")
	case reason == "":
		verr = svcerrors.Validation("reason", "reason is required")
	}
	plan, ok := LookupPlan(form.Plan)
	if verr == nil && !ok {
		verr = svcerrors.Validation("plan", fmt.Sprintf("unknown plan %q", form.Plan))
	}
	if verr == nil && v.Status() == StatusPending {
		verr = svcerrors.Conflict("a verification request is already pending")
	}
	if verr != nil {
		v.SetErr(verr)
		return nil, verr
	}

	gen := v.Begin()
	req, err := v.store.CreateVerificationRequest(ctx, &database.NewVerificationRequest{
		UserID:      self,
		Status:      database.VerificationPending,
		PaymentInfo: simulatePayment(plan, v.now()),
		Reason:      reason,
		Profession:  profession,
		Website:     strings.TrimSpace(form.Website),
		SocialMedia: strings.TrimSpace(form.SocialMedia),
	})
	metrics.RecordGatewayCall("verification.create", err)
	if err != nil {
		v.log.WithContext(ctx).WithError(err).Warn("submit verification request failed")
		v.Finish(gen, err)
		return nil, err
	}
	v.Finish(gen, nil)

	_ = v.Load(ctx)
	return req, nil
}

// simulatePayment stands in for the payment provider; every charge succeeds.
func simulatePayment(plan Plan, at time.Time) database.PaymentInfo {
	return database.PaymentInfo{
		Plan:          plan.ID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		PaymentMethod: "stripe",
		TransactionID: fmt.Sprintf("tx_%d", at.UnixMilli()),
		Status:        "completed",
	}
}

func (v *View) State() State {
	s := State{Status: v.Status(), Plans: Plans()}
	v.mu.RLock()
	if v.request != nil {
		r := *v.request
		s.Request = &r
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
	v.request = nil
	v.mu.Unlock()
}

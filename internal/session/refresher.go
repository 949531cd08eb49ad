package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/renkonet/internal/logging"
)

// Refresher periodically refreshes the access token ahead of its expiry.
type Refresher struct {
	cron    *cron.Cron
	gateway *Gateway
	leeway  time.Duration
	timeout time.Duration
	log     *logging.Logger
}

// NewRefresher schedules a refresh check. schedule is a cron spec such as
// "@every 30s".
func NewRefresher(gw *Gateway, schedule string, leeway time.Duration, log *logging.Logger) (*Refresher, error) {
	if log == nil {
		log = logging.NewDiscard()
	}
	r := &Refresher{
		cron:    cron.New(),
		gateway: gw,
		leeway:  leeway,
		timeout: 30 * time.Second,
		log:     log,
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("schedule token refresh %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Refresher) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.log.WithError(err).Warn("token refresh failed")
	}
}

// RunOnce performs a single refresh check.
func (r *Refresher) RunOnce(ctx context.Context) (bool, error) {
	refreshed, err := r.gateway.RefreshIfNeeded(ctx, r.leeway)
	if refreshed {
		r.log.WithContext(ctx).Debug("access token refreshed")
	}
	return refreshed, err
}

func (r *Refresher) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running check to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

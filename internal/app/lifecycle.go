package app

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/internal/session"
	"github.com/R3E-Network/renkonet/services/common/service"
	"github.com/R3E-Network/renkonet/services/messages"
	"github.com/R3E-Network/renkonet/supabase/client"
)

// StatusView is implemented by every view.
type StatusView = service.StatusReporter

type refresherService struct {
	r *session.Refresher
}

func (s *refresherService) Name() string { return "token-refresher" }

func (s *refresherService) Start(ctx context.Context) error {
	s.r.Start()
	return nil
}

func (s *refresherService) Stop(ctx context.Context) error {
	s.r.Stop()
	return nil
}

const (
	resubscribeMinDelay = time.Second
	resubscribeMaxDelay = 30 * time.Second
)

// realtimeSocket is the connection side of *client.RealtimeClient.
type realtimeSocket interface {
	Connect(ctx context.Context) error
	Disconnect() error
	OnConnectionLost(fn func(error))
}

type authState interface {
	IsAuthenticated() bool
}

// inboxWatcher keeps a realtime subscription for the signed-in user's
// incoming messages. It follows auth events: subscribe on sign-in, drop the
// subscription and the socket on sign-out. When the socket fails it
// reconnects and subscribes again with backoff while the user stays signed in.
type inboxWatcher struct {
	inbox   *messages.Inbox
	gateway *session.Gateway
	session authState
	feed    messages.ChangeFeed
	socket  realtimeSocket
	log     *logging.Logger

	minDelay time.Duration
	maxDelay time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	sub         client.Subscription
	unsubscribe func()
}

func newInboxWatcher(inbox *messages.Inbox, gw *session.Gateway, sess authState, feed messages.ChangeFeed, socket realtimeSocket, log *logging.Logger) *inboxWatcher {
	w := &inboxWatcher{
		inbox:    inbox,
		gateway:  gw,
		session:  sess,
		feed:     feed,
		socket:   socket,
		log:      log,
		minDelay: resubscribeMinDelay,
		maxDelay: resubscribeMaxDelay,
	}
	if socket != nil {
		socket.OnConnectionLost(w.connectionLost)
	}
	return w
}

func (w *inboxWatcher) Name() string { return "inbox-watcher" }

func (w *inboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	w.unsubscribe = w.gateway.OnAuthStateChange(func(_ context.Context, ev session.Event) {
		switch ev.Type {
		case session.EventSignedIn:
			go w.subscribe()
		case session.EventSignedOut:
			w.drop()
		}
	})
	if w.session.IsAuthenticated() {
		go w.subscribe()
	}
	return nil
}

// subscribe reports whether a subscription is in place afterwards.
func (w *inboxWatcher) subscribe() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil || w.ctx.Err() != nil {
		return false
	}
	if w.sub != nil {
		return true
	}
	if w.socket != nil {
		if err := w.socket.Connect(w.ctx); err != nil {
			w.log.WithError(err).Warn("realtime connect failed")
			return false
		}
	}
	sub, err := w.inbox.Watch(w.ctx, w.feed)
	if err != nil {
		w.log.WithError(err).Warn("subscribe to incoming messages failed")
		return false
	}
	w.sub = sub
	return true
}

// connectionLost forgets the dead subscription and starts resubscribing.
func (w *inboxWatcher) connectionLost(err error) {
	w.log.WithError(err).Warn("realtime connection lost")
	w.mu.Lock()
	if w.sub != nil {
		_ = w.sub.Unsubscribe(context.Background())
		w.sub = nil
	}
	ctx := w.ctx
	w.mu.Unlock()
	if ctx != nil {
		go w.resubscribe(ctx)
	}
}

func (w *inboxWatcher) resubscribe(ctx context.Context) {
	delay := w.minDelay
	for ctx.Err() == nil && w.session.IsAuthenticated() {
		if w.subscribe() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

func (w *inboxWatcher) drop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dropLocked(context.Background())
}

func (w *inboxWatcher) dropLocked(ctx context.Context) {
	if w.sub != nil {
		if err := w.sub.Unsubscribe(ctx); err != nil {
			w.log.WithError(err).Debug("unsubscribe from messages failed")
		}
		w.sub = nil
	}
	if w.socket != nil {
		if err := w.socket.Disconnect(); err != nil {
			w.log.WithError(err).Debug("realtime disconnect failed")
		}
	}
}

func (w *inboxWatcher) Stop(ctx context.Context) error {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	w.dropLocked(ctx)
	return nil
}

package messages

import (
	"context"

	"github.com/R3E-Network/renkonet/supabase/client"
)

// ChangeFeed delivers database change events. *client.RealtimeClient
// satisfies it.
type ChangeFeed interface {
	SubscribeToPostgresChanges(ctx context.Context, cfg client.PostgresChangesConfig, handler client.EventHandler) (client.Subscription, error)
}

var _ ChangeFeed = (*client.RealtimeClient)(nil)

// Watch reloads the inbox whenever a message addressed to the user arrives.
// The open thread is reloaded too when the message comes from the selected
// counterpart. Reloads run on their own goroutine under ctx.
func (in *Inbox) Watch(ctx context.Context, feed ChangeFeed) (client.Subscription, error) {
	self, err := in.self()
	if err != nil {
		return nil, err
	}
	cfg := client.PostgresChangesConfig{
		Event:  "INSERT",
		Schema: "public",
		Table:  "messages",
		Filter: "receiver_id=eq." + self,
	}
	return feed.SubscribeToPostgresChanges(ctx, cfg, func(ev *client.RealtimeEvent) {
		sender, _ := ev.Record()["sender_id"].(string)
		go in.onIncoming(ctx, self, sender)
	})
}

func (in *Inbox) onIncoming(ctx context.Context, self, sender string) {
	if ctx.Err() != nil || in.identity.CurrentUserID() != self {
		return
	}
	if err := in.Load(ctx); err != nil {
		return
	}
	if sender != "" && in.Selected() == sender {
		if err := in.loadThread(ctx, self, sender, false); err != nil {
			in.log.WithContext(ctx).WithError(err).Debug("refresh thread after incoming message failed")
		}
	}
}

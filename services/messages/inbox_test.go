package messages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/supabase/client"
)

type staticIdentity string

func (s staticIdentity) CurrentUserID() string { return string(s) }

func seededInbox(t *testing.T) (*Inbox, *database.MockRepository) {
	t.Helper()
	repo := database.NewMockRepository()
	repo.SeedProfile(database.Profile{ID: "me", Username: "me"})
	repo.SeedProfile(database.Profile{ID: "bob", Username: "bob"})
	repo.SeedProfile(database.Profile{ID: "carol", Username: "carol"})
	repo.SeedMessage(database.Message{SenderID: "bob", ReceiverID: "me", Content: "hi"})
	repo.SeedMessage(database.Message{SenderID: "me", ReceiverID: "carol", Content: "yo"})
	repo.SeedMessage(database.Message{SenderID: "me", ReceiverID: "bob", Content: "hey bob"})
	return NewInbox(repo, staticIdentity("me"), nil), repo
}

func TestInboxLoad(t *testing.T) {
	in, _ := seededInbox(t)
	require.NoError(t, in.Load(context.Background()))

	convs := in.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "bob", convs[0].CounterpartID)
	assert.Equal(t, "hey bob", convs[0].LastMessage.Content)
	require.NotNil(t, convs[0].Counterpart)
	assert.Equal(t, "bob", convs[0].Counterpart.Username)
	assert.Equal(t, "carol", convs[1].CounterpartID)
	assert.False(t, in.Loading())
}

func TestInboxLoadFailureKeepsPreviousState(t *testing.T) {
	in, repo := seededInbox(t)
	require.NoError(t, in.Load(context.Background()))

	repo.FailOn("ListMessagesFor", errors.New("gateway down"))
	err := in.Load(context.Background())
	require.Error(t, err)
	assert.Len(t, in.Conversations(), 2)
	assert.False(t, in.Loading())
	assert.Equal(t, err, in.Err())
}

func TestInboxSelectLoadsThreadAscending(t *testing.T) {
	in, _ := seededInbox(t)
	require.NoError(t, in.Select(context.Background(), "bob"))

	thread := in.Thread()
	require.Len(t, thread, 2)
	assert.Equal(t, "hi", thread[0].Content)
	assert.Equal(t, "hey bob", thread[1].Content)
	assert.Equal(t, "bob", in.Selected())
}

func TestInboxSelectFailureKeepsOpenThread(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Select(ctx, "bob"))
	before := in.Thread()
	require.Len(t, before, 2)

	repo.FailOn("ListThread", errors.New("gateway down"))
	err := in.Select(ctx, "carol")
	require.Error(t, err)

	assert.Equal(t, "bob", in.Selected())
	assert.Equal(t, before, in.Thread())
	assert.Equal(t, err, in.Err())
	assert.False(t, in.Loading())
}

func TestInboxSendSucceedsWhenReloadFails(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Load(ctx))
	require.NoError(t, in.Select(ctx, "bob"))

	repo.FailOn("ListMessagesFor", errors.New("reload down"))
	in.SetDraft("still there?")
	sent, err := in.Send(ctx)
	require.NoError(t, err)

	assert.NoError(t, in.Err())
	assert.False(t, in.Loading())
	convs := in.Conversations()
	require.NotEmpty(t, convs)
	assert.Equal(t, sent.ID, convs[0].LastMessage.ID)
	assert.Equal(t, "", in.Draft())
}

func TestInboxSendAppendsAndRegroups(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Load(ctx))
	require.NoError(t, in.Select(ctx, "carol"))

	in.SetDraft("  lunch?  ")
	sent, err := in.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lunch?", sent.Content)

	assert.Empty(t, in.Draft())
	thread := in.Thread()
	require.Len(t, thread, 2)
	assert.Equal(t, "lunch?", thread[1].Content)

	convs := in.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "carol", convs[0].CounterpartID)
	assert.Equal(t, "lunch?", convs[0].LastMessage.Content)
	assert.Equal(t, 1, repo.Calls("CreateMessage"))
}

func TestInboxSendValidation(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()

	in.SetDraft("hello")
	_, err := in.Send(ctx)
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))

	require.NoError(t, in.Select(ctx, "bob"))
	in.SetDraft("   ")
	_, err = in.Send(ctx)
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeValidation))
	assert.Equal(t, 0, repo.Calls("CreateMessage"))
}

func TestInboxSendFailureKeepsDraftAndThread(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Select(ctx, "bob"))
	before := in.Thread()

	repo.FailOn("CreateMessage", errors.New("timeout"))
	in.SetDraft("are you there?")
	_, err := in.Send(ctx)
	require.Error(t, err)

	assert.Equal(t, "are you there?", in.Draft())
	assert.Equal(t, before, in.Thread())
	assert.Equal(t, 1, repo.Calls("CreateMessage"), "sends are not retried")
}

func TestInboxRequiresIdentity(t *testing.T) {
	in := NewInbox(database.NewMockRepository(), staticIdentity(""), nil)
	err := in.Load(context.Background())
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeUnauthorized))
}

func TestInboxResultsDroppedAfterUnmount(t *testing.T) {
	in, _ := seededInbox(t)
	in.Unmount()
	require.NoError(t, in.Load(context.Background()))
	assert.Empty(t, in.Conversations())
}

func TestInboxReset(t *testing.T) {
	in, _ := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Load(ctx))
	require.NoError(t, in.Select(ctx, "bob"))
	in.SetDraft("x")

	in.Reset()
	st := in.State()
	assert.Empty(t, st.Conversations)
	assert.Empty(t, st.Thread)
	assert.Empty(t, st.Selected)
	assert.Empty(t, st.Draft)
}

type fakeFeed struct {
	mu      sync.Mutex
	cfg     client.PostgresChangesConfig
	handler client.EventHandler
}

type fakeSub struct{}

func (fakeSub) Unsubscribe(context.Context) error { return nil }

func (f *fakeFeed) SubscribeToPostgresChanges(ctx context.Context, cfg client.PostgresChangesConfig, h client.EventHandler) (client.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.handler = h
	return fakeSub{}, nil
}

func TestInboxWatchReloadsOnIncoming(t *testing.T) {
	in, repo := seededInbox(t)
	ctx := context.Background()
	require.NoError(t, in.Select(ctx, "bob"))

	feed := &fakeFeed{}
	sub, err := in.Watch(ctx, feed)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "receiver_id=eq.me", feed.cfg.Filter)
	assert.Equal(t, "INSERT", feed.cfg.Event)

	repo.SeedMessage(database.Message{SenderID: "bob", ReceiverID: "me", Content: "ping"})
	feed.handler(&client.RealtimeEvent{Payload: map[string]any{
		"data": map[string]any{"type": "INSERT", "record": map[string]any{"sender_id": "bob"}},
	}})

	require.Eventually(t, func() bool {
		th := in.Thread()
		return len(th) == 3 && th[2].Content == "ping"
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		convs := in.Conversations()
		return len(convs) == 2 && convs[0].LastMessage.Content == "ping"
	}, time.Second, 10*time.Millisecond)
}

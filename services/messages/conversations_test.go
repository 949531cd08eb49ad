package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/database"
)

func msg(id, from, to string, at time.Time) database.Message {
	return database.Message{ID: id, SenderID: from, ReceiverID: to, Content: id, CreatedAt: at}
}

func TestGroupConversations(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []database.Message{
		msg("m5", "bob", "me", base.Add(5*time.Minute)),
		msg("m4", "me", "carol", base.Add(4*time.Minute)),
		msg("m3", "me", "bob", base.Add(3*time.Minute)),
		msg("m2", "carol", "me", base.Add(2*time.Minute)),
		msg("m1", "dave", "me", base.Add(time.Minute)),
	}

	convs := GroupConversations("me", msgs)
	require.Len(t, convs, 3)

	assert.Equal(t, "bob", convs[0].CounterpartID)
	assert.Equal(t, "m5", convs[0].LastMessage.ID)
	assert.Equal(t, "carol", convs[1].CounterpartID)
	assert.Equal(t, "m4", convs[1].LastMessage.ID)
	assert.Equal(t, "dave", convs[2].CounterpartID)
	for _, c := range convs {
		assert.Zero(t, c.UnreadCount)
	}
}

func TestGroupConversationsOneEntryPerCounterpart(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var msgs []database.Message
	for i := 10; i > 0; i-- {
		other := []string{"a", "b", "c"}[i%3]
		if i%2 == 0 {
			msgs = append(msgs, msg("m", "me", other, base.Add(time.Duration(i)*time.Minute)))
		} else {
			msgs = append(msgs, msg("m", other, "me", base.Add(time.Duration(i)*time.Minute)))
		}
	}

	convs := GroupConversations("me", msgs)
	seen := map[string]bool{}
	for _, c := range convs {
		assert.False(t, seen[c.CounterpartID], "duplicate conversation for %s", c.CounterpartID)
		seen[c.CounterpartID] = true
		for _, m := range msgs {
			id, _ := Counterpart("me", m)
			if id == c.CounterpartID {
				assert.False(t, m.CreatedAt.After(c.LastMessage.CreatedAt))
			}
		}
	}
	assert.Len(t, convs, 3)
}

func TestGroupConversationsEmpty(t *testing.T) {
	convs := GroupConversations("me", nil)
	assert.NotNil(t, convs)
	assert.Empty(t, convs)
}

func TestCounterpartSnippet(t *testing.T) {
	m := database.Message{
		SenderID:   "me",
		ReceiverID: "bob",
		Sender:     &database.ProfileSnippet{Username: "me"},
		Receiver:   &database.ProfileSnippet{Username: "bob"},
	}
	id, snip := Counterpart("me", m)
	assert.Equal(t, "bob", id)
	assert.Equal(t, "bob", snip.Username)

	id, snip = Counterpart("bob", m)
	assert.Equal(t, "me", id)
	assert.Equal(t, "me", snip.Username)
}

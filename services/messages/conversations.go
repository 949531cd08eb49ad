// Package messages groups direct messages into conversations and backs the
// inbox view.
package messages

import "github.com/R3E-Network/renkonet/internal/database"

// Conversation is derived from messages: one per counterpart.
type Conversation struct {
	CounterpartID string                   `json:"counterpart_id"`
	Counterpart   *database.ProfileSnippet `json:"counterpart,omitempty"`
	LastMessage   database.Message         `json:"last_message"`
	UnreadCount   int                      `json:"unread_count"`
}

// Counterpart returns the other participant of msg from self's point of view.
func Counterpart(self string, msg database.Message) (string, *database.ProfileSnippet) {
	if msg.SenderID == self {
		return msg.ReceiverID, msg.Receiver
	}
	return msg.SenderID, msg.Sender
}

// GroupConversations folds messages, newest first, into one Conversation per
// counterpart. The first message seen for a counterpart is its last message,
// and conversations keep the order in which they first appear.
// UnreadCount is not tracked and is always zero.
func GroupConversations(self string, msgs []database.Message) []Conversation {
	out := make([]Conversation, 0)
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		id, snippet := Counterpart(self, msg)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Conversation{
			CounterpartID: id,
			Counterpart:   snippet,
			LastMessage:   msg,
		})
	}
	return out
}

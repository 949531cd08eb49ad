package database

import (
	"context"
	"fmt"
	"strings"
)

// ListMessagesFor returns every message userID sent or received, newest first.
func (r *Repository) ListMessagesFor(ctx context.Context, userID string) ([]Message, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("messages").Select(messageSelect).
		Or("sender_id.eq."+userID, "receiver_id.eq."+userID).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, classify("list messages", err)
	}
	return decodeRows[Message]("list messages", resp)
}

// ListThread returns the messages between two users in both directions,
// oldest first.
func (r *Repository) ListThread(ctx context.Context, userID, otherID string) ([]Message, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requireID("counterpart id", otherID); err != nil {
		return nil, err
	}
	resp, err := r.client.From("messages").Select(messageSelect).
		Or(
			fmt.Sprintf("and(sender_id.eq.%s,receiver_id.eq.%s)", userID, otherID),
			fmt.Sprintf("and(sender_id.eq.%s,receiver_id.eq.%s)", otherID, userID),
		).
		Order("created_at", true).
		Execute(ctx)
	if err != nil {
		return nil, classify("list thread", err)
	}
	return decodeRows[Message]("list thread", resp)
}

// CreateMessage inserts a message and returns the stored row.
func (r *Repository) CreateMessage(ctx context.Context, m *NewMessage) (*Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: message cannot be nil", ErrInvalidInput)
	}
	if err := requireID("sender id", m.SenderID); err != nil {
		return nil, err
	}
	if err := requireID("receiver id", m.ReceiverID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(m.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}
	resp, err := r.client.From("messages").Select(messageSelect).ExecuteInsert(ctx, m)
	if err != nil {
		return nil, classify("create message", err)
	}
	return decodeOne[Message]("create message", "message", "", resp)
}

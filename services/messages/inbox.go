package messages

import (
	"context"
	"strings"
	"sync"

	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/services/common/service"
)

// Store is the data the inbox reads and writes.
type Store interface {
	ListMessagesFor(ctx context.Context, userID string) ([]database.Message, error)
	ListThread(ctx context.Context, userID, otherID string) ([]database.Message, error)
	CreateMessage(ctx context.Context, m *database.NewMessage) (*database.Message, error)
}

// Identity yields the signed-in user's id, or "".
type Identity interface {
	CurrentUserID() string
}

// State is a copy of the inbox for rendering.
type State struct {
	Conversations []Conversation     `json:"conversations"`
	Selected      string             `json:"selected,omitempty"`
	Thread        []database.Message `json:"thread"`
	Draft         string             `json:"draft"`
	Sending       bool               `json:"sending"`
	Loading       bool               `json:"loading"`
	Error         string             `json:"error,omitempty"`
}

// Inbox is the messages view: the conversation list, the open thread and
// the compose draft.
type Inbox struct {
	*service.Base
	store    Store
	identity Identity
	log      *logging.Logger

	mu            sync.RWMutex
	messages      []database.Message
	conversations []Conversation
	selected      string
	thread        []database.Message
	draft         string
	sending       bool
}

func NewInbox(store Store, identity Identity, log *logging.Logger) *Inbox {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Inbox{
		Base:     service.NewBase("messages"),
		store:    store,
		identity: identity,
		log:      log,
	}
}

func (in *Inbox) self() (string, error) {
	id := in.identity.CurrentUserID()
	if id == "" {
		return "", svcerrors.Unauthorized("sign in to use messages")
	}
	return id, nil
}

// Load fetches every message involving the user and regroups them.
// On failure the previous conversations are kept.
func (in *Inbox) Load(ctx context.Context) error {
	self, err := in.self()
	if err != nil {
		in.SetErr(err)
		return err
	}
	return in.loadConversations(ctx, self, true)
}

// loadConversations refetches the conversation list. With record unset a
// failure is logged but does not become the view error.
func (in *Inbox) loadConversations(ctx context.Context, self string, record bool) error {
	gen := in.Begin()
	msgs, err := in.store.ListMessagesFor(ctx, self)
	metrics.RecordGatewayCall("messages.list", err)
	if err != nil {
		in.log.WithContext(ctx).WithError(err).Warn("load conversations failed")
		if record {
			in.Finish(gen, err)
		} else {
			in.Done(gen)
		}
		return err
	}
	if !in.Finish(gen, nil) {
		return nil
	}

	convs := GroupConversations(self, msgs)
	in.mu.Lock()
	in.messages = msgs
	in.conversations = convs
	in.mu.Unlock()
	return nil
}

// Select opens the thread with counterpartID, oldest message first.
func (in *Inbox) Select(ctx context.Context, counterpartID string) error {
	self, err := in.self()
	if err != nil {
		in.SetErr(err)
		return err
	}
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		err := svcerrors.Validation("counterpart_id", "counterpart is required")
		in.SetErr(err)
		return err
	}

	return in.loadThread(ctx, self, counterpartID, true)
}

// loadThread fetches the thread with counterpartID. With open set the
// selection switches to counterpartID once the fetch succeeded; otherwise
// the result only replaces the thread if it is still the selected one.
// A failed fetch leaves selection and thread as they were.
func (in *Inbox) loadThread(ctx context.Context, self, counterpartID string, open bool) error {
	gen := in.Begin()
	thread, err := in.store.ListThread(ctx, self, counterpartID)
	metrics.RecordGatewayCall("messages.thread", err)
	if err != nil {
		in.log.WithContext(ctx).WithError(err).WithField("counterpart_id", counterpartID).Warn("load thread failed")
		in.Finish(gen, err)
		return err
	}
	if !in.Finish(gen, nil) {
		return nil
	}

	in.mu.Lock()
	if open {
		in.selected = counterpartID
	}
	if in.selected == counterpartID {
		in.thread = thread
	}
	in.mu.Unlock()
	return nil
}

func (in *Inbox) SetDraft(text string) {
	in.mu.Lock()
	in.draft = text
	in.mu.Unlock()
}

// Send posts the draft to the selected counterpart. On success the message
// is appended to the thread, the draft is cleared and the conversations are
// regrouped locally and then reloaded. On failure draft and thread are left
// as they were. Sends are never retried.
func (in *Inbox) Send(ctx context.Context) (*database.Message, error) {
	self, err := in.self()
	if err != nil {
		in.SetErr(err)
		return nil, err
	}

	in.mu.Lock()
	content := strings.TrimSpace(in.draft)
	to := in.selected
	switch {
	case in.sending:
		in.mu.Unlock()
		return nil, svcerrors.Busy("a message is already being sent")
	case to == "":
		in.mu.Unlock()
		err := svcerrors.Validation("receiver_id", "select a conversation first")
		in.SetErr(err)
		return nil, err
	case content == "":
		in.mu.Unlock()
		err := svcerrors.Validation("content", "message cannot be empty")
		in.SetErr(err)
		return nil, err
	}
	in.sending = true
	in.mu.Unlock()

	gen := in.Begin()
	msg, err := in.store.CreateMessage(ctx, &database.NewMessage{
		SenderID:   self,
		ReceiverID: to,
		Content:    content,
	})
	metrics.RecordGatewayCall("messages.send", err)

	in.mu.Lock()
	in.sending = false
	in.mu.Unlock()

	if err != nil {
		in.log.WithContext(ctx).WithError(err).WithField("receiver_id", to).Warn("send message failed")
		in.Finish(gen, err)
		return nil, err
	}
	metrics.RecordMessageSent()
	if !in.Finish(gen, nil) {
		return msg, nil
	}

	in.mu.Lock()
	if in.selected == to {
		in.thread = append(in.thread, *msg)
	}
	in.draft = ""
	in.messages = append([]database.Message{*msg}, in.messages...)
	in.conversations = GroupConversations(self, in.messages)
	in.mu.Unlock()

	// The message is stored; a failed reload keeps the locally regrouped
	// list and is only logged.
	_ = in.loadConversations(ctx, self, false)
	return msg, nil
}

// Reset drops everything, e.g. on sign-out.
func (in *Inbox) Reset() {
	in.ResetState()
	in.mu.Lock()
	in.messages = nil
	in.conversations = nil
	in.selected = ""
	in.thread = nil
	in.draft = ""
	in.sending = false
	in.mu.Unlock()
}

func (in *Inbox) Conversations() []Conversation {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]Conversation(nil), in.conversations...)
}

func (in *Inbox) Thread() []database.Message {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]database.Message(nil), in.thread...)
}

func (in *Inbox) Selected() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.selected
}

func (in *Inbox) Draft() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.draft
}

// State returns a copy for rendering.
func (in *Inbox) State() State {
	in.mu.RLock()
	s := State{
		Conversations: append([]Conversation{}, in.conversations...),
		Selected:      in.selected,
		Thread:        append([]database.Message{}, in.thread...),
		Draft:         in.draft,
		Sending:       in.sending,
	}
	in.mu.RUnlock()
	s.Loading = in.Loading()
	if err := in.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

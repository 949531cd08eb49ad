package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrRealtimeNotConnected is returned when subscribing before Connect.
var ErrRealtimeNotConnected = errors.New("realtime: not connected")

// RealtimeClient handles Supabase Realtime subscriptions over the Phoenix
// websocket protocol.
type RealtimeClient struct {
	mu          sync.RWMutex
	url         string
	tokenSource TokenSource
	conn        *websocket.Conn
	channels    map[string]*Channel
	handlers    map[string][]EventHandler
	done        chan struct{}
	ref         int
	lost        []func(error)
}

// EventHandler handles realtime events.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent represents a realtime event.
type RealtimeEvent struct {
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
	JoinRef string         `json:"join_ref,omitempty"`
}

// ChangeType returns INSERT, UPDATE or DELETE for postgres change events.
func (e *RealtimeEvent) ChangeType() string {
	if data, ok := e.Payload["data"].(map[string]any); ok {
		if t, ok := data["type"].(string); ok {
			return t
		}
	}
	if t, ok := e.Payload["type"].(string); ok {
		return t
	}
	return e.Event
}

// Record returns the new row of a postgres change event.
func (e *RealtimeEvent) Record() map[string]any {
	if data, ok := e.Payload["data"].(map[string]any); ok {
		if rec, ok := data["record"].(map[string]any); ok {
			return rec
		}
	}
	if rec, ok := e.Payload["record"].(map[string]any); ok {
		return rec
	}
	return nil
}

// Subscription is an active channel subscription.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// Channel represents a realtime channel.
type Channel struct {
	client  *RealtimeClient
	topic   string
	changes []PostgresChangesConfig
	joined  bool
	joinRef string
}

var _ Subscription = (*Channel)(nil)

// NewRealtimeClient creates a realtime client for a project URL.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := strings.TrimSuffix(supabaseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      wsURL,
		channels: make(map[string]*Channel),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
}

// SetTokenSource makes joins carry the user's access token so row-level
// security filters the change stream.
func (r *RealtimeClient) SetTokenSource(ts TokenSource) {
	r.mu.Lock()
	r.tokenSource = ts
	r.mu.Unlock()
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.handleMessages(conn, r.done)
	go r.heartbeat(r.done)

	return nil
}

// Connected reports whether the socket is open.
func (r *RealtimeClient) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil
}

// Disconnect closes the WebSocket connection.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	close(r.done)
	for _, ch := range r.channels {
		ch.joined = false
	}

	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.conn.Close()
	r.conn = nil
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// Channel returns or creates a channel.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}

	ch := &Channel{
		client: r,
		topic:  topic,
	}
	r.channels[topic] = ch
	return ch
}

func (r *RealtimeClient) nextRef() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

// Subscribe joins the channel.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if c.joined {
		return nil
	}
	if c.client.conn == nil {
		return ErrRealtimeNotConnected
	}

	ref := c.client.nextRef()
	c.joinRef = ref

	changes := make([]map[string]any, 0, len(c.changes))
	for _, pc := range c.changes {
		entry := map[string]any{"event": pc.Event, "schema": pc.Schema, "table": pc.Table}
		if pc.Filter != "" {
			entry["filter"] = pc.Filter
		}
		changes = append(changes, entry)
	}
	payload := map[string]any{
		"config": map[string]any{"postgres_changes": changes},
	}
	if c.client.tokenSource != nil {
		if tok := c.client.tokenSource(); tok != "" {
			payload["access_token"] = tok
		}
	}

	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  payload,
		"ref":      ref,
		"join_ref": ref,
	}

	if err := c.client.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	c.joined = true
	return nil
}

// Unsubscribe leaves the channel and drops its handlers.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	for key := range c.client.handlers {
		if strings.HasPrefix(key, c.topic+":") {
			delete(c.client.handlers, key)
		}
	}
	delete(c.client.channels, c.topic)

	if !c.joined || c.client.conn == nil {
		c.joined = false
		return nil
	}

	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      c.client.nextRef(),
		"join_ref": c.joinRef,
	}
	c.joined = false

	if err := c.client.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

// On registers an event handler.
func (c *Channel) On(event string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	key := c.topic + ":" + event
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

// OnInsert registers a handler for INSERT events.
func (c *Channel) OnInsert(handler EventHandler) *Channel {
	return c.On("INSERT", handler)
}

// OnUpdate registers a handler for UPDATE events.
func (c *Channel) OnUpdate(handler EventHandler) *Channel {
	return c.On("UPDATE", handler)
}

// OnDelete registers a handler for DELETE events.
func (c *Channel) OnDelete(handler EventHandler) *Channel {
	return c.On("DELETE", handler)
}

// OnAll registers a handler for all change events.
func (c *Channel) OnAll(handler EventHandler) *Channel {
	c.On("INSERT", handler)
	c.On("UPDATE", handler)
	c.On("DELETE", handler)
	return c
}

func (r *RealtimeClient) handleMessages(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			r.connectionLost(conn, err)
			return
		}

		var event RealtimeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		r.dispatchEvent(&event)
	}
}

// OnConnectionLost registers fn to run when the socket fails on its own.
// Channels are no longer joined at that point; callers reconnect and
// subscribe again. Disconnect does not trigger it.
func (r *RealtimeClient) OnConnectionLost(fn func(error)) {
	r.mu.Lock()
	r.lost = append(r.lost, fn)
	r.mu.Unlock()
}

func (r *RealtimeClient) connectionLost(conn *websocket.Conn, err error) {
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	close(r.done)
	for _, ch := range r.channels {
		ch.joined = false
	}
	hooks := make([]func(error), len(r.lost))
	copy(hooks, r.lost)
	r.mu.Unlock()

	conn.Close()
	for _, fn := range hooks {
		go fn(err)
	}
}

func (r *RealtimeClient) dispatchEvent(event *RealtimeEvent) {
	r.mu.RLock()
	key := event.Topic + ":" + event.ChangeType()
	handlers := append([]EventHandler(nil), r.handlers[key]...)
	r.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

func (r *RealtimeClient) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				msg := map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     r.nextRef(),
				}
				_ = r.conn.WriteJSON(msg)
			}
			r.mu.Unlock()
		}
	}
}

// =============================================================================
// Postgres Changes Subscription
// =============================================================================

// PostgresChangesConfig configures postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // Optional filter like "receiver_id=eq.<uuid>"
}

// SubscribeToPostgresChanges subscribes to postgres changes.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler EventHandler) (Subscription, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	ch := r.Channel(topic)
	r.mu.Lock()
	ch.changes = append(ch.changes, cfg)
	r.mu.Unlock()

	switch cfg.Event {
	case "*":
		ch.OnAll(handler)
	case "INSERT":
		ch.OnInsert(handler)
	case "UPDATE":
		ch.OnUpdate(handler)
	case "DELETE":
		ch.OnDelete(handler)
	default:
		return nil, fmt.Errorf("unsupported change event %q", cfg.Event)
	}

	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}

	return ch, nil
}

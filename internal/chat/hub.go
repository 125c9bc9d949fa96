package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// broadcastChannel is the Redis pub/sub channel every server instance
// publishes outbound frames to. Each instance delivers to its own local
// connections from its subscribe loop.
const broadcastChannel = "chat-events"

const offlineUpdateTimeout = 5 * time.Second

// Delivery scopes for outbound frames.
const (
	scopeAll  = "all"
	scopeRoom = "room"
	scopeUser = "user"
)

// envelope wraps an outbound frame with its delivery scope so it can travel
// through Redis between instances. Except carries a connection ID to skip
// (connection IDs are globally unique, so other instances just won't have
// it).
type envelope struct {
	Scope  string          `json:"scope"`
	Room   string          `json:"room,omitempty"`
	UserID int             `json:"userId,omitempty"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Hub coordinates presence and room messaging: it owns the connection
// registry, typing tracker, and room membership tables, routes messages
// through the Store (persist first, broadcast second), and fans frames out
// to live connections, via Redis when running distributed.
type Hub struct {
	registry *Registry
	typing   *TypingTracker
	rooms    *Membership
	store    Store
	redis    *redis.Client // nil means single-node: deliver locally

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub builds a hub around the persistence collaborator. A nil Redis
// client is valid and keeps all fan-out in-process.
func NewHub(redisClient *redis.Client, store Store) *Hub {
	return &Hub{
		registry: NewRegistry(),
		typing:   NewTypingTracker(),
		rooms:    NewMembership(),
		store:    store,
		redis:    redisClient,
		clients:  make(map[string]*Client),
	}
}

// SubscribeToRedis consumes envelopes published by any instance (including
// this one) and delivers them to local connections. Run it in its own
// goroutine; it returns when ctx is done.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, broadcastChannel)
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("dropping malformed envelope from redis: %v", err)
			continue
		}
		h.deliver(&env)
	}
}

// Attach adds a raw, not-yet-identified connection to the transport table.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

// Detach removes a connection and, if it had identified, tears down all of
// its state: typing entry, room subscriptions, registry session, persisted
// online status, presence broadcast. Teardown is unconditional and never
// fails outward; a broken store only gets logged.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	if room, ok := h.typing.Clear(c.ID); ok {
		h.broadcastTypingUsers(room)
	}
	h.rooms.LeaveAll(c.ID)

	sess, err := h.registry.Unregister(c.ID)
	if err != nil {
		return // never identified, nothing to announce
	}

	ctx, cancel := context.WithTimeout(context.Background(), offlineUpdateTimeout)
	defer cancel()
	if err := h.store.SetOnline(ctx, sess.UserID, false); err != nil {
		log.Printf("offline status update failed for user %d: %v", sess.UserID, err)
	}

	h.publish(&envelope{Scope: scopeAll, Frame: newFrame(EventUserLeft, PresenceEvent{
		Username:  sess.Username,
		UserID:    sess.UserID,
		Timestamp: time.Now().UTC(),
	})})
	h.publish(&envelope{Scope: scopeAll, Frame: newFrame(EventUserList, h.registry.ListOnline())})
}

// Identify registers the connection's verified identity, auto-joins it to
// the general room, and broadcasts presence. The caller must not identify a
// connection twice.
//
// The user_list snapshot is rendered from this instance's registry, so with
// multiple instances behind Redis each node announces only the users
// connected to it. TODO: back the snapshot with a shared Redis set so
// user_list spans instances.
func (h *Hub) Identify(ctx context.Context, connID string, userID int, username string) error {
	if _, err := h.registry.Register(connID, userID, username); err != nil {
		return err
	}
	h.rooms.Join(connID, DefaultRoom)

	if err := h.store.SetOnline(ctx, userID, true); err != nil {
		log.Printf("online status update failed for user %d: %v", userID, err)
	}

	h.publish(&envelope{Scope: scopeAll, Frame: newFrame(EventUserList, h.registry.ListOnline())})
	h.publish(&envelope{Scope: scopeAll, Except: connID, Frame: newFrame(EventUserJoined, PresenceEvent{
		Username:  username,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})})
	return nil
}

// JoinRoom subscribes a connection to a room channel and acks the requester
// only. Idempotent: a second join just re-acks.
func (h *Hub) JoinRoom(connID, room string) error {
	if _, ok := h.registry.Get(connID); !ok {
		return ErrUnknownConnection
	}
	h.rooms.Join(connID, room)
	h.sendToConn(connID, newFrame(EventRoomJoined, room))
	return nil
}

// LeaveRoom unsubscribes a connection from a room channel and acks the
// requester only. Idempotent.
func (h *Hub) LeaveRoom(connID, room string) error {
	if _, ok := h.registry.Get(connID); !ok {
		return ErrUnknownConnection
	}
	h.rooms.Leave(connID, room)
	h.sendToConn(connID, newFrame(EventRoomLeft, room))
	return nil
}

// SendRoomMessage persists a message and then broadcasts it to every
// connection subscribed to the room. If persistence fails nothing is
// broadcast; the error goes back to the caller so only the sender hears
// about it.
func (h *Hub) SendRoomMessage(ctx context.Context, connID, content, room string) error {
	sess, ok := h.registry.Get(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if room == "" {
		room = DefaultRoom
	}

	msg, err := h.store.CreateMessage(ctx, sess.UserID, content, room, false, 0)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	h.publish(&envelope{Scope: scopeRoom, Room: room, Frame: newFrame(EventReceiveMessage, msg)})
	return nil
}

// SendPrivateMessage persists a private message and then delivers it to
// every live connection of both the sender and the recipient, exactly once
// per connection. The recipient being offline is fine: the message is
// durable and delivery is best-effort.
func (h *Hub) SendPrivateMessage(ctx context.Context, connID string, recipientID int, content string) error {
	sess, ok := h.registry.Get(connID)
	if !ok {
		return ErrUnknownConnection
	}

	msg, err := h.store.CreateMessage(ctx, sess.UserID, content, "", true, recipientID)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	frame := newFrame(EventReceiveMessage, msg)
	h.publish(&envelope{Scope: scopeUser, UserID: recipientID, Frame: frame})
	if recipientID != sess.UserID {
		h.publish(&envelope{Scope: scopeUser, UserID: sess.UserID, Frame: frame})
	}
	return nil
}

// SetTyping updates the typing tracker and broadcasts the affected room's
// typing list. When the entry moves between rooms, both rooms get notified.
func (h *Hub) SetTyping(connID, room string, isTyping bool) error {
	sess, ok := h.registry.Get(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if room == "" {
		room = DefaultRoom
	}

	if isTyping {
		prev, replaced := h.typing.Set(connID, sess.Username, room)
		if replaced && prev != room {
			h.broadcastTypingUsers(prev)
		}
	} else {
		prev, had := h.typing.Clear(connID)
		if had && prev != room {
			h.broadcastTypingUsers(prev)
		}
	}
	h.broadcastTypingUsers(room)
	return nil
}

func (h *Hub) broadcastTypingUsers(room string) {
	h.publish(&envelope{Scope: scopeRoom, Room: room, Frame: newFrame(EventTypingUsers, h.typing.UsersIn(room))})
}

// publish routes an envelope through Redis when distributed, falling back to
// local delivery if the publish fails so a persisted message always gets a
// broadcast attempt.
func (h *Hub) publish(env *envelope) {
	if h.redis != nil {
		payload, err := json.Marshal(env)
		if err != nil {
			log.Printf("envelope marshal failed, delivering locally: %v", err)
			h.deliver(env)
			return
		}
		if err := h.redis.Publish(context.Background(), broadcastChannel, payload).Err(); err != nil {
			log.Printf("redis publish failed, delivering locally: %v", err)
			h.deliver(env)
		}
		return
	}
	h.deliver(env)
}

// deliver resolves an envelope's scope against local state and writes the
// frame to each target. A target that disconnected mid-flight is skipped,
// not an error.
func (h *Hub) deliver(env *envelope) {
	var targets []string
	switch env.Scope {
	case scopeAll:
		targets = h.connIDs()
	case scopeRoom:
		targets = h.rooms.Members(env.Room)
	case scopeUser:
		targets = h.registry.ConnectionsForUser(env.UserID)
	default:
		log.Printf("dropping envelope with unknown scope %q", env.Scope)
		return
	}

	for _, connID := range targets {
		if connID == env.Except {
			continue
		}
		h.sendToConn(connID, env.Frame)
	}
}

func (h *Hub) connIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) sendToConn(connID string, frame []byte) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.Send <- frame:
	default:
		log.Printf("dropping frame for slow connection %s", connID)
	}
}

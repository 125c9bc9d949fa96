package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socketchat/internal/chat"
	"socketchat/internal/message"
)

// fakeStore satisfies chat.Store in memory. Hub tests run with a nil Redis
// client, so every broadcast is delivered synchronously and assertions can
// drain the Send channels right after the call.
type fakeStore struct {
	mu      sync.Mutex
	failure error
	names   map[int]string
	created []*message.Message
	online  map[int]bool
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{names: map[int]string{}, online: map[int]bool{}}
}

func (s *fakeStore) CreateMessage(_ context.Context, senderID int, content, room string, isPrivate bool, recipientID int) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return nil, s.failure
	}
	if room == "" && !isPrivate {
		room = "general"
	}
	s.nextID++
	m := &message.Message{
		ID:         s.nextID,
		SenderID:   senderID,
		SenderName: s.names[senderID],
		Content:    content,
		Room:       room,
		IsPrivate:  isPrivate,
		CreatedAt:  time.Now(),
	}
	if isPrivate {
		rid := recipientID
		m.RecipientID = &rid
	}
	s.created = append(s.created, m)
	return m, nil
}

func (s *fakeStore) SetOnline(_ context.Context, userID int, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = online
	return nil
}

func attachClient(h *chat.Hub, id string) *chat.Client {
	c := &chat.Client{ID: id, Hub: h, Send: make(chan []byte, 64)}
	h.Attach(c)
	return c
}

func identify(t *testing.T, h *chat.Hub, c *chat.Client, userID int, username string) {
	t.Helper()
	require.NoError(t, h.Identify(context.Background(), c.ID, userID, username))
}

func drainFrames(t *testing.T, c *chat.Client) []chat.Frame {
	t.Helper()
	var frames []chat.Frame
	for {
		select {
		case raw := <-c.Send:
			var f chat.Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func framesByEvent(frames []chat.Frame, event string) []chat.Frame {
	var matched []chat.Frame
	for _, f := range frames {
		if f.Event == event {
			matched = append(matched, f)
		}
	}
	return matched
}

func drainAll(t *testing.T, clients ...*chat.Client) {
	t.Helper()
	for _, c := range clients {
		drainFrames(t, c)
	}
}

func decodeData[T any](t *testing.T, f chat.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func TestIdentifyBroadcastsPresence(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")

	identify(t, hub, c1, 1, "alice")

	frames := drainFrames(t, c1)
	lists := framesByEvent(frames, chat.EventUserList)
	require.Len(t, lists, 1)
	assert.Equal(t, []chat.UserInfo{{UserID: 1, Username: "alice"}}, decodeData[[]chat.UserInfo](t, lists[0]))
	assert.Empty(t, framesByEvent(frames, chat.EventUserJoined), "the joiner already knows it joined")

	frames = drainFrames(t, c2)
	require.Len(t, framesByEvent(frames, chat.EventUserList), 1)
	joined := framesByEvent(frames, chat.EventUserJoined)
	require.Len(t, joined, 1)
	evt := decodeData[chat.PresenceEvent](t, joined[0])
	assert.Equal(t, "alice", evt.Username)
	assert.Equal(t, 1, evt.UserID)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestIdentifyTwiceFails(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")

	identify(t, hub, c1, 1, "alice")
	err := hub.Identify(context.Background(), c1.ID, 1, "alice")
	assert.ErrorIs(t, err, chat.ErrAlreadyRegistered)
}

func TestIdentifySetsOnlineStatus(t *testing.T) {
	store := newFakeStore()
	hub := chat.NewHub(nil, store)
	c1 := attachClient(hub, "c1")

	identify(t, hub, c1, 1, "alice")
	assert.True(t, store.online[1])

	hub.Detach(c1)
	assert.False(t, store.online[1])
}

func TestRoomMessageRouting(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	store.names[2] = "bob"
	store.names[3] = "charlie"
	hub := chat.NewHub(nil, store)

	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	c3 := attachClient(hub, "c3")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")
	identify(t, hub, c3, 3, "charlie") // stays in general only

	require.NoError(t, hub.JoinRoom(c1.ID, "tech"))
	require.NoError(t, hub.JoinRoom(c2.ID, "tech"))
	drainAll(t, c1, c2, c3)

	require.NoError(t, hub.SendRoomMessage(context.Background(), c1.ID, "hi", "tech"))

	for _, c := range []*chat.Client{c1, c2} {
		received := framesByEvent(drainFrames(t, c), chat.EventReceiveMessage)
		require.Len(t, received, 1, "every tech subscriber gets the message once")
		msg := decodeData[message.Message](t, received[0])
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "alice", msg.SenderName)
		assert.Equal(t, "tech", msg.Room)
	}

	assert.Empty(t, framesByEvent(drainFrames(t, c3), chat.EventReceiveMessage),
		"connections outside the room receive nothing")
}

func TestRoomMessageDefaultsToGeneral(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	hub := chat.NewHub(nil, store)

	c1 := attachClient(hub, "c1")
	identify(t, hub, c1, 1, "alice")
	drainAll(t, c1)

	require.NoError(t, hub.SendRoomMessage(context.Background(), c1.ID, "hello", ""))

	received := framesByEvent(drainFrames(t, c1), chat.EventReceiveMessage)
	require.Len(t, received, 1, "every session auto-joins general")
	assert.Equal(t, "general", decodeData[message.Message](t, received[0]).Room)
}

func TestPrivateMessageMultiTab(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	store.names[2] = "bob"
	hub := chat.NewHub(nil, store)

	a1 := attachClient(hub, "a1")
	a2 := attachClient(hub, "a2")
	b1 := attachClient(hub, "b1")
	b2 := attachClient(hub, "b2")
	identify(t, hub, a1, 1, "alice")
	identify(t, hub, a2, 1, "alice")
	identify(t, hub, b1, 2, "bob")
	identify(t, hub, b2, 2, "bob")
	drainAll(t, a1, a2, b1, b2)

	require.NoError(t, hub.SendPrivateMessage(context.Background(), a1.ID, 2, "psst"))

	for _, c := range []*chat.Client{a1, a2, b1, b2} {
		received := framesByEvent(drainFrames(t, c), chat.EventReceiveMessage)
		require.Len(t, received, 1, "exactly once per open connection on both sides")
		msg := decodeData[message.Message](t, received[0])
		assert.Equal(t, "psst", msg.Content)
		assert.True(t, msg.IsPrivate)
		require.NotNil(t, msg.RecipientID)
		assert.Equal(t, 2, *msg.RecipientID)
	}
}

func TestPrivateMessageToSelf(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	hub := chat.NewHub(nil, store)

	a1 := attachClient(hub, "a1")
	a2 := attachClient(hub, "a2")
	identify(t, hub, a1, 1, "alice")
	identify(t, hub, a2, 1, "alice")
	drainAll(t, a1, a2)

	require.NoError(t, hub.SendPrivateMessage(context.Background(), a1.ID, 1, "note to self"))

	for _, c := range []*chat.Client{a1, a2} {
		received := framesByEvent(drainFrames(t, c), chat.EventReceiveMessage)
		assert.Len(t, received, 1, "self-messages are not duplicated")
	}
}

func TestPrivateMessageOfflineRecipientStillPersists(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	hub := chat.NewHub(nil, store)

	a1 := attachClient(hub, "a1")
	identify(t, hub, a1, 1, "alice")
	drainAll(t, a1)

	require.NoError(t, hub.SendPrivateMessage(context.Background(), a1.ID, 99, "are you there"))

	require.Len(t, store.created, 1, "delivery is best-effort but persistence is not")
	received := framesByEvent(drainFrames(t, a1), chat.EventReceiveMessage)
	assert.Len(t, received, 1, "the sender still sees the sent message")
}

func TestPersistenceFailureNoBroadcast(t *testing.T) {
	store := newFakeStore()
	store.failure = errors.New("db down")
	hub := chat.NewHub(nil, store)

	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")
	drainAll(t, c1, c2)

	err := hub.SendRoomMessage(context.Background(), c1.ID, "hi", "general")
	require.Error(t, err)
	assert.NotErrorIs(t, err, chat.ErrUnknownConnection)

	assert.Empty(t, framesByEvent(drainFrames(t, c1), chat.EventReceiveMessage))
	assert.Empty(t, framesByEvent(drainFrames(t, c2), chat.EventReceiveMessage))
}

func TestSendFromUnknownConnection(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1") // attached but never identified

	err := hub.SendRoomMessage(context.Background(), c1.ID, "hi", "general")
	assert.ErrorIs(t, err, chat.ErrUnknownConnection)

	err = hub.SendPrivateMessage(context.Background(), "ghost", 2, "hi")
	assert.ErrorIs(t, err, chat.ErrUnknownConnection)

	assert.ErrorIs(t, hub.SetTyping(c1.ID, "general", true), chat.ErrUnknownConnection)
	assert.ErrorIs(t, hub.JoinRoom(c1.ID, "tech"), chat.ErrUnknownConnection)
	assert.ErrorIs(t, hub.LeaveRoom(c1.ID, "tech"), chat.ErrUnknownConnection)
}

func TestJoinAndLeaveAcksRequesterOnly(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")
	drainAll(t, c1, c2)

	require.NoError(t, hub.JoinRoom(c1.ID, "tech"))
	require.NoError(t, hub.JoinRoom(c1.ID, "tech")) // idempotent, still acks

	frames := drainFrames(t, c1)
	assert.Len(t, framesByEvent(frames, chat.EventRoomJoined), 2)
	assert.Empty(t, drainFrames(t, c2), "acks never broadcast")

	require.NoError(t, hub.LeaveRoom(c1.ID, "tech"))
	left := framesByEvent(drainFrames(t, c1), chat.EventRoomLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "tech", decodeData[string](t, left[0]))
}

func TestTypingBroadcastScopedToRoom(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	c3 := attachClient(hub, "c3")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")
	identify(t, hub, c3, 3, "charlie")

	require.NoError(t, hub.JoinRoom(c1.ID, "tech"))
	require.NoError(t, hub.JoinRoom(c2.ID, "tech"))
	drainAll(t, c1, c2, c3)

	require.NoError(t, hub.SetTyping(c1.ID, "tech", true))

	typing := framesByEvent(drainFrames(t, c2), chat.EventTypingUsers)
	require.Len(t, typing, 1)
	assert.Equal(t, []chat.TypingUser{{Username: "alice"}}, decodeData[[]chat.TypingUser](t, typing[0]))

	assert.Empty(t, framesByEvent(drainFrames(t, c3), chat.EventTypingUsers),
		"typing lists only reach the affected room")
}

func TestTypingMoveNotifiesBothRooms(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")

	require.NoError(t, hub.JoinRoom(c2.ID, "room-a"))
	require.NoError(t, hub.JoinRoom(c2.ID, "room-b"))
	require.NoError(t, hub.SetTyping(c1.ID, "room-a", true))
	drainAll(t, c1, c2)

	require.NoError(t, hub.SetTyping(c1.ID, "room-b", true))

	typing := framesByEvent(drainFrames(t, c2), chat.EventTypingUsers)
	require.Len(t, typing, 2, "old and new room both get an update")
	assert.Empty(t, decodeData[[]chat.TypingUser](t, typing[0]), "room-a list is now empty")
	assert.Equal(t, []chat.TypingUser{{Username: "alice"}}, decodeData[[]chat.TypingUser](t, typing[1]))
}

func TestTypingStopClearsEntry(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")
	drainAll(t, c1, c2)

	require.NoError(t, hub.SetTyping(c1.ID, "general", true))
	drainAll(t, c1, c2)

	require.NoError(t, hub.SetTyping(c1.ID, "general", false))
	typing := framesByEvent(drainFrames(t, c2), chat.EventTypingUsers)
	require.Len(t, typing, 1)
	assert.Empty(t, decodeData[[]chat.TypingUser](t, typing[0]))
}

func TestDisconnectCleanup(t *testing.T) {
	store := newFakeStore()
	store.names[1] = "alice"
	store.names[2] = "bob"
	hub := chat.NewHub(nil, store)

	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c1, 1, "alice")
	identify(t, hub, c2, 2, "bob")

	require.NoError(t, hub.JoinRoom(c1.ID, "tech"))
	require.NoError(t, hub.JoinRoom(c2.ID, "tech"))
	require.NoError(t, hub.SetTyping(c1.ID, "tech", true))
	drainAll(t, c1, c2)

	hub.Detach(c1)

	frames := drainFrames(t, c2)

	typing := framesByEvent(frames, chat.EventTypingUsers)
	require.Len(t, typing, 1)
	assert.Empty(t, decodeData[[]chat.TypingUser](t, typing[0]),
		"a vanished client never lingers in a typing list")

	left := framesByEvent(frames, chat.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", decodeData[chat.PresenceEvent](t, left[0]).Username)

	lists := framesByEvent(frames, chat.EventUserList)
	require.Len(t, lists, 1)
	assert.Equal(t, []chat.UserInfo{{UserID: 2, Username: "bob"}}, decodeData[[]chat.UserInfo](t, lists[0]))

	err := hub.SendRoomMessage(context.Background(), c1.ID, "too late", "tech")
	assert.ErrorIs(t, err, chat.ErrUnknownConnection)

	// Room traffic keeps flowing for the remaining subscribers.
	require.NoError(t, hub.SendRoomMessage(context.Background(), c2.ID, "still here", "tech"))
	assert.Len(t, framesByEvent(drainFrames(t, c2), chat.EventReceiveMessage), 1)
}

func TestDetachUnidentifiedConnection(t *testing.T) {
	hub := chat.NewHub(nil, newFakeStore())
	c1 := attachClient(hub, "c1")
	c2 := attachClient(hub, "c2")
	identify(t, hub, c2, 2, "bob")
	drainAll(t, c1, c2)

	hub.Detach(c1)

	assert.Empty(t, drainFrames(t, c2), "tearing down an unidentified connection announces nothing")
}

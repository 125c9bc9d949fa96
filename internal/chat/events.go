package chat

import (
	"encoding/json"
	"time"
)

// DefaultRoom is the channel every identified session joins automatically.
const DefaultRoom = "general"

// Inbound events (client -> server).
const (
	EventIdentify       = "identify"
	EventSendMessage    = "send_message"
	EventPrivateMessage = "private_message"
	EventTyping         = "typing"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
)

// Outbound events (server -> client).
const (
	EventReceiveMessage = "receive_message"
	EventUserList       = "user_list"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventTypingUsers    = "typing_users"
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventError          = "error"
)

// Frame is the envelope every websocket message travels in, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type IdentifyPayload struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}

type SendMessagePayload struct {
	Content string `json:"content"`
	Room    string `json:"room"`
}

type PrivateMessagePayload struct {
	RecipientID int    `json:"recipientUserId"`
	Content     string `json:"content"`
}

type TypingPayload struct {
	IsTyping bool   `json:"isTyping"`
	Room     string `json:"room"`
}

// UserInfo is one entry of the user_list snapshot. The list carries one entry
// per live connection, so a user with two open tabs appears twice.
type UserInfo struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
}

// PresenceEvent announces a user joining or leaving the chat. It is a
// system-style notification, never persisted.
type PresenceEvent struct {
	Username  string    `json:"username"`
	UserID    int       `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingUser struct {
	Username string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// newFrame marshals an outbound event into its wire form.
func newFrame(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	frame, _ := json.Marshal(Frame{Event: event, Data: raw})
	return frame
}

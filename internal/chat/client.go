package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.

	storeTimeout = 10 * time.Second // Bound on a single persistence call.
)

// Client is a middleman between one websocket connection and the hub. It
// starts in the connected-but-unidentified state; UserID and Username carry
// the identity the auth layer verified at upgrade time, trusted once the
// client sends identify.
type Client struct {
	ID       string
	UserID   int
	Username string

	Hub  *Hub
	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte
}

// ReadPump pumps frames from the websocket connection into the hub. On any
// read error it detaches the client, which cascades the full teardown.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Detach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error on connection %s: %v", c.ID, err)
			}
			break
		}
		c.HandleFrame(raw)
	}
}

// HandleFrame decodes one inbound frame and dispatches it to the hub. A
// malformed frame gets an error ack; the connection stays alive.
func (c *Client) HandleFrame(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.reject("invalid payload")
		return
	}

	switch f.Event {
	case EventIdentify:
		var p IdentifyPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			c.reject("invalid payload")
			return
		}
		// The auth layer already verified who this connection is; a claim
		// that disagrees with the token leaves the connection unidentified.
		if p.UserID != c.UserID {
			log.Printf("identify rejected on %s: claimed user %d, token user %d", c.ID, p.UserID, c.UserID)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.Hub.Identify(ctx, c.ID, c.UserID, c.Username); err != nil {
			c.reject(err.Error())
		}

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.Content == "" {
			c.reject("invalid payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.Hub.SendRoomMessage(ctx, c.ID, p.Content, p.Room); err != nil {
			c.reject(err.Error())
		}

	case EventPrivateMessage:
		var p PrivateMessagePayload
		if err := json.Unmarshal(f.Data, &p); err != nil || p.Content == "" || p.RecipientID == 0 {
			c.reject("invalid payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.Hub.SendPrivateMessage(ctx, c.ID, p.RecipientID, p.Content); err != nil {
			c.reject(err.Error())
		}

	case EventTyping:
		var p TypingPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			c.reject("invalid payload")
			return
		}
		if err := c.Hub.SetTyping(c.ID, p.Room, p.IsTyping); err != nil {
			c.reject(err.Error())
		}

	case EventJoinRoom:
		var room string
		if err := json.Unmarshal(f.Data, &room); err != nil || room == "" {
			c.reject("invalid payload")
			return
		}
		if err := c.Hub.JoinRoom(c.ID, room); err != nil {
			c.reject(err.Error())
		}

	case EventLeaveRoom:
		var room string
		if err := json.Unmarshal(f.Data, &room); err != nil || room == "" {
			c.reject("invalid payload")
			return
		}
		if err := c.Hub.LeaveRoom(c.ID, room); err != nil {
			c.reject(err.Error())
		}

	default:
		c.reject("unknown event")
	}
}

// reject sends an error ack to this connection only.
func (c *Client) reject(msg string) {
	select {
	case c.Send <- newFrame(EventError, ErrorPayload{Message: msg}):
	default:
	}
}

// WritePump pumps frames from the Send channel to the websocket connection
// and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Flush anything already queued; each frame stays its own
			// websocket message so clients can decode them independently.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

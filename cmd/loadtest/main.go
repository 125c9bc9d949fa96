package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "http base url")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket url")
	pairCount = flag.Int("pairs", 50, "number of user pairs")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type authResponse struct {
	Token    string `json:"access_token"`
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d users, %d messages each", *pairCount*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()

	log.Println("load test complete")
}

// runPair registers two users who share a room and also exchange private
// messages, exercising both routing paths.
func runPair(pairID int) {
	userA := authenticate(fmt.Sprintf("load_%d_a", pairID))
	userB := authenticate(fmt.Sprintf("load_%d_b", pairID))
	if userA == nil || userB == nil {
		return
	}

	room := fmt.Sprintf("load-room-%d", pairID)

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatSession(&wsWg, userA, room, userB.ID)
	go chatSession(&wsWg, userB, room, userA.ID)
	wsWg.Wait()
}

// authenticate registers (ignoring an already-exists failure) and logs in.
func authenticate(username string) *authResponse {
	creds := map[string]string{"username": username, "password": "loadtest123"}
	postJSON("/register", creds)

	resp, err := postJSON("/login", creds)
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data.Token == "" {
		log.Printf("login response unusable [%s]: %v", username, err)
		return nil
	}
	return &data
}

func chatSession(wg *sync.WaitGroup, u *authResponse, room string, peerID int) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, u.Token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", u.Username, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the send buffer never backs up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := sendFrame(conn, "identify", map[string]any{"userId": u.ID, "username": u.Username}); err != nil {
		log.Printf("identify failed [%s]: %v", u.Username, err)
		return
	}
	if err := sendFrame(conn, "join_room", room); err != nil {
		log.Printf("join failed [%s]: %v", u.Username, err)
		return
	}

	for i := 0; i < *msgCount; i++ {
		var err error
		if i%5 == 4 {
			err = sendFrame(conn, "private_message", map[string]any{
				"recipientUserId": peerID,
				"content":         fmt.Sprintf("private %d from %s", i, u.Username),
			})
		} else {
			err = sendFrame(conn, "send_message", map[string]any{
				"room":    room,
				"content": fmt.Sprintf("message %d from %s", i, u.Username),
			})
		}
		if err != nil {
			log.Printf("send failed [%s]: %v", u.Username, err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", u.Username, *msgCount)
}

func sendFrame(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(raw)})
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}

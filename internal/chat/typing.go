package chat

import "sync"

type typingEntry struct {
	username string
	room     string
}

// TypingTracker holds the transient "who is typing where" state. A
// connection has at most one entry at a time; setting a new room replaces
// the old one (last-write-wins). There is no server-side expiry: the client
// clears its own entry on idle, and the disconnect path clears it
// unconditionally.
type TypingTracker struct {
	mu      sync.RWMutex
	entries map[string]typingEntry
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{entries: make(map[string]typingEntry)}
}

// Set upserts the typing entry for a connection. It returns the room of the
// replaced entry, if any, so the caller can notify both rooms on a move.
func (t *TypingTracker) Set(connID, username, room string) (prevRoom string, replaced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.entries[connID]
	t.entries[connID] = typingEntry{username: username, room: room}
	if ok {
		return prev.room, true
	}
	return "", false
}

// Clear removes the entry for a connection and reports which room it was in.
func (t *TypingTracker) Clear(connID string) (room string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[connID]
	if !ok {
		return "", false
	}
	delete(t.entries, connID)
	return entry.room, true
}

// UsersIn returns the usernames currently typing in a room.
func (t *TypingTracker) UsersIn(room string) []TypingUser {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]TypingUser, 0)
	for _, entry := range t.entries {
		if entry.room == room {
			users = append(users, TypingUser{Username: entry.username})
		}
	}
	return users
}

package chat

import "sync"

// Membership tracks which connections are subscribed to which room channels.
// Subscriptions are purely runtime state; persisted Room records live in the
// room package and never flow through here.
type Membership struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // room -> connection IDs
	conns map[string]map[string]struct{} // connection ID -> rooms
}

func NewMembership() *Membership {
	return &Membership{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join subscribes a connection to a room channel. Joining twice is a no-op;
// the return value reports whether the subscription is new.
func (m *Membership) Join(connID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(map[string]struct{})
	}
	if _, ok := m.rooms[room][connID]; ok {
		return false
	}
	m.rooms[room][connID] = struct{}{}

	if _, ok := m.conns[connID]; !ok {
		m.conns[connID] = make(map[string]struct{})
	}
	m.conns[connID][room] = struct{}{}
	return true
}

// Leave unsubscribes a connection from a room channel. Idempotent.
func (m *Membership) Leave(connID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID, room)
}

func (m *Membership) leaveLocked(connID, room string) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}

	if rooms, ok := m.conns[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.conns, connID)
		}
	}
	return true
}

// LeaveAll removes every subscription a connection holds and returns the
// rooms it was in. Used by the disconnect path.
func (m *Membership) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]string, 0, len(m.conns[connID]))
	for room := range m.conns[connID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		m.leaveLocked(connID, room)
	}
	return rooms
}

// Members returns a snapshot of the connections subscribed to a room.
func (m *Membership) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.rooms[room]))
	for connID := range m.rooms[room] {
		members = append(members, connID)
	}
	return members
}

// IsMember reports whether a connection is subscribed to a room.
func (m *Membership) IsMember(connID, room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][connID]
	return ok
}

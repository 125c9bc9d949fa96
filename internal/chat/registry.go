package chat

import "sync"

// Session binds an authenticated identity to one live connection. The
// registry owns these; the typing tracker and room membership only ever hold
// the connection ID.
type Session struct {
	ConnID   string
	UserID   int
	Username string
}

// Registry is the source of truth for who is online. It is keyed by the
// transport connection ID, not the user ID: the same user may hold any number
// of simultaneous connections (multi-tab), each an independent session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[int]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[int]map[string]struct{}),
	}
}

// Register creates a session for a connection. It fails with
// ErrAlreadyRegistered if the connection already identified.
func (r *Registry) Register(connID string, userID int, username string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return nil, ErrAlreadyRegistered
	}

	s := &Session{ConnID: connID, UserID: userID, Username: username}
	r.sessions[connID] = s

	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connID] = struct{}{}

	return s, nil
}

// Unregister removes a session and returns its last-known data so callers
// can notify downstream. Fails with ErrNotFound for unknown connections.
func (r *Registry) Unregister(connID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.sessions, connID)

	if conns, ok := r.byUser[s.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, s.UserID)
		}
	}

	return s, nil
}

// Get looks up the session for a connection.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// ListOnline returns a snapshot with one entry per live identified
// connection.
func (r *Registry) ListOnline() []UserInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]UserInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		online = append(online, UserInfo{UserID: s.UserID, Username: s.Username})
	}
	return online
}

// ConnectionsForUser returns every live connection held by a user, or an
// empty slice if the user is offline.
func (r *Registry) ConnectionsForUser(userID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		conns = append(conns, connID)
	}
	return conns
}

package server

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryDB implements Database interface for testing
type InMemoryDB struct {
	mu     sync.RWMutex
	users  map[string]*User  // email -> user
	tokens map[string]string // token -> email
	deltas map[string][]StatsDelta
}

// NewInMemoryDB creates a new in-memory database for testing
func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		users:  make(map[string]*User),
		tokens: make(map[string]string),
		deltas: make(map[string][]StatsDelta),
	}
}

// AddUser registers a user with its session token
func (m *InMemoryDB) AddUser(u *User, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
	m.tokens[token] = u.Email
}

func (m *InMemoryDB) UserByToken(token string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email, ok := m.tokens[token]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return m.users[email], nil
}

func (m *InMemoryDB) UserByEmail(email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return u, nil
}

func (m *InMemoryDB) UserByName(name string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (m *InMemoryDB) PersistStatsDelta(email string, delta StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; !ok {
		return fmt.Errorf("user not found")
	}
	m.deltas[email] = append(m.deltas[email], delta)
	return nil
}

// Deltas returns the stats deltas persisted for a user
func (m *InMemoryDB) Deltas(email string) []StatsDelta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StatsDelta(nil), m.deltas[email]...)
}

func (m *InMemoryDB) Close() error { return nil }

// recordedMsg is one emission captured by the recording emitter. SessionID
// is empty for broadcasts.
type recordedMsg struct {
	SessionID string
	Code      string
	Msg       ServerMessage
}

// recordingEmitter implements Emitter and records every emission for
// inspection.
type recordingEmitter struct {
	mu      sync.Mutex
	msgs    []recordedMsg
	evicted []string
	closed  []string
}

func newRecordingEmitter() *recordingEmitter { return &recordingEmitter{} }

func (e *recordingEmitter) EmitTo(sessionID string, msg ServerMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, recordedMsg{SessionID: sessionID, Msg: msg})
}

func (e *recordingEmitter) Broadcast(code string, msg ServerMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, recordedMsg{Code: code, Msg: msg})
}

func (e *recordingEmitter) Evict(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = append(e.evicted, sessionID)
}

func (e *recordingEmitter) CloseRoom(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, code)
}

// ofType returns the recorded emissions with the given message type.
func (e *recordingEmitter) ofType(typ string) []recordedMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recordedMsg
	for _, m := range e.msgs {
		if m.Msg.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// toSession returns the targeted emissions sent to a session.
func (e *recordingEmitter) toSession(sessionID string) []recordedMsg {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recordedMsg
	for _, m := range e.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (e *recordingEmitter) evictedSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.evicted...)
}

func (e *recordingEmitter) closedRooms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.closed...)
}

// testUser builds a user whose token is "tok-<name>" and registers it.
func testUser(db *InMemoryDB, name string) *User {
	u := &User{
		Email:    name + "@example.com",
		Name:     name,
		AvatarID: 1,
		BoardID:  0,
	}
	db.AddUser(u, "tok-"+name)
	return u
}

// newTestManager wires a manager to an in-memory db and recording emitter.
// The turn clock is pushed out so tests control the pace.
func newTestManager(opts ...func(*MatchManagerConfig)) (*MatchManager, *recordingEmitter, *InMemoryDB) {
	db := NewInMemoryDB()
	em := newRecordingEmitter()
	cfg := MatchManagerConfig{
		DB:       db,
		Emitter:  em,
		TurnTime: time.Hour,
		Seed:     7,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewMatchManager(cfg), em, db
}

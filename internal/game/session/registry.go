// Package session tracks authenticated sessions: one per live connection and
// at most one per username.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyConnected is returned when another session holds the username.
var ErrAlreadyConnected = errors.New("already connected")

// ErrAlreadyAuthenticated is returned when the connection already has a session.
var ErrAlreadyAuthenticated = errors.New("already authenticated")

// Conn is the transport handle the core sends frames through.
// The core never closes a Conn; it only reacts to closure.
type Conn interface {
	// ID is unique per connection for the lifetime of the process.
	ID() string
	// Alive reports whether frames can still be sent.
	Alive() bool
	// Send enqueues a frame without blocking.
	Send(data []byte) error
}

// Session is an authenticated player's state. Seat and Ready are written
// only by the router loop.
type Session struct {
	ID         string
	Conn       Conn
	Username   string
	Seat       int
	Ready      bool
	LoggedInAt time.Time
}

// Registry maps connections to sessions. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	now    func() time.Time
	byConn map[string]*Session
	byName map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		now:    time.Now,
		byConn: make(map[string]*Session),
		byName: make(map[string]*Session),
	}
}

// Login creates a session binding conn to username.
//
// Precondition: conn must be non-nil; username must be non-empty.
// Postcondition: Returns the new session with no seat and not ready, or
// ErrAlreadyAuthenticated / ErrAlreadyConnected with the registry unchanged.
func (r *Registry) Login(conn Conn, username string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[conn.ID()]; ok {
		return nil, ErrAlreadyAuthenticated
	}
	if _, ok := r.byName[username]; ok {
		return nil, ErrAlreadyConnected
	}
	s := &Session{
		ID:         uuid.NewString(),
		Conn:       conn,
		Username:   username,
		LoggedInAt: r.now(),
	}
	r.byConn[conn.ID()] = s
	r.byName[username] = s
	return s, nil
}

// Get returns the session bound to conn.
func (r *Registry) Get(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[conn.ID()]
	return s, ok
}

// ByUsername returns the session holding username.
func (r *Registry) ByUsername(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[username]
	return s, ok
}

// Remove destroys the session bound to conn.
//
// Postcondition: Returns the removed session and true, or nil and false.
func (r *Registry) Remove(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[conn.ID()]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn.ID())
	delete(r.byName, s.Username)
	return s, true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// All returns a snapshot of the live sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byConn))
	for _, s := range r.byConn {
		out = append(out, s)
	}
	return out
}

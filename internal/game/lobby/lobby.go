// Package lobby implements the two-seat matchmaking and readiness state machine.
package lobby

import (
	"errors"
	"sync"
)

// ErrLobbyFull is returned when both seats are occupied.
var ErrLobbyFull = errors.New("lobby full")

// ErrAlreadySeated is returned when a session that holds a seat tries to join again.
var ErrAlreadySeated = errors.New("already in lobby")

// ErrNotSeated is returned when a session without a seat changes readiness.
var ErrNotSeated = errors.New("not seated")

// Phase is the lobby's derived state.
type Phase int

const (
	// Empty means no seat is occupied.
	Empty Phase = iota
	// Filling means exactly one seat is occupied.
	Filling
	// Full means both seats are occupied and not both ready.
	Full
	// Starting means both seats are occupied and ready.
	Starting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Empty:
		return "empty"
	case Filling:
		return "filling"
	case Full:
		return "full"
	case Starting:
		return "starting"
	}
	return "unknown"
}

// State is the lobbyUpdate snapshot.
type State struct {
	Player1      bool   `json:"player1"`
	Player2      bool   `json:"player2"`
	Player1Ready bool   `json:"player1Ready"`
	Player2Ready bool   `json:"player2Ready"`
	Player1Name  string `json:"player1Name"`
	Player2Name  string `json:"player2Name"`
	PlayersCount int    `json:"playersCount"`
}

type seat struct {
	sessionID string
	username  string
	ready     bool
}

func (s seat) occupied() bool { return s.sessionID != "" }

// Lobby holds exactly two seats.
//
// Invariant: a seat holds at most one session and a session holds at most one seat.
type Lobby struct {
	mu    sync.Mutex
	seats [2]seat
}

// New returns an empty Lobby.
func New() *Lobby {
	return &Lobby{}
}

// Join seats the session in the first free seat, seat 1 before seat 2.
//
// Precondition: sessionID must be non-empty.
// Postcondition: Returns the seat number (1 or 2), or ErrAlreadySeated / ErrLobbyFull
// with the lobby unchanged.
func (l *Lobby) Join(sessionID, username string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seatOf(sessionID) != 0 {
		return 0, ErrAlreadySeated
	}
	for i := range l.seats {
		if !l.seats[i].occupied() {
			l.seats[i] = seat{sessionID: sessionID, username: username}
			return i + 1, nil
		}
	}
	return 0, ErrLobbyFull
}

// SetReady updates the ready flag of the session's seat.
//
// Postcondition: Returns the seat number, or ErrNotSeated with the lobby unchanged.
func (l *Lobby) SetReady(sessionID string, ready bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.seatOf(sessionID)
	if n == 0 {
		return 0, ErrNotSeated
	}
	l.seats[n-1].ready = ready
	return n, nil
}

// Leave frees the session's seat, clearing its ready flag and name.
// The other seat is untouched.
//
// Postcondition: Returns the freed seat and true, or 0 and false if the session held none.
func (l *Lobby) Leave(sessionID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.seatOf(sessionID)
	if n == 0 {
		return 0, false
	}
	l.seats[n-1] = seat{}
	return n, true
}

// ResetReadiness clears both ready flags without vacating seats.
func (l *Lobby) ResetReadiness() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.seats {
		l.seats[i].ready = false
	}
}

// BothReady reports whether both seats are occupied and ready.
func (l *Lobby) BothReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bothReady()
}

func (l *Lobby) bothReady() bool {
	return l.seats[0].occupied() && l.seats[1].occupied() && l.seats[0].ready && l.seats[1].ready
}

// SeatOf returns the session's seat number, or 0.
func (l *Lobby) SeatOf(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seatOf(sessionID)
}

func (l *Lobby) seatOf(sessionID string) int {
	if sessionID == "" {
		return 0
	}
	for i, s := range l.seats {
		if s.sessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

// Occupants returns the session IDs in seats 1 and 2; "" marks a free seat.
func (l *Lobby) Occupants() [2]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return [2]string{l.seats[0].sessionID, l.seats[1].sessionID}
}

// Usernames returns the usernames in seats 1 and 2; "" marks a free seat.
func (l *Lobby) Usernames() [2]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return [2]string{l.seats[0].username, l.seats[1].username}
}

// Count returns the number of occupied seats.
func (l *Lobby) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count()
}

func (l *Lobby) count() int {
	n := 0
	for _, s := range l.seats {
		if s.occupied() {
			n++
		}
	}
	return n
}

// Phase returns the derived lobby phase.
func (l *Lobby) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.count() {
	case 0:
		return Empty
	case 1:
		return Filling
	}
	if l.bothReady() {
		return Starting
	}
	return Full
}

// Snapshot returns the broadcastable lobby state.
func (l *Lobby) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Player1:      l.seats[0].occupied(),
		Player2:      l.seats[1].occupied(),
		Player1Ready: l.seats[0].ready,
		Player2Ready: l.seats[1].ready,
		Player1Name:  l.seats[0].username,
		Player2Name:  l.seats[1].username,
		PlayersCount: l.count(),
	}
}

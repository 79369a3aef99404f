package match

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNotRunning is returned when a command arrives while no match is running.
var ErrNotRunning = errors.New("match not running")

// ErrInvalidSeat is returned for a seat other than 1 or 2.
var ErrInvalidSeat = errors.New("invalid seat")

// ErrInvalidPosition is returned for a non-finite absolute paddle position.
var ErrInvalidPosition = errors.New("invalid paddle position")

// Direction is a paddle movement command.
type Direction int

const (
	// Up moves the paddle toward y = 0.
	Up Direction = iota + 1
	// Down moves the paddle toward y = PaddleMaxY.
	Down
)

// Engine owns the MatchState of the single active match.
//
// Lifecycle: Start makes the engine active and running. A winning goal stops
// the engine running but leaves it active, so the final state stays
// observable until Stop discards it.
type Engine struct {
	mu           sync.Mutex
	src          Source
	winningScore int
	state        State
	matchID      string
	active       bool
}

// NewEngine creates an idle Engine.
//
// Precondition: winningScore > 0; src must be non-nil.
func NewEngine(winningScore int, src Source) *Engine {
	return &Engine{src: src, winningScore: winningScore}
}

// Start replaces any previous MatchState with a fresh, running one.
//
// Postcondition: Running() and Active() are true; scores are zero.
func (e *Engine) Start(matchID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = NewState(e.src)
	e.state.Running = true
	e.matchID = matchID
	e.active = true
	return e.state
}

// Step advances the running match by one timestep and returns the outcome and
// the post-step snapshot.
//
// Postcondition: When the step's goal brings a score to the winning score the
// result is Finished with the Winner set, and the engine stops running.
func (e *Engine) Step() (StepResult, State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Running {
		return StepResult{}, e.state, ErrNotRunning
	}
	res := Step(&e.state, e.src)
	if res.Scorer != 0 && (e.state.Score1 >= e.winningScore || e.state.Score2 >= e.winningScore) {
		res.Finished = true
		res.Winner = 2
		if e.state.Score1 > e.state.Score2 {
			res.Winner = 1
		}
		e.state.Running = false
	}
	return res, e.state, nil
}

// SetDirection sets the seat's paddle velocity to ±PaddleSpeed.
func (e *Engine) SetDirection(seat int, dir Direction) error {
	var vy float64
	switch dir {
	case Up:
		vy = -PaddleSpeed
	case Down:
		vy = PaddleSpeed
	default:
		return fmt.Errorf("unknown direction %d", dir)
	}
	return e.withPaddle(seat, func(p *Paddle) { p.VY = vy })
}

// StopPaddle zeroes the seat's paddle velocity.
func (e *Engine) StopPaddle(seat int) error {
	return e.withPaddle(seat, func(p *Paddle) { p.VY = 0 })
}

// SetPaddleY moves the seat's paddle to y, clamped to [0, PaddleMaxY], and
// zeroes its velocity.
func (e *Engine) SetPaddleY(seat int, y float64) error {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return ErrInvalidPosition
	}
	return e.withPaddle(seat, func(p *Paddle) {
		p.Y = ClampPaddleY(y)
		p.VY = 0
	})
}

func (e *Engine) withPaddle(seat int, fn func(*Paddle)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Running {
		return ErrNotRunning
	}
	p := e.state.Paddle(seat)
	if p == nil {
		return ErrInvalidSeat
	}
	fn(p)
	return nil
}

// Stop halts and discards the current MatchState.
//
// Postcondition: Running() and Active() are false; MatchID() is empty.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{}
	e.matchID = ""
	e.active = false
}

// Running reports whether the simulation is stepping.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Running
}

// Active reports whether a MatchState exists, running or finished.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// MatchID returns the identifier passed to Start, or "" when inactive.
func (e *Engine) MatchID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matchID
}

// Snapshot returns a copy of the current MatchState.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

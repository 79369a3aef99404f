// Package match implements the fixed-timestep Pong simulation: paddle and ball
// integration, wall and paddle collisions, goals, and the first-to-N win rule.
package match

import "math"

// Playfield geometry and physics constants in canonical units.
const (
	FieldWidth  = 800.0
	FieldHeight = 400.0

	PaddleWidth  = 15.0
	PaddleHeight = 100.0
	Paddle1X     = 20.0
	Paddle2X     = 765.0
	PaddleStartY = 150.0
	PaddleSpeed  = 8.0
	// PaddleMaxY is the lowest legal paddle top edge.
	PaddleMaxY = FieldHeight - PaddleHeight

	// LeftContactX is the ball x at or below which the left paddle can be hit.
	LeftContactX = Paddle1X + PaddleWidth
	// RightContactX is the ball x at or above which the right paddle can be hit.
	RightContactX = Paddle2X

	BallRadius = 8.0
	BallStartX = FieldWidth / 2
	BallStartY = FieldHeight / 2

	ServeSpeed  = 5.0
	ServeSpread = 3.0
	SpinFactor  = 3.0

	DefaultWinningScore = 5
)

// Ball is the ball's position and velocity.
type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
}

// Paddle is one player's paddle. Y is the top edge.
type Paddle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	VY     float64 `json:"vy"`
}

// State is the authoritative MatchState and its wire representation.
type State struct {
	Ball    Ball   `json:"ball"`
	Paddle1 Paddle `json:"paddle1"`
	Paddle2 Paddle `json:"paddle2"`
	Score1  int    `json:"score1"`
	Score2  int    `json:"score2"`
	Running bool   `json:"running"`
}

// NewState returns a freshly served MatchState with zero scores, not running.
func NewState(src Source) State {
	s := State{
		Paddle1: Paddle{X: Paddle1X, Y: PaddleStartY, Width: PaddleWidth, Height: PaddleHeight},
		Paddle2: Paddle{X: Paddle2X, Y: PaddleStartY, Width: PaddleWidth, Height: PaddleHeight},
	}
	Serve(&s.Ball, src)
	return s
}

// Serve resets b to the center with vx = ±ServeSpeed and vy uniform in
// [-ServeSpread, ServeSpread].
func Serve(b *Ball, src Source) {
	b.X = BallStartX
	b.Y = BallStartY
	b.Radius = BallRadius
	if src.Float64() > 0.5 {
		b.VX = ServeSpeed
	} else {
		b.VX = -ServeSpeed
	}
	b.VY = (src.Float64() - 0.5) * 2 * ServeSpread
}

// ClampPaddleY limits y to [0, PaddleMaxY].
func ClampPaddleY(y float64) float64 {
	return math.Max(0, math.Min(PaddleMaxY, y))
}

// Paddle returns a pointer to the paddle for seat 1 or 2, or nil.
func (s *State) Paddle(seat int) *Paddle {
	switch seat {
	case 1:
		return &s.Paddle1
	case 2:
		return &s.Paddle2
	}
	return nil
}

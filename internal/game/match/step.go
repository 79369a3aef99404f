package match

import "math"

// StepResult reports what happened during one simulation step.
type StepResult struct {
	// Scorer is 1 or 2 when a goal was scored this step, otherwise 0.
	Scorer int
	// Finished is set by Engine when the goal reached the winning score.
	Finished bool
	// Winner is the winning seat when Finished.
	Winner int
}

// Step advances s by one fixed timestep.
//
// Precondition: s and src must be non-nil.
// Postcondition: Both paddles lie in [0, PaddleMaxY]; at most one score was
// incremented, by exactly one; after a goal the ball has been re-served.
func Step(s *State, src Source) StepResult {
	movePaddle(&s.Paddle1)
	movePaddle(&s.Paddle2)

	b := &s.Ball
	b.X += b.VX
	b.Y += b.VY

	if b.Y <= b.Radius || b.Y >= FieldHeight-b.Radius {
		b.VY = -b.VY
	}

	if b.X <= LeftContactX && withinSpan(b.Y, &s.Paddle1) {
		b.VX = math.Abs(b.VX)
		b.VY += spin(b.Y, &s.Paddle1)
	}
	if b.X >= RightContactX && withinSpan(b.Y, &s.Paddle2) {
		b.VX = -math.Abs(b.VX)
		b.VY += spin(b.Y, &s.Paddle2)
	}

	var res StepResult
	if b.X < 0 {
		s.Score2++
		res.Scorer = 2
		Serve(b, src)
	} else if b.X > FieldWidth {
		s.Score1++
		res.Scorer = 1
		Serve(b, src)
	}
	return res
}

// movePaddle integrates and clamps; overshoot is discarded, not bounced.
func movePaddle(p *Paddle) {
	p.Y = ClampPaddleY(p.Y + p.VY)
}

func withinSpan(y float64, p *Paddle) bool {
	return y >= p.Y && y <= p.Y+p.Height
}

// spin maps the impact point linearly from 0 at the paddle center to
// ±SpinFactor at its edges.
func spin(y float64, p *Paddle) float64 {
	half := p.Height / 2
	return ((y - p.Y - half) / half) * SpinFactor
}

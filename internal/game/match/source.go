package match

import "math/rand/v2"

// Source supplies the randomness used when serving the ball.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

type globalSource struct{}

// NewSource returns a Source backed by the math/rand/v2 global generator.
// It is safe for concurrent use.
func NewSource() Source {
	return globalSource{}
}

func (globalSource) Float64() float64 { return rand.Float64() }

// NewSeededSource returns a deterministic Source for replays and tests.
// It is not safe for concurrent use.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FixedSource returns the same value on every call.
type FixedSource float64

// Float64 implements Source.
func (f FixedSource) Float64() float64 { return float64(f) }

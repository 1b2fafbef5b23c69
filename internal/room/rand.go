package room

import "math/rand/v2"

// Rand is the randomness source for prompt selection and scoring.
type Rand interface {
	// IntN returns a uniform integer in [0, n).
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int { return rand.IntN(n) }

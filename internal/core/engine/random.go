package engine

import (
	"math/rand/v2"
	"time"
)

// RandomSource supplies the dice rolls and template picks. Implementations
// need not be safe for concurrent use.
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// IntN returns a uniform value in [0, n).
	IntN(n int) int
}

// NewRandomSource returns a PCG-backed source. A zero seed seeds from the clock.
func NewRandomSource(seed uint64) RandomSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// roll reports whether a uniform draw lands under probability p.
// p <= 0 never succeeds and p >= 1 always does.
func roll(r RandomSource, p float64) bool {
	return r.Float64() < p
}

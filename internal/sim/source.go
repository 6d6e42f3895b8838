// Package sim implements the per-hour bioremediation process model.
package sim

import (
	"math/rand"
	"time"
)

// Source is the single random stream the engine draws from.
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a seeded Source. A zero seed uses the current time.
func NewSource(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// bernoulli reports true with probability p.
func bernoulli(src Source, p float64) bool {
	return src.Float64() < p
}

package rng

import (
	"math/rand/v2"
	"time"
)

// SeededSource implements ports.RNGPort with PCG streams. Each trial gets its
// own stream keyed by (seed, trial), so trial outcomes do not depend on which
// worker runs them or in what order.
type SeededSource struct{}

// NewSeededSource creates the production RNG port
func NewSeededSource() *SeededSource {
	return &SeededSource{}
}

// TrialStream returns the deterministic generator for one trial
func (s *SeededSource) TrialStream(seed int64, trial int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), mix(uint64(trial))))
}

// ResolveSeed returns seed unchanged unless it is zero, in which case a
// seed is derived from the wall clock. The resolved seed is what reports record.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	s := int64(mix(uint64(time.Now().UnixNano())) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}

// mix is the splitmix64 finalizer; it spreads consecutive trial indices
// across the PCG stream space.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

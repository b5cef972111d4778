package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// TrialStream returns an independent deterministic generator for one
	// permutation trial. The same (seed, trial) pair always yields the same
	// stream, whatever goroutine runs the trial.
	TrialStream(seed int64, trial int) *rand.Rand
}

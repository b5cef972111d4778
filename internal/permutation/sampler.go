// Package permutation draws null-hypothesis surrogates of a seed time series.
package permutation

import (
	"math/rand/v2"

	"fctarget/domain/volume"
)

// Sampler reorders time series uniformly at random
type Sampler struct{}

// NewSampler creates a permutation sampler
func NewSampler() *Sampler {
	return &Sampler{}
}

// Permute returns a new series holding ts reordered by a uniformly random
// permutation of {0..T-1}. ts is left untouched. Successive calls are
// independent; repeated permutations are allowed.
func (s *Sampler) Permute(ts volume.TimeSeries, rng *rand.Rand) volume.TimeSeries {
	out := make(volume.TimeSeries, len(ts))
	for i, j := range rng.Perm(len(ts)) {
		out[i] = ts[j]
	}
	return out
}

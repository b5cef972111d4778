// Package threshold turns a permutation null distribution into a two-sided
// critical |r|.
package threshold

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"fctarget/domain/core"
	domainstats "fctarget/domain/stats"
	"fctarget/domain/volume"
)

// Estimate returns the (1-alpha)*100-th percentile of |values|, interpolating
// linearly between order statistics at index p*(n-1).
func Estimate(dist *domainstats.NullDistribution, alpha float64) (domainstats.Threshold, error) {
	if !(alpha > 0 && alpha < 1) {
		return domainstats.Threshold{}, core.NewValidationError("alpha", fmt.Sprintf("must be in (0,1), got %v", alpha))
	}
	if dist.Len() == 0 {
		return domainstats.Threshold{}, fmt.Errorf("%w: empty null distribution", core.ErrInsufficientData)
	}

	abs := make([]float64, len(dist.Values))
	for i, v := range dist.Values {
		abs[i] = math.Abs(v)
	}
	p := (1 - alpha) * 100

	return domainstats.Threshold{
		Value:      percentile(abs, p),
		Alpha:      alpha,
		Percentile: p,
		N:          len(abs),
	}, nil
}

// percentile interpolates linearly between closest ranks. data is sorted in place.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sort.Float64s(data)

	index := (p / 100.0) * float64(len(data)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(data) {
		return data[len(data)-1]
	}

	weight := index - float64(lower)
	return data[lower]*(1-weight) + data[upper]*weight
}

// Summarize describes the null distribution
func Summarize(dist *domainstats.NullDistribution) domainstats.NullSummary {
	if dist.Len() == 0 {
		return domainstats.NullSummary{}
	}
	data := dist.Values

	mean, _ := stats.Mean(data)
	var sd float64
	if len(data) > 1 {
		sd, _ = stats.StandardDeviationSample(data)
	}
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)

	abs := make([]float64, len(dist.Values))
	for i, v := range dist.Values {
		abs[i] = math.Abs(v)
	}
	return domainstats.NullSummary{
		Mean:         mean,
		StdDev:       sd,
		Min:          lo,
		Max:          hi,
		Percentile95: percentile(abs, 95),
		Percentile99: percentile(abs, 99),
	}
}

// SummarizeMap describes the observed map inside the target mask and counts
// the voxels that pass thr.
func SummarizeMap(obs *volume.CorrelationMap, target volume.SpatialMask, thr domainstats.Threshold) domainstats.MapSummary {
	s := domainstats.MapSummary{
		Grid:         obs.Grid.String(),
		TargetVoxels: target.Count(),
	}
	values := obs.MaskedValues(target)
	s.DefinedVoxels = len(values)
	if len(values) == 0 {
		return s
	}

	s.Min, _ = stats.Min(values)
	s.Max, _ = stats.Max(values)
	s.Mean, _ = stats.Mean(values)
	s.MaxAbs, _ = obs.MaxAbs(target)
	for _, v := range values {
		if math.Abs(v) > thr.Value {
			s.SupraThreshold++
		}
	}
	return s
}

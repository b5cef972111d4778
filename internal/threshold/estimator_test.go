package threshold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/domain/core"
	domainstats "fctarget/domain/stats"
	"fctarget/domain/volume"
)

func dist(values ...float64) *domainstats.NullDistribution {
	return &domainstats.NullDistribution{Values: values, Requested: len(values)}
}

func TestEstimate_LinearInterpolation(t *testing.T) {
	// sorted |v| = 0.1 .. 1.0, index = 0.95*9 = 8.55
	d := dist(0.3, -0.1, 0.2, 0.5, -0.4, 0.6, 0.8, -0.7, 1.0, 0.9)

	thr, err := Estimate(d, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, 0.955, thr.Value, 1e-12)
	assert.InDelta(t, 95.0, thr.Percentile, 1e-9)
	assert.Equal(t, 10, thr.N)
	assert.Equal(t, 0.05, thr.Alpha)
}

func TestEstimate_SingleValue(t *testing.T) {
	thr, err := Estimate(dist(-0.42), 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, thr.Value, 1e-12)
}

func TestEstimate_DoesNotMutateInput(t *testing.T) {
	d := dist(0.5, -0.2, 0.1)
	_, err := Estimate(d, 0.1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.2, 0.1}, d.Values)
}

func TestEstimate_NonNegativeAndMonotone(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = math.Sin(float64(i)*1.7) * 0.6
	}
	d := dist(values...)

	prev := math.Inf(1)
	for _, alpha := range []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 0.9} {
		thr, err := Estimate(d, alpha)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, thr.Value, 0.0)
		assert.LessOrEqual(t, thr.Value, prev, "threshold must not grow with alpha (alpha=%v)", alpha)
		prev = thr.Value
	}
}

func TestEstimate_Errors(t *testing.T) {
	_, err := Estimate(dist(), 0.05)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = Estimate(nil, 0.05)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	for _, alpha := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, err = Estimate(dist(0.1, 0.2), alpha)
		assert.ErrorIs(t, err, core.ErrInvalidInput, "alpha=%v", alpha)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(dist(0.2, 0.4, 0.6))
	assert.InDelta(t, 0.4, s.Mean, 1e-12)
	assert.InDelta(t, 0.2, s.StdDev, 1e-12)
	assert.Equal(t, 0.2, s.Min)
	assert.Equal(t, 0.6, s.Max)
	assert.InDelta(t, 0.58, s.Percentile95, 1e-12)

	assert.Equal(t, domainstats.NullSummary{}, Summarize(dist()))
}

func TestSummarizeMap(t *testing.T) {
	g := volume.NewGrid(4, 1, 1)
	obs := volume.NewCorrelationMap(g)
	copy(obs.Values, []float64{0.9, -0.7, 0.1, math.NaN()})
	target := volume.NewMask("target", g)
	for i := range target.Voxels {
		target.Voxels[i] = true
	}

	s := SummarizeMap(obs, target, domainstats.Threshold{Value: 0.5})
	assert.Equal(t, 4, s.TargetVoxels)
	assert.Equal(t, 3, s.DefinedVoxels)
	assert.Equal(t, 2, s.SupraThreshold)
	assert.InDelta(t, 0.9, s.MaxAbs, 1e-12)
	assert.InDelta(t, -0.7, s.Min, 1e-12)
}

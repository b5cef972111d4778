package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"fctarget/domain/core"
	"fctarget/domain/volume"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSeries(t *testing.T) (*volume.VolumeSeries, volume.SpatialMask) {
	t.Helper()
	g := volume.NewGrid(4, 1, 1)
	vs := volume.NewVolumeSeries("bold", g, 5)
	vs.SetVoxel(0, []float64{1, 2, 3, 4, 5})  // r = +1
	vs.SetVoxel(1, []float64{10, 8, 6, 4, 2}) // r = -1
	vs.SetVoxel(2, []float64{3, 3, 3, 3, 3})  // zero variance
	vs.SetVoxel(3, []float64{1, 2, 3, 4, 5})  // outside mask
	mask, err := volume.MaskFromIndices("target", g, []int{0, 1, 2})
	require.NoError(t, err)
	return vs, mask
}

func TestPearsonEngineCorrelate(t *testing.T) {
	vs, mask := buildSeries(t)
	e := NewPearsonEngine()

	m, err := e.Correlate(context.Background(), volume.TimeSeries{1, 2, 3, 4, 5}, vs, mask)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.Values[0], 1e-12)
	assert.InDelta(t, -1.0, m.Values[1], 1e-12)
	assert.True(t, math.IsNaN(m.Values[2]), "zero-variance voxel must be undefined")
	assert.True(t, math.IsNaN(m.Values[3]), "voxel outside mask must be undefined")
}

func TestPearsonEngineDeterministic(t *testing.T) {
	vs, mask := buildSeries(t)
	e := NewPearsonEngine()
	ts := volume.TimeSeries{2, 1, 5, 3, 4}

	a, err := e.Correlate(context.Background(), ts, vs, mask)
	require.NoError(t, err)
	b, err := e.Correlate(context.Background(), ts, vs, mask)
	require.NoError(t, err)

	for i := range a.Values {
		if math.IsNaN(a.Values[i]) {
			assert.True(t, math.IsNaN(b.Values[i]))
			continue
		}
		assert.Equal(t, a.Values[i], b.Values[i])
	}
}

func TestPearsonEngineLengthMismatch(t *testing.T) {
	vs, mask := buildSeries(t)
	_, err := NewPearsonEngine().Correlate(context.Background(), volume.TimeSeries{1, 2, 3}, vs, mask)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrComputation))
}

func TestPearsonEngineGridMismatch(t *testing.T) {
	vs, _ := buildSeries(t)
	other, err := volume.MaskFromIndices("target", volume.NewGrid(2, 2, 1), []int{0})
	require.NoError(t, err)
	_, err = NewPearsonEngine().Correlate(context.Background(), volume.TimeSeries{1, 2, 3, 4, 5}, vs, other)
	assert.True(t, errors.Is(err, core.ErrComputation))
}

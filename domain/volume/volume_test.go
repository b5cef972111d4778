package volume

import (
	"errors"
	"math"
	"testing"

	"fctarget/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridIndexRoundTrip(t *testing.T) {
	g := NewGrid(4, 3, 2)
	for idx := 0; idx < g.Size(); idx++ {
		i, j, k := g.Coords(idx)
		assert.Equal(t, idx, g.Index(i, j, k))
		assert.True(t, g.Contains(i, j, k))
	}
	assert.False(t, g.Contains(4, 0, 0))
}

func TestAffinePhysical(t *testing.T) {
	g := Grid{Nx: 10, Ny: 10, Nz: 10, Affine: ScaledAffine(2, 2, 2, [3]float64{-10, -20, -30})}
	p := g.Physical(g.Index(1, 2, 3))
	assert.Equal(t, [3]float64{-8, -16, -24}, p)
}

func TestMaskValidate(t *testing.T) {
	g := NewGrid(2, 2, 1)
	empty := NewMask("target", g)
	err := empty.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyMask))

	m, err := MaskFromValues("target", g, []float64{0, 1, math.NaN(), 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, m.Indices())
	assert.NoError(t, m.Validate())

	_, err = MaskFromValues("bad", g, []float64{1})
	assert.True(t, errors.Is(err, core.ErrGridMismatch))

	assert.True(t, errors.Is(m.CheckGrid(NewGrid(3, 2, 1)), core.ErrGridMismatch))
}

func TestVolumeSeriesVoxel(t *testing.T) {
	g := NewGrid(2, 1, 1)
	vs := NewVolumeSeries("bold", g, 3)
	vs.SetVoxel(1, []float64{5, 6, 7})
	assert.Equal(t, []float64{5, 6, 7}, vs.Voxel(1, nil))
	assert.Equal(t, []float64{0, 0, 0}, vs.Voxel(0, nil))
	assert.NoError(t, vs.Validate())

	vs.Data = vs.Data[:5]
	assert.True(t, errors.Is(vs.Validate(), core.ErrGridMismatch))
}

func TestTimeSeriesValidate(t *testing.T) {
	assert.True(t, errors.Is(TimeSeries{}.Validate(), core.ErrEmptySeries))
	assert.True(t, errors.Is(TimeSeries{1}.Validate(), core.ErrInvalidInput))
	assert.True(t, errors.Is(TimeSeries{1, math.NaN()}.Validate(), core.ErrInvalidInput))
	assert.NoError(t, TimeSeries{1, 2}.Validate())
}

func TestCorrelationMapMaxAbs(t *testing.T) {
	g := NewGrid(4, 1, 1)
	m := NewCorrelationMap(g)
	mask, err := MaskFromIndices("target", g, []int{0, 1, 2})
	require.NoError(t, err)

	_, ok := m.MaxAbs(mask)
	assert.False(t, ok, "all-undefined map has no maximum")

	m.Values[0] = 0.2
	m.Values[1] = -0.7
	m.Values[3] = 0.99 // outside mask
	max, ok := m.MaxAbs(mask)
	require.True(t, ok)
	assert.InDelta(t, 0.7, max, 1e-12)
	assert.Equal(t, []float64{0.2, -0.7}, m.MaskedValues(mask))
	assert.False(t, m.HasNonFinite(mask))

	m.Values[2] = math.Inf(1)
	assert.True(t, m.HasNonFinite(mask))
}

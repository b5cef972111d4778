package timeseries

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/ports"
)

func fixture() (*volume.VolumeSeries, volume.SpatialMask) {
	g := volume.NewGrid(2, 2, 1)
	vs := volume.NewVolumeSeries("bold", g, 3)
	vs.SetVoxel(0, []float64{1, 2, 3})
	vs.SetVoxel(1, []float64{3, 4, 5})
	vs.SetVoxel(2, []float64{100, 100, 100})
	vs.SetVoxel(3, []float64{-5, -5, -5})
	mask, _ := volume.MaskFromIndices("seed", g, []int{0, 1})
	return vs, mask
}

func TestExtract_Mean(t *testing.T) {
	vs, mask := fixture()

	ts, err := Extract(mask, vs)
	require.NoError(t, err)
	assert.Equal(t, volume.TimeSeries{2, 3, 4}, ts)
}

func TestExtract_Errors(t *testing.T) {
	vs, mask := fixture()

	_, err := Extract(mask, nil)
	assert.ErrorIs(t, err, core.ErrInputNotFound)

	_, err = Extract(volume.SpatialMask{}, vs)
	assert.ErrorIs(t, err, core.ErrInputNotFound)

	_, err = Extract(volume.NewMask("empty", vs.Grid), vs)
	assert.ErrorIs(t, err, core.ErrEmptyMask)

	other, _ := volume.MaskFromIndices("seed", volume.NewGrid(3, 3, 1), []int{0})
	_, err = Extract(other, vs)
	assert.ErrorIs(t, err, core.ErrGridMismatch)

	empty := volume.NewVolumeSeries("empty", vs.Grid, 0)
	_, err = Extract(mask, empty)
	assert.ErrorIs(t, err, core.ErrEmptySeries)
}

func TestExtract_RejectsUnusableSeed(t *testing.T) {
	g := volume.NewGrid(2, 2, 1)
	mask, _ := volume.MaskFromIndices("seed", g, []int{0, 1})

	single := volume.NewVolumeSeries("single", g, 1)
	single.SetVoxel(0, []float64{4})
	_, err := Extract(mask, single)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Contains(t, err.Error(), "single")

	vs, _ := fixture()
	vs.Set(1, 0, math.NaN())
	_, err = Extract(mask, vs)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

type mapLocator struct {
	series map[string]*volume.VolumeSeries
	masks  map[string]volume.SpatialMask
}

func (l *mapLocator) LoadSeries(ctx context.Context, ref string) (*volume.VolumeSeries, error) {
	if s, ok := l.series[ref]; ok {
		return s, nil
	}
	return nil, core.NewInputNotFoundError("series", ref)
}

func (l *mapLocator) LoadMask(ctx context.Context, ref string) (volume.SpatialMask, error) {
	if m, ok := l.masks[ref]; ok {
		return m, nil
	}
	return volume.SpatialMask{}, core.NewInputNotFoundError("mask", ref)
}

var _ ports.VolumeLocator = (*mapLocator)(nil)

func TestExtractFromDataset(t *testing.T) {
	vs, mask := fixture()
	loc := &mapLocator{
		series: map[string]*volume.VolumeSeries{"bold": vs},
		masks:  map[string]volume.SpatialMask{"seed": mask},
	}

	ts, series, err := ExtractFromDataset(context.Background(), loc, "bold", "seed")
	require.NoError(t, err)
	assert.Same(t, vs, series)
	assert.Equal(t, volume.TimeSeries{2, 3, 4}, ts)

	_, _, err = ExtractFromDataset(context.Background(), loc, "missing", "seed")
	assert.ErrorIs(t, err, core.ErrInputNotFound)

	_, _, err = ExtractFromDataset(context.Background(), loc, "bold", "missing")
	assert.ErrorIs(t, err, core.ErrInputNotFound)
}

func TestSaveLoad(t *testing.T) {
	ts := volume.TimeSeries{1.5, -2.25, 3.1234567}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, ts))
	assert.Equal(t, "1.500000\n-2.250000\n3.123457\n", buf.String())

	back, err := Load(&buf)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64(ts), []float64(back), 1e-6)
}

func TestLoad_CommentsAndColumns(t *testing.T) {
	ts, err := Load(strings.NewReader("# seed\n1 2\n\n3\n"))
	require.NoError(t, err)
	assert.Equal(t, volume.TimeSeries{1, 2, 3}, ts)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(strings.NewReader("1\nabc\n"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Load(strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrEmptySeries)

	_, err = Load(strings.NewReader("4.2\n"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

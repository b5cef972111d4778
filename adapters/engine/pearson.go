package engine

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"fctarget/domain/core"
	"fctarget/domain/volume"
)

// ctxCheckEvery is how many voxels are correlated between cancellation checks
const ctxCheckEvery = 1024

// PearsonEngine computes seed-to-voxel Pearson correlation maps in process.
// It is the reference SpatialFieldEngine: pure, deterministic and safe for
// concurrent use because it holds no state.
type PearsonEngine struct{}

// NewPearsonEngine creates a Pearson correlation engine
func NewPearsonEngine() *PearsonEngine {
	return &PearsonEngine{}
}

// Correlate returns r(ts, voxel) for every voxel in target. Voxels outside the
// mask and voxels whose time course has zero variance are NaN.
func (e *PearsonEngine) Correlate(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error) {
	if series == nil {
		return nil, core.NewComputationError("nil volume series")
	}
	if len(ts) != series.T {
		return nil, core.NewComputationError(fmt.Sprintf("time series has %d volumes, dataset has %d", len(ts), series.T))
	}
	if len(ts) < volume.MinTimeSeriesLength {
		return nil, core.NewComputationError(fmt.Sprintf("need at least %d volumes, got %d", volume.MinTimeSeriesLength, len(ts)))
	}
	if !target.Grid.SameShape(series.Grid) || len(target.Voxels) != series.Grid.Size() {
		return nil, core.NewComputationError(fmt.Sprintf("mask grid %s does not match dataset grid %s", target.Grid, series.Grid))
	}

	out := volume.NewCorrelationMap(series.Grid)
	seed := []float64(ts)
	seedConstant := stat.Variance(seed, nil) == 0
	course := make([]float64, series.T)

	visited := 0
	for idx, on := range target.Voxels {
		if !on {
			continue
		}
		visited++
		if visited%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if seedConstant {
			continue
		}
		course = series.Voxel(idx, course)
		if stat.Variance(course, nil) == 0 {
			continue
		}
		r := stat.Correlation(seed, course, nil)
		if math.IsNaN(r) {
			continue
		}
		out.Values[idx] = r
	}

	return out, nil
}

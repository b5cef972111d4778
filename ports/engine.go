package ports

import (
	"context"

	"fctarget/domain/volume"
)

// SpatialFieldEngine computes a voxelwise correlation map between a time
// series and a 4-D volume series, restricted to a mask. Implementations must
// be deterministic for identical inputs and return core.ErrComputation when
// the inputs are inconsistent (length or grid mismatch).
type SpatialFieldEngine interface {
	Correlate(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error)
}

// SpatialFieldEngineFunc adapts a function to SpatialFieldEngine
type SpatialFieldEngineFunc func(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error)

// Correlate calls f
func (f SpatialFieldEngineFunc) Correlate(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error) {
	return f(ctx, ts, series, target)
}

type trialKey struct{}

// WithTrial tags ctx with the permutation trial index an engine call serves
func WithTrial(ctx context.Context, trial int) context.Context {
	return context.WithValue(ctx, trialKey{}, trial)
}

// TrialFromContext returns the trial index set by WithTrial. ok is false for
// the observed-map call.
func TrialFromContext(ctx context.Context) (trial int, ok bool) {
	trial, ok = ctx.Value(trialKey{}).(int)
	return trial, ok
}

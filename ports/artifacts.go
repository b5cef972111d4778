package ports

import (
	"context"

	"fctarget/domain/core"
	"fctarget/domain/volume"
)

// ArtifactSink optionally persists intermediate per-trial artifacts.
// Keys are derived from the run and trial index so concurrent trials never
// collide. Persistence is a side effect only: results never depend on it.
type ArtifactSink interface {
	SaveSeedSeries(ctx context.Context, runID core.RunID, ts volume.TimeSeries) error
	SaveTrial(ctx context.Context, runID core.RunID, trial int, permuted volume.TimeSeries, masked []float64) error
	SaveMaps(ctx context.Context, runID core.RunID, maps MapArtifacts) error
}

// MapArtifacts are the volumes of one run on the observed map's grid.
// Significance holds 1 for target voxels with |r| above threshold and
// Clusters holds each surviving voxel's cluster rank; both are 0 elsewhere.
type MapArtifacts struct {
	Prefix       string
	Observed     *volume.CorrelationMap
	Significance []float64
	Clusters     []float64
}

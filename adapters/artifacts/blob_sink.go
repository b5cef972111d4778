// Package artifacts persists intermediate run artifacts (seed series,
// permuted series, per-trial map values, NIfTI maps) to a blob store.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/klauspost/compress/gzip"

	"fctarget/adapters/blob"
	"fctarget/adapters/nifti"
	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/internal/timeseries"
	"fctarget/ports"
)

const (
	textContentType  = "text/plain; charset=utf-8"
	niftiContentType = "application/gzip"
)

// Map artifact suffixes appended to the output prefix
const (
	SuffixObservedMap = "_seed2target_corr.nii.gz"
	SuffixSigMask     = "_sig_mask.nii.gz"
	SuffixClusterMap  = "_cluster_map.nii.gz"
)

// SeedSeriesKey is where a run's extracted seed series is stored
func SeedSeriesKey(runID core.RunID) string {
	return fmt.Sprintf("%s/avg_ts.1D", runID)
}

// TrialSeriesKey is where a trial's permuted seed series is stored
func TrialSeriesKey(runID core.RunID, trial int) string {
	return fmt.Sprintf("%s/perm/perm_ts_%04d.1D", runID, trial)
}

// TrialValuesKey is where a trial's masked correlation values are stored
func TrialValuesKey(runID core.RunID, trial int) string {
	return fmt.Sprintf("%s/perm/perm_corr_%04d.txt", runID, trial)
}

// MapKey is where a run's map artifact is stored. An empty prefix falls back
// to the run id.
func MapKey(runID core.RunID, prefix, suffix string) string {
	if prefix == "" {
		prefix = runID.String()
	}
	return fmt.Sprintf("%s/%s%s", runID, prefix, suffix)
}

// BlobSink implements ports.ArtifactSink over a blob.Store
type BlobSink struct {
	store blob.Store
}

// NewBlobSink creates an artifact sink
func NewBlobSink(store blob.Store) *BlobSink {
	return &BlobSink{store: store}
}

// SaveSeedSeries writes <run>/avg_ts.1D
func (s *BlobSink) SaveSeedSeries(ctx context.Context, runID core.RunID, ts volume.TimeSeries) error {
	return s.putSeries(ctx, SeedSeriesKey(runID), ts)
}

// SaveTrial writes the permuted series and the masked map values of one trial
func (s *BlobSink) SaveTrial(ctx context.Context, runID core.RunID, trial int, permuted volume.TimeSeries, masked []float64) error {
	if err := s.putSeries(ctx, TrialSeriesKey(runID, trial), permuted); err != nil {
		return err
	}
	return s.putSeries(ctx, TrialValuesKey(runID, trial), volume.TimeSeries(masked))
}

func (s *BlobSink) putSeries(ctx context.Context, key string, values volume.TimeSeries) error {
	var buf bytes.Buffer
	if err := timeseries.Save(&buf, values); err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, key, &buf, blob.PutOptions{ContentType: textContentType}); err != nil {
		return fmt.Errorf("store artifact %s: %w", key, err)
	}
	return nil
}

// SaveMaps writes the observed correlation map, the significance mask and
// the cluster map as gzip'd NIfTI-1 volumes
func (s *BlobSink) SaveMaps(ctx context.Context, runID core.RunID, maps ports.MapArtifacts) error {
	if maps.Observed == nil {
		return fmt.Errorf("save maps for run %s: no observed map", runID)
	}
	g := maps.Observed.Grid

	// undefined voxels are written as 0, as 3dTcorr1D leaves them
	observed := make([]float64, len(maps.Observed.Values))
	for i, v := range maps.Observed.Values {
		if !math.IsNaN(v) {
			observed[i] = v
		}
	}

	volumes := []struct {
		suffix string
		data   []float64
	}{
		{SuffixObservedMap, observed},
		{SuffixSigMask, maps.Significance},
		{SuffixClusterMap, maps.Clusters},
	}
	for _, v := range volumes {
		if v.data == nil {
			continue
		}
		if err := s.putVolume(ctx, MapKey(runID, maps.Prefix, v.suffix), g, v.data); err != nil {
			return err
		}
	}
	return nil
}

func (s *BlobSink) putVolume(ctx context.Context, key string, g volume.Grid, data []float64) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := nifti.Encode(zw, g, 1, data); err != nil {
		return fmt.Errorf("encode artifact %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress artifact %s: %w", key, err)
	}
	if _, err := s.store.Put(ctx, key, &buf, blob.PutOptions{ContentType: niftiContentType}); err != nil {
		return fmt.Errorf("store artifact %s: %w", key, err)
	}
	return nil
}

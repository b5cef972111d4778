// Package timeseries extracts the mean seed signal from a 4-D acquisition and
// reads and writes single-column .1D text series.
package timeseries

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/ports"
)

// Extract averages the seed voxels of every volume. The result has one entry
// per volume of series.
func Extract(seedMask volume.SpatialMask, series *volume.VolumeSeries) (volume.TimeSeries, error) {
	if series == nil {
		return nil, core.NewInputNotFoundError("volume series", "<nil>")
	}
	if seedMask.Voxels == nil {
		return nil, core.NewInputNotFoundError("seed mask", seedMask.Name)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if err := seedMask.CheckGrid(series.Grid); err != nil {
		return nil, err
	}
	if err := seedMask.Validate(); err != nil {
		return nil, err
	}

	idx := seedMask.Indices()
	ts := make(volume.TimeSeries, series.T)
	n := series.Grid.Size()
	for t := 0; t < series.T; t++ {
		frame := series.Data[t*n : (t+1)*n]
		var sum float64
		for _, i := range idx {
			sum += frame[i]
		}
		ts[t] = sum / float64(len(idx))
	}
	if err := ts.Validate(); err != nil {
		return nil, fmt.Errorf("seed time series of %s: %w", series.Name, err)
	}
	return ts, nil
}

// ExtractFromDataset resolves the series and seed mask through a locator
// before extracting
func ExtractFromDataset(ctx context.Context, locator ports.VolumeLocator, seriesRef, maskRef string) (volume.TimeSeries, *volume.VolumeSeries, error) {
	series, err := locator.LoadSeries(ctx, seriesRef)
	if err != nil {
		return nil, nil, fmt.Errorf("load series %s: %w", seriesRef, err)
	}
	mask, err := locator.LoadMask(ctx, maskRef)
	if err != nil {
		return nil, nil, fmt.Errorf("load seed mask %s: %w", maskRef, err)
	}
	ts, err := Extract(mask, series)
	if err != nil {
		return nil, nil, err
	}
	return ts, series, nil
}

// Load reads whitespace-separated values. Lines starting with '#' are
// comments.
func Load(r io.Reader) (volume.TimeSeries, error) {
	var ts volume.TimeSeries
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.Fields(text) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, core.NewValidationError("time series", fmt.Sprintf("line %d: %q is not a number", line, field))
			}
			ts = append(ts, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read time series: %w", err)
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Save writes one value per line with six decimals
func Save(w io.Writer, ts volume.TimeSeries) error {
	bw := bufio.NewWriter(w)
	for _, v := range ts {
		if _, err := fmt.Fprintf(bw, "%.6f\n", v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

package volume

import (
	"fmt"
	"math"

	"fctarget/domain/core"
)

// MinTimeSeriesLength is the shortest series a correlation can be computed on
const MinTimeSeriesLength = 2

// TimeSeries is one region's mean signal per acquisition volume
type TimeSeries []float64

// Len returns the number of volumes
func (ts TimeSeries) Len() int { return len(ts) }

// Clone returns an independent copy
func (ts TimeSeries) Clone() TimeSeries {
	out := make(TimeSeries, len(ts))
	copy(out, ts)
	return out
}

// Validate enforces T >= 2 and no missing values
func (ts TimeSeries) Validate() error {
	if len(ts) == 0 {
		return core.ErrEmptySeries
	}
	if len(ts) < MinTimeSeriesLength {
		return core.NewValidationError("time series", fmt.Sprintf("length %d < %d", len(ts), MinTimeSeriesLength))
	}
	for i, v := range ts {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewValidationError("time series", fmt.Sprintf("non-finite value at volume %d", i))
		}
	}
	return nil
}

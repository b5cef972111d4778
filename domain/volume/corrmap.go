package volume

import (
	"math"
)

// CorrelationMap is a scalar field over a grid. NaN marks an undefined voxel
// (outside the mask or with a degenerate time course).
type CorrelationMap struct {
	Grid   Grid
	Values []float64
}

// NewCorrelationMap allocates a map with every voxel undefined
func NewCorrelationMap(g Grid) *CorrelationMap {
	values := make([]float64, g.Size())
	for i := range values {
		values[i] = math.NaN()
	}
	return &CorrelationMap{Grid: g, Values: values}
}

// Defined reports whether voxel idx carries a value
func (m *CorrelationMap) Defined(idx int) bool {
	return !math.IsNaN(m.Values[idx])
}

// MaskedValues returns the defined values inside the mask, in index order
func (m *CorrelationMap) MaskedValues(mask SpatialMask) []float64 {
	out := make([]float64, 0, mask.Count())
	for idx, on := range mask.Voxels {
		if on && idx < len(m.Values) && !math.IsNaN(m.Values[idx]) {
			out = append(out, m.Values[idx])
		}
	}
	return out
}

// MaxAbs returns the largest |value| over defined voxels inside the mask.
// ok is false when no voxel is defined.
func (m *CorrelationMap) MaxAbs(mask SpatialMask) (max float64, ok bool) {
	for idx, on := range mask.Voxels {
		if !on || idx >= len(m.Values) {
			continue
		}
		v := m.Values[idx]
		if math.IsNaN(v) {
			continue
		}
		if a := math.Abs(v); !ok || a > max {
			max = a
			ok = true
		}
	}
	return max, ok
}

// HasNonFinite reports whether any masked voxel holds ±Inf
func (m *CorrelationMap) HasNonFinite(mask SpatialMask) bool {
	for idx, on := range mask.Voxels {
		if on && idx < len(m.Values) && math.IsInf(m.Values[idx], 0) {
			return true
		}
	}
	return false
}

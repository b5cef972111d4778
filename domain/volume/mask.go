package volume

import (
	"fmt"
	"math"

	"fctarget/domain/core"
)

// SpatialMask selects the voxels of a grid where statistics are computed
type SpatialMask struct {
	Grid   Grid
	Voxels []bool
	Name   string
}

// NewMask builds an empty mask over a grid
func NewMask(name string, g Grid) SpatialMask {
	return SpatialMask{Grid: g, Voxels: make([]bool, g.Size()), Name: name}
}

// MaskFromValues marks every non-zero, non-NaN value as selected
func MaskFromValues(name string, g Grid, values []float64) (SpatialMask, error) {
	if len(values) != g.Size() {
		return SpatialMask{}, core.NewGridMismatchError("mask values", g.Size(), len(values))
	}
	m := NewMask(name, g)
	for i, v := range values {
		m.Voxels[i] = v != 0 && !math.IsNaN(v)
	}
	return m, nil
}

// MaskFromIndices selects the given flat indices
func MaskFromIndices(name string, g Grid, indices []int) (SpatialMask, error) {
	m := NewMask(name, g)
	for _, idx := range indices {
		if idx < 0 || idx >= g.Size() {
			return SpatialMask{}, core.NewValidationError("mask index", fmt.Sprintf("%d out of range [0,%d)", idx, g.Size()))
		}
		m.Voxels[idx] = true
	}
	return m, nil
}

// Set toggles a single voxel
func (m SpatialMask) Set(i, j, k int, on bool) {
	m.Voxels[m.Grid.Index(i, j, k)] = on
}

// Contains reports whether a flat index is selected
func (m SpatialMask) Contains(idx int) bool {
	return idx >= 0 && idx < len(m.Voxels) && m.Voxels[idx]
}

// Count returns the number of selected voxels
func (m SpatialMask) Count() int {
	n := 0
	for _, on := range m.Voxels {
		if on {
			n++
		}
	}
	return n
}

// Indices returns selected flat indices in ascending order
func (m SpatialMask) Indices() []int {
	out := make([]int, 0, m.Count())
	for idx, on := range m.Voxels {
		if on {
			out = append(out, idx)
		}
	}
	return out
}

// Validate enforces the mask invariants: non-empty and consistent with its grid
func (m SpatialMask) Validate() error {
	if err := m.Grid.Validate(); err != nil {
		return core.NewValidationError("mask "+m.Name, err.Error())
	}
	if len(m.Voxels) != m.Grid.Size() {
		return core.NewGridMismatchError("mask "+m.Name, m.Grid.Size(), len(m.Voxels))
	}
	if m.Count() == 0 {
		return core.NewEmptyMaskError(m.label())
	}
	return nil
}

// CheckGrid verifies the mask is defined over the same lattice as g
func (m SpatialMask) CheckGrid(g Grid) error {
	if !m.Grid.SameShape(g) {
		return core.NewGridMismatchError("mask "+m.label(), g.String(), m.Grid.String())
	}
	return nil
}

func (m SpatialMask) label() string {
	if m.Name == "" {
		return "mask"
	}
	return m.Name
}

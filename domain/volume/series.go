package volume

import (
	"fctarget/domain/core"
)

// VolumeSeries is a 4-D acquisition: T volumes over a common grid.
// Data is volume-major: Data[t*Grid.Size()+idx].
type VolumeSeries struct {
	Grid Grid
	T    int
	Data []float64
	Name string
}

// NewVolumeSeries allocates a zeroed series
func NewVolumeSeries(name string, g Grid, t int) *VolumeSeries {
	return &VolumeSeries{Grid: g, T: t, Data: make([]float64, g.Size()*t), Name: name}
}

// Validate checks the buffer matches the declared shape
func (v *VolumeSeries) Validate() error {
	if v == nil {
		return core.NewInputNotFoundError("volume series", "<nil>")
	}
	if err := v.Grid.Validate(); err != nil {
		return core.NewValidationError("volume series "+v.Name, err.Error())
	}
	if v.T < 1 {
		return core.ErrEmptySeries
	}
	if len(v.Data) != v.Grid.Size()*v.T {
		return core.NewGridMismatchError("volume series "+v.Name, v.Grid.Size()*v.T, len(v.Data))
	}
	return nil
}

// At returns the value of voxel idx at volume t
func (v *VolumeSeries) At(t, idx int) float64 {
	return v.Data[t*v.Grid.Size()+idx]
}

// Set writes the value of voxel idx at volume t
func (v *VolumeSeries) Set(t, idx int, value float64) {
	v.Data[t*v.Grid.Size()+idx] = value
}

// Voxel copies out one voxel's time course into dst (allocated if too small)
func (v *VolumeSeries) Voxel(idx int, dst []float64) []float64 {
	if cap(dst) < v.T {
		dst = make([]float64, v.T)
	}
	dst = dst[:v.T]
	n := v.Grid.Size()
	for t := 0; t < v.T; t++ {
		dst[t] = v.Data[t*n+idx]
	}
	return dst
}

// SetVoxel writes a full time course for one voxel
func (v *VolumeSeries) SetVoxel(idx int, course []float64) {
	n := v.Grid.Size()
	for t := 0; t < v.T && t < len(course); t++ {
		v.Data[t*n+idx] = course[t]
	}
}

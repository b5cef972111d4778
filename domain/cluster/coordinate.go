package cluster

import (
	"fmt"
)

// Space tags the convention a coordinate is expressed in.
//
// Native coordinates use the DICOM/RAI order printed by AFNI's 3dCM and
// 3dClusterize: +x is left and +y is posterior. Target coordinates are
// RAS+ (MNI/Talairach, +x right, +y anterior) as neuronavigation expects.
// The NIfTI sform and qform map voxels into RAS+, so a point taken from a
// map's affine enters native space through FromRAS.
type Space string

const (
	SpaceNative Space = "native"
	SpaceTarget Space = "target"
)

// Coordinate is an immutable 3-tuple tagged with its space
type Coordinate struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Space Space   `json:"space"`
}

// NewCoordinate builds a coordinate in the given space
func NewCoordinate(x, y, z float64, space Space) Coordinate {
	return Coordinate{X: x, Y: y, Z: z, Space: space}
}

// FromRAS expresses a scanner RAS+ point in native (RAI) space
func FromRAS(p [3]float64) Coordinate {
	return NewCoordinate(-p[0], -p[1], p[2], SpaceNative)
}

// Values returns the coordinate as a 3-element slice
func (c Coordinate) Values() []float64 {
	return []float64{c.X, c.Y, c.Z}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f) [%s]", c.X, c.Y, c.Z, c.Space)
}

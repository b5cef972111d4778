// Package coords converts cluster coordinates between native DICOM/RAI
// order and the RAS+ (MNI) targeting convention, where x and y are negated.
package coords

import (
	"fmt"
	"strconv"
	"strings"

	"fctarget/domain/cluster"
	"fctarget/domain/core"
)

// ToTargetSpace maps a native coordinate (x, y, z) to (-x, -y, z). A
// coordinate already in target space is returned unchanged.
func ToTargetSpace(c cluster.Coordinate) cluster.Coordinate {
	if c.Space == cluster.SpaceTarget {
		return c
	}
	return cluster.NewCoordinate(-c.X, -c.Y, c.Z, cluster.SpaceTarget)
}

// ToNativeSpace is the inverse of ToTargetSpace
func ToNativeSpace(c cluster.Coordinate) cluster.Coordinate {
	if c.Space != cluster.SpaceTarget {
		return c
	}
	return cluster.NewCoordinate(-c.X, -c.Y, c.Z, cluster.SpaceNative)
}

// FromValues builds a coordinate from exactly three values
func FromValues(vals []float64, space cluster.Space) (cluster.Coordinate, error) {
	if len(vals) != 3 {
		return cluster.Coordinate{}, fmt.Errorf("%w: expected 3 values, got %d", core.ErrMalformedCoordinate, len(vals))
	}
	return cluster.NewCoordinate(vals[0], vals[1], vals[2], space), nil
}

// Parse reads "x y z" or "x, y, z" as printed by clustering tools
func Parse(text string, space cluster.Space) (cluster.Coordinate, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return cluster.Coordinate{}, fmt.Errorf("%w: %q is not a number", core.ErrMalformedCoordinate, f)
		}
		vals = append(vals, v)
	}
	return FromValues(vals, space)
}

// Format renders a coordinate as "x, y, z" with two decimals
func Format(c cluster.Coordinate) string {
	return fmt.Sprintf("%.2f, %.2f, %.2f", c.X, c.Y, c.Z)
}

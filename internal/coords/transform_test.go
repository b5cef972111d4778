package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/domain/cluster"
	"fctarget/domain/core"
)

func TestToTargetSpace(t *testing.T) {
	in := cluster.NewCoordinate(40.2, -52.3, 28.0, cluster.SpaceNative)

	out := ToTargetSpace(in)

	assert.Equal(t, cluster.NewCoordinate(-40.2, 52.3, 28.0, cluster.SpaceTarget), out)
	assert.Equal(t, cluster.SpaceNative, in.Space, "input must not change")
}

func TestToTargetSpace_AlreadyTarget(t *testing.T) {
	c := cluster.NewCoordinate(-1, 2, 3, cluster.SpaceTarget)
	assert.Equal(t, c, ToTargetSpace(c))
}

func TestRoundTrip(t *testing.T) {
	c := cluster.NewCoordinate(12.5, -3.25, -7, cluster.SpaceNative)
	assert.Equal(t, c, ToNativeSpace(ToTargetSpace(c)))
	assert.Equal(t, c, ToNativeSpace(c))
}

func TestFromValues(t *testing.T) {
	c, err := FromValues([]float64{1, 2, 3}, cluster.SpaceNative)
	require.NoError(t, err)
	assert.Equal(t, cluster.NewCoordinate(1, 2, 3, cluster.SpaceNative), c)

	for _, vals := range [][]float64{nil, {1, 2}, {1, 2, 3, 4}} {
		_, err := FromValues(vals, cluster.SpaceNative)
		assert.ErrorIs(t, err, core.ErrMalformedCoordinate)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    cluster.Coordinate
		wantErr bool
	}{
		{"40.2 -52.3 28", cluster.NewCoordinate(40.2, -52.3, 28, cluster.SpaceNative), false},
		{"40.2, -52.3, 28.0\n", cluster.NewCoordinate(40.2, -52.3, 28, cluster.SpaceNative), false},
		{"1 2", cluster.Coordinate{}, true},
		{"1 2 x", cluster.Coordinate{}, true},
		{"", cluster.Coordinate{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in, cluster.SpaceNative)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrMalformedCoordinate, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormat(t *testing.T) {
	c := cluster.NewCoordinate(-40.2, 52.3, 28, cluster.SpaceTarget)
	assert.Equal(t, "-40.20, 52.30, 28.00", Format(c))
}

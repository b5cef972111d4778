package volume

import (
	"fmt"
)

// Affine maps voxel indices (i, j, k) to physical coordinates (x, y, z).
// Rows follow the NIfTI sform layout: x = R[0][0]*i + R[0][1]*j + R[0][2]*k + R[0][3].
type Affine [3][4]float64

// IdentityAffine returns an affine with unit voxels at the origin
func IdentityAffine() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// ScaledAffine returns a diagonal affine with the given voxel sizes and origin offset
func ScaledAffine(dx, dy, dz float64, origin [3]float64) Affine {
	return Affine{
		{dx, 0, 0, origin[0]},
		{0, dy, 0, origin[1]},
		{0, 0, dz, origin[2]},
	}
}

// Apply maps continuous voxel coordinates to physical space
func (a Affine) Apply(i, j, k float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = a[r][0]*i + a[r][1]*j + a[r][2]*k + a[r][3]
	}
	return out
}

// Grid describes a 3-D voxel lattice and its placement in physical space.
// Voxels are stored x-fastest: idx = i + Nx*(j + Ny*k), the NIfTI on-disk order.
type Grid struct {
	Nx, Ny, Nz int
	Affine     Affine
}

// NewGrid creates a grid with an identity affine
func NewGrid(nx, ny, nz int) Grid {
	return Grid{Nx: nx, Ny: ny, Nz: nz, Affine: IdentityAffine()}
}

// Size returns the number of voxels in the grid
func (g Grid) Size() int {
	return g.Nx * g.Ny * g.Nz
}

// Validate checks that every dimension is positive
func (g Grid) Validate() error {
	if g.Nx <= 0 || g.Ny <= 0 || g.Nz <= 0 {
		return fmt.Errorf("invalid grid dimensions %dx%dx%d", g.Nx, g.Ny, g.Nz)
	}
	return nil
}

// SameShape reports whether two grids index the same lattice
func (g Grid) SameShape(o Grid) bool {
	return g.Nx == o.Nx && g.Ny == o.Ny && g.Nz == o.Nz
}

// Index returns the flat index of voxel (i, j, k)
func (g Grid) Index(i, j, k int) int {
	return i + g.Nx*(j+g.Ny*k)
}

// Coords returns the (i, j, k) voxel indices of a flat index
func (g Grid) Coords(idx int) (int, int, int) {
	i := idx % g.Nx
	j := (idx / g.Nx) % g.Ny
	k := idx / (g.Nx * g.Ny)
	return i, j, k
}

// Contains reports whether (i, j, k) lies inside the grid
func (g Grid) Contains(i, j, k int) bool {
	return i >= 0 && i < g.Nx && j >= 0 && j < g.Ny && k >= 0 && k < g.Nz
}

// Physical returns the physical coordinate of a voxel center
func (g Grid) Physical(idx int) [3]float64 {
	i, j, k := g.Coords(idx)
	return g.Affine.Apply(float64(i), float64(j), float64(k))
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d", g.Nx, g.Ny, g.Nz)
}

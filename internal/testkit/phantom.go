package testkit

import (
	"fmt"
	"math"
	"math/rand/v2"

	"fctarget/domain/volume"
)

// Box is a half-open voxel range [Min, Max) on each axis
type Box struct {
	Min [3]int
	Max [3]int
}

// Voxels returns the flat indices inside the box, clipped to g
func (b Box) Voxels(g volume.Grid) []int {
	var out []int
	for k := b.Min[2]; k < b.Max[2]; k++ {
		for j := b.Min[1]; j < b.Max[1]; j++ {
			for i := b.Min[0]; i < b.Max[0]; i++ {
				if g.Contains(i, j, k) {
					out = append(out, g.Index(i, j, k))
				}
			}
		}
	}
	return out
}

// PlantedCluster is a region whose signal follows the seed driver
type PlantedCluster struct {
	Region   Box
	Coupling float64 // negative values plant anticorrelation
}

// PhantomConfig holds configuration for synthetic acquisitions
type PhantomConfig struct {
	Nx, Ny, Nz int
	T          int
	VoxelSize  float64
	Noise      float64
	Seed       uint64
	SeedRegion Box
	Planted    []PlantedCluster
}

// DefaultPhantomConfig returns a small volume with one strongly coupled
// target cluster and one anticorrelated cluster
func DefaultPhantomConfig() PhantomConfig {
	return PhantomConfig{
		Nx:         10,
		Ny:         10,
		Nz:         6,
		T:          40,
		VoxelSize:  2,
		Noise:      1,
		Seed:       42,
		SeedRegion: Box{Min: [3]int{0, 0, 0}, Max: [3]int{2, 2, 2}},
		Planted: []PlantedCluster{
			{Region: Box{Min: [3]int{5, 5, 2}, Max: [3]int{8, 8, 4}}, Coupling: 3},
			{Region: Box{Min: [3]int{1, 6, 3}, Max: [3]int{3, 8, 5}}, Coupling: -3},
		},
	}
}

// Phantom is a generated acquisition with its masks
type Phantom struct {
	Series     *volume.VolumeSeries
	SeedMask   volume.SpatialMask
	TargetMask volume.SpatialMask
	Driver     volume.TimeSeries
}

// PhantomGenerator creates synthetic 4-D series with known coupling
type PhantomGenerator struct {
	config PhantomConfig
	rng    *rand.Rand
}

// NewPhantomGenerator creates a deterministic generator
func NewPhantomGenerator(config PhantomConfig) *PhantomGenerator {
	return &PhantomGenerator{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, 0x5eed)),
	}
}

// Generate builds the series, the seed mask and the target mask (every voxel
// outside the seed region)
func (g *PhantomGenerator) Generate() (*Phantom, error) {
	c := g.config
	grid := volume.NewGrid(c.Nx, c.Ny, c.Nz)
	if c.VoxelSize > 0 {
		grid.Affine = volume.ScaledAffine(c.VoxelSize, c.VoxelSize, c.VoxelSize, [3]float64{
			-float64(c.Nx) * c.VoxelSize / 2,
			-float64(c.Ny) * c.VoxelSize / 2,
			-float64(c.Nz) * c.VoxelSize / 2,
		})
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if c.T < volume.MinTimeSeriesLength {
		return nil, fmt.Errorf("phantom needs at least %d volumes, got %d", volume.MinTimeSeriesLength, c.T)
	}

	driver := make(volume.TimeSeries, c.T)
	for t := range driver {
		driver[t] = math.Sin(2*math.Pi*float64(t)/8) + 0.5*g.rng.NormFloat64()
	}

	coupling := make([]float64, grid.Size())
	seedIdx := c.SeedRegion.Voxels(grid)
	for _, idx := range seedIdx {
		coupling[idx] = 1
	}
	for _, p := range c.Planted {
		for _, idx := range p.Region.Voxels(grid) {
			coupling[idx] = p.Coupling
		}
	}

	series := volume.NewVolumeSeries("phantom", grid, c.T)
	course := make([]float64, c.T)
	for idx := 0; idx < grid.Size(); idx++ {
		for t := range course {
			course[t] = 100 + coupling[idx]*driver[t] + c.Noise*g.rng.NormFloat64()
		}
		series.SetVoxel(idx, course)
	}

	seedMask, err := volume.MaskFromIndices("seed", grid, seedIdx)
	if err != nil {
		return nil, err
	}
	target := volume.NewMask("target", grid)
	for idx := range target.Voxels {
		target.Voxels[idx] = !seedMask.Voxels[idx]
	}

	return &Phantom{Series: series, SeedMask: seedMask, TargetMask: target, Driver: driver}, nil
}

// BoxMask builds a named mask from a box
func BoxMask(name string, g volume.Grid, b Box) volume.SpatialMask {
	m := volume.NewMask(name, g)
	for _, idx := range b.Voxels(g) {
		m.Voxels[idx] = true
	}
	return m
}

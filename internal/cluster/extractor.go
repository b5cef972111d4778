// Package cluster thresholds an observed correlation map and groups the
// surviving voxels into spatially connected clusters.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"fctarget/domain/cluster"
	"fctarget/domain/core"
	"fctarget/domain/stats"
	"fctarget/domain/volume"
	"fctarget/internal"
)

// Options configures cluster extraction
type Options struct {
	MinVoxels    int
	Connectivity cluster.Connectivity
	// Bisided grows positive and negative voxels into separate clusters
	Bisided    bool
	CenterMode cluster.CenterMode
}

// DefaultOptions returns face connectivity, unweighted centers and a
// five-voxel minimum
func DefaultOptions() Options {
	return Options{
		MinVoxels:    5,
		Connectivity: cluster.NN1,
		CenterMode:   cluster.CenterUnweighted,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.MinVoxels < 1 {
		return core.NewValidationError("min_voxels", fmt.Sprintf("must be >= 1, got %d", o.MinVoxels))
	}
	if err := o.Connectivity.Validate(); err != nil {
		return core.NewValidationError("connectivity", err.Error())
	}
	if _, err := cluster.ParseCenterMode(string(o.CenterMode)); err != nil {
		return core.NewValidationError("center_mode", err.Error())
	}
	return nil
}

// Extractor finds supra-threshold clusters
type Extractor struct {
	logger *internal.Logger
}

// NewExtractor creates a cluster extractor
func NewExtractor(logger *internal.Logger) *Extractor {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Extractor{logger: logger.Component("cluster")}
}

// Extract returns the clusters of target voxels with |v| > thr, ranked by size
// descending, then |peak| descending, then lowest voxel index. An empty slice
// is a valid result.
func (e *Extractor) Extract(obs *volume.CorrelationMap, thr stats.Threshold, target volume.SpatialMask, opts Options) ([]cluster.Cluster, error) {
	if obs == nil {
		return nil, core.NewValidationError("observed map", "nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(thr.Value) || thr.Value < 0 {
		return nil, core.NewValidationError("threshold", fmt.Sprintf("must be a non-negative number, got %v", thr.Value))
	}
	if err := target.CheckGrid(obs.Grid); err != nil {
		return nil, err
	}
	if len(obs.Values) != obs.Grid.Size() {
		return nil, core.NewGridMismatchError("observed map", obs.Grid.Size(), len(obs.Values))
	}

	// label: 0 = not significant, +1/-1 = sign group (always +1 when not bisided)
	label := make([]int8, len(obs.Values))
	for idx, on := range target.Voxels {
		v := obs.Values[idx]
		if !on || !significant(v, thr.Value) {
			continue
		}
		label[idx] = 1
		if opts.Bisided && v < 0 {
			label[idx] = -1
		}
	}

	offsets := neighbourOffsets(opts.Connectivity)
	visited := make([]bool, len(label))
	var clusters []cluster.Cluster
	dropped := 0

	for seed := range label {
		if label[seed] == 0 || visited[seed] {
			continue
		}
		voxels := grow(obs.Grid, label, visited, seed, offsets)
		if len(voxels) < opts.MinVoxels {
			dropped++
			continue
		}
		clusters = append(clusters, describe(obs, voxels, opts.CenterMode))
	}

	sort.SliceStable(clusters, func(a, b int) bool {
		ca, cb := clusters[a], clusters[b]
		if ca.Size != cb.Size {
			return ca.Size > cb.Size
		}
		if pa, pb := math.Abs(ca.Peak), math.Abs(cb.Peak); pa != pb {
			return pa > pb
		}
		return ca.Voxels[0] < cb.Voxels[0]
	})
	for i := range clusters {
		clusters[i].Rank = i + 1
	}

	e.logger.Debug("[Cluster] thr=%.4f %s min=%d: %d clusters kept, %d below size", thr.Value, opts.Connectivity, opts.MinVoxels, len(clusters), dropped)
	return clusters, nil
}

func significant(v, thr float64) bool {
	return !math.IsNaN(v) && math.Abs(v) > thr
}

// SignificanceMask marks target voxels with |v| > thr as 1, everything else 0
func SignificanceMask(obs *volume.CorrelationMap, thr stats.Threshold, target volume.SpatialMask) []float64 {
	out := make([]float64, len(obs.Values))
	for idx, on := range target.Voxels {
		if on && idx < len(out) && significant(obs.Values[idx], thr.Value) {
			out[idx] = 1
		}
	}
	return out
}

// ClusterMap labels every voxel of a cluster with the cluster's rank
func ClusterMap(g volume.Grid, clusters []cluster.Cluster) []float64 {
	out := make([]float64, g.Size())
	for _, c := range clusters {
		for _, idx := range c.Voxels {
			out[idx] = float64(c.Rank)
		}
	}
	return out
}

// neighbourOffsets lists the (di,dj,dk) steps allowed by a connectivity rule.
// NN1 allows one changed axis, NN2 two, NN3 three.
func neighbourOffsets(c cluster.Connectivity) [][3]int {
	var out [][3]int
	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				changed := abs(di) + abs(dj) + abs(dk)
				if changed == 0 || changed > int(c) {
					continue
				}
				out = append(out, [3]int{di, dj, dk})
			}
		}
	}
	return out
}

// grow collects the component containing seed with breadth-first search.
// Voxels are returned in ascending index order.
func grow(g volume.Grid, label []int8, visited []bool, seed int, offsets [][3]int) []int {
	group := label[seed]
	visited[seed] = true
	queue := []int{seed}
	var voxels []int

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		voxels = append(voxels, idx)

		i, j, k := g.Coords(idx)
		for _, o := range offsets {
			ni, nj, nk := i+o[0], j+o[1], k+o[2]
			if !g.Contains(ni, nj, nk) {
				continue
			}
			n := g.Index(ni, nj, nk)
			if visited[n] || label[n] != group {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}

	sort.Ints(voxels)
	return voxels
}

func describe(obs *volume.CorrelationMap, voxels []int, mode cluster.CenterMode) cluster.Cluster {
	g := obs.Grid
	c := cluster.Cluster{Size: len(voxels), Voxels: voxels}

	var ci, cj, ck, wsum, sum float64
	peakIdx := voxels[0]
	pos, neg := 0, 0
	for _, idx := range voxels {
		v := obs.Values[idx]
		sum += v
		if v > 0 {
			pos++
		} else if v < 0 {
			neg++
		}
		if math.Abs(v) > math.Abs(obs.Values[peakIdx]) {
			peakIdx = idx
		}

		w := 1.0
		if mode == cluster.CenterAbsWeighted {
			w = math.Abs(v)
		}
		i, j, k := g.Coords(idx)
		ci += w * float64(i)
		cj += w * float64(j)
		ck += w * float64(k)
		wsum += w
	}

	c.CenterOfMass = cluster.FromRAS(g.Affine.Apply(ci/wsum, cj/wsum, ck/wsum))
	c.Peak = obs.Values[peakIdx]
	c.PeakCoordinate = cluster.FromRAS(g.Physical(peakIdx))
	c.MeanValue = sum / float64(len(voxels))

	switch {
	case neg == 0:
		c.Sign = cluster.SignPositive
	case pos == 0:
		c.Sign = cluster.SignNegative
	default:
		c.Sign = cluster.SignMixed
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

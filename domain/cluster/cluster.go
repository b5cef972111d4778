package cluster

import (
	"fmt"
	"strings"
)

// Connectivity is the voxel adjacency rule used when growing clusters
type Connectivity int

const (
	// NN1 joins voxels sharing a face (6 neighbours)
	NN1 Connectivity = 1
	// NN2 also joins voxels sharing an edge (18 neighbours)
	NN2 Connectivity = 2
	// NN3 also joins voxels sharing a corner (26 neighbours)
	NN3 Connectivity = 3
)

// Validate rejects unknown rules
func (c Connectivity) Validate() error {
	if c < NN1 || c > NN3 {
		return fmt.Errorf("connectivity must be 1, 2 or 3, got %d", int(c))
	}
	return nil
}

func (c Connectivity) String() string {
	return fmt.Sprintf("NN=%d", int(c))
}

// CenterMode selects how a cluster's center of mass is weighted
type CenterMode string

const (
	// CenterUnweighted averages voxel centers (volume-weighted)
	CenterUnweighted CenterMode = "unweighted"
	// CenterAbsWeighted weights voxel centers by |statistic|
	CenterAbsWeighted CenterMode = "abs_weighted"
)

// ParseCenterMode accepts the config spelling of a center mode
func ParseCenterMode(s string) (CenterMode, error) {
	switch CenterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CenterUnweighted:
		return CenterUnweighted, nil
	case CenterAbsWeighted:
		return CenterAbsWeighted, nil
	default:
		return "", fmt.Errorf("unknown center mode %q", s)
	}
}

// Sign of a cluster's statistic
type Sign int

const (
	SignMixed    Sign = 0
	SignPositive Sign = 1
	SignNegative Sign = -1
)

func (s Sign) String() string {
	switch s {
	case SignPositive:
		return "positive"
	case SignNegative:
		return "negative"
	default:
		return "mixed"
	}
}

// Cluster is a connected supra-threshold voxel set of the observed map
type Cluster struct {
	// Rank orders clusters: 1 is the largest
	Rank int `json:"rank"`

	Size   int   `json:"size"`
	Voxels []int `json:"-"`

	// CenterOfMass is in the map's native physical space
	CenterOfMass Coordinate `json:"center_of_mass"`

	// Peak is the signed value with the largest magnitude
	Peak           float64    `json:"peak"`
	PeakCoordinate Coordinate `json:"peak_coordinate"`
	MeanValue      float64    `json:"mean_value"`
	Sign           Sign       `json:"sign"`
}

// SelectionPolicy chooses "the" target among surviving clusters
type SelectionPolicy string

const (
	// SelectLargest picks the cluster with the most voxels
	SelectLargest SelectionPolicy = "largest"
	// SelectPeak picks the cluster with the highest |peak|
	SelectPeak SelectionPolicy = "peak"
)

// ParseSelectionPolicy accepts the config spelling of a policy
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SelectLargest:
		return SelectLargest, nil
	case SelectPeak:
		return SelectPeak, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q", s)
	}
}

// Select returns the index of the chosen cluster, or -1 for an empty set
func (p SelectionPolicy) Select(clusters []Cluster) int {
	best := -1
	for i, c := range clusters {
		if best < 0 {
			best = i
			continue
		}
		b := clusters[best]
		switch p {
		case SelectPeak:
			if abs(c.Peak) > abs(b.Peak) || (abs(c.Peak) == abs(b.Peak) && c.Size > b.Size) {
				best = i
			}
		default:
			if c.Size > b.Size || (c.Size == b.Size && abs(c.Peak) > abs(b.Peak)) {
				best = i
			}
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package stats

import (
	"fmt"
	"sort"
)

// SkipReason classifies why a permutation trial was excluded from the null distribution
type SkipReason string

const (
	SkipEngineError SkipReason = "engine_error"
	SkipTimeout     SkipReason = "timeout"
	SkipEmptyOutput SkipReason = "empty_output"
	SkipNonNumeric  SkipReason = "non_numeric"
	SkipEnginePanic SkipReason = "engine_panic"
)

// SkippedTrial records one excluded trial
type SkippedTrial struct {
	Trial  int        `json:"trial"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// SkipReport is the structured account of every excluded trial
type SkipReport struct {
	Count    int                `json:"count"`
	ByReason map[SkipReason]int `json:"by_reason"`
	Trials   []SkippedTrial     `json:"trials"`
}

// Add records a skipped trial
func (r *SkipReport) Add(s SkippedTrial) {
	if r.ByReason == nil {
		r.ByReason = make(map[SkipReason]int)
	}
	r.Count++
	r.ByReason[s.Reason]++
	r.Trials = append(r.Trials, s)
}

// String renders counts in a stable order, e.g. "2 skipped (engine_error=1, timeout=1)"
func (r SkipReport) String() string {
	if r.Count == 0 {
		return "0 skipped"
	}
	reasons := make([]string, 0, len(r.ByReason))
	for reason := range r.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	out := fmt.Sprintf("%d skipped (", r.Count)
	for i, reason := range reasons {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", reason, r.ByReason[SkipReason(reason)])
	}
	return out + ")"
}

// NullDistribution holds the peak |r| of every successful permutation trial.
// Values are ordered by trial index so identical seeds give identical slices.
type NullDistribution struct {
	Values    []float64  `json:"values"`
	Requested int        `json:"requested"`
	Skipped   SkipReport `json:"skipped"`
}

// Len returns the effective sample size
func (d *NullDistribution) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Values)
}

// Threshold is the two-sided critical |r| derived from a null distribution
type Threshold struct {
	Value      float64 `json:"value"`
	Alpha      float64 `json:"alpha"`
	Percentile float64 `json:"percentile"`
	N          int     `json:"n"`
}

// NullSummary provides key statistics about the null distribution
type NullSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Percentile95 float64 `json:"p95"`
	Percentile99 float64 `json:"p99"`
}

// MapSummary describes the observed correlation map inside the target mask
type MapSummary struct {
	Grid           string  `json:"grid"`
	DefinedVoxels  int     `json:"defined_voxels"`
	TargetVoxels   int     `json:"target_voxels"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Mean           float64 `json:"mean"`
	MaxAbs         float64 `json:"max_abs"`
	SupraThreshold int     `json:"supra_threshold"`
}

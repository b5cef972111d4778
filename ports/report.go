package ports

import (
	"context"
	"time"

	"fctarget/domain/cluster"
	"fctarget/domain/core"
	"fctarget/domain/run"
	"fctarget/domain/stats"
)

// RunStatus is the terminal outcome of a targeting run
type RunStatus string

const (
	// StatusTargetFound means at least one cluster survived
	StatusTargetFound RunStatus = "target_found"
	// StatusNoCluster is a valid negative result, not a failure
	StatusNoCluster RunStatus = "no_cluster"
	// StatusFailed marks a run aborted by a fatal error
	StatusFailed RunStatus = "failed"
)

// RunParameters echoes the inputs a report was produced from
type RunParameters struct {
	TimeSeries       string  `json:"time_series"`
	SeedMask         string  `json:"seed_mask"`
	TargetMask       string  `json:"target_mask"`
	OutputPrefix     string  `json:"output_prefix"`
	Permutations     int     `json:"permutations"`
	Alpha            float64 `json:"alpha"`
	MinClusterVoxels int     `json:"min_cluster_voxels"`
	Connectivity     int     `json:"connectivity"`
	Bisided          bool    `json:"bisided"`
	CenterMode       string  `json:"center_mode"`
	SelectionPolicy  string  `json:"selection_policy"`
	Seed             int64   `json:"seed"`
}

// TargetCluster pairs a surviving cluster with its targeting coordinate
type TargetCluster struct {
	Cluster cluster.Cluster    `json:"cluster"`
	Target  cluster.Coordinate `json:"target"`
}

// Report is everything the final-report sinks receive for one run
type Report struct {
	RunID       core.RunID        `json:"run_id"`
	Status      RunStatus         `json:"status"`
	Parameters  RunParameters     `json:"parameters"`
	Fingerprint core.Hash         `json:"fingerprint"`
	Manifest    *run.Manifest     `json:"manifest,omitempty"`
	Observed    stats.MapSummary  `json:"observed"`
	Threshold   stats.Threshold   `json:"threshold"`
	Null        stats.NullSummary `json:"null"`
	NullValues  []float64         `json:"null_values,omitempty"`
	Skipped     stats.SkipReport  `json:"skipped"`
	Clusters    []TargetCluster   `json:"clusters"`
	Selected    *TargetCluster    `json:"selected,omitempty"`
	StartedAt   core.Timestamp    `json:"started_at"`
	FinishedAt  core.Timestamp    `json:"finished_at"`
}

// TrialsCompleted returns the effective null sample size
func (r *Report) TrialsCompleted() int {
	return r.Threshold.N
}

// ReportSink receives a finished report
type ReportSink interface {
	Publish(ctx context.Context, report *Report) error
}

// RunRecord is the stored summary row of a published report
type RunRecord struct {
	RunID           string    `db:"run_id" json:"run_id"`
	Status          string    `db:"status" json:"status"`
	Threshold       float64   `db:"threshold" json:"threshold"`
	Alpha           float64   `db:"alpha" json:"alpha"`
	TrialsRequested int       `db:"trials_requested" json:"trials_requested"`
	TrialsCompleted int       `db:"trials_completed" json:"trials_completed"`
	TrialsSkipped   int       `db:"trials_skipped" json:"trials_skipped"`
	ClusterCount    int       `db:"cluster_count" json:"cluster_count"`
	TargetX         *float64  `db:"target_x" json:"target_x,omitempty"`
	TargetY         *float64  `db:"target_y" json:"target_y,omitempty"`
	TargetZ         *float64  `db:"target_z" json:"target_z,omitempty"`
	Payload         string    `db:"payload" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ReportReader reads stored reports back
type ReportReader interface {
	GetRun(ctx context.Context, runID core.RunID) (*RunRecord, *Report, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

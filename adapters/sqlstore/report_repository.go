package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fctarget/domain/core"
	apperrors "fctarget/internal/errors"
	"fctarget/ports"

	"github.com/jmoiron/sqlx"
)

// ReportRepository stores published reports: one fc_runs row per run plus
// one fc_clusters row per surviving cluster
type ReportRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewReportRepository creates a repository over an open database
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db, now: time.Now}
}

// EnsureSchema applies pending migrations
func (r *ReportRepository) EnsureSchema(ctx context.Context) error {
	if _, err := NewMigrator(r.db).Up(ctx); err != nil {
		return apperrors.DatabaseError("failed to migrate report schema", err)
	}
	return nil
}

type clusterRow struct {
	RunID     string  `db:"run_id"`
	Rank      int     `db:"rank"`
	Size      int     `db:"size"`
	Peak      float64 `db:"peak"`
	MeanValue float64 `db:"mean_value"`
	Sign      string  `db:"sign"`
	ComX      float64 `db:"com_x"`
	ComY      float64 `db:"com_y"`
	ComZ      float64 `db:"com_z"`
	TargetX   float64 `db:"target_x"`
	TargetY   float64 `db:"target_y"`
	TargetZ   float64 `db:"target_z"`
}

// Publish upserts the run row and replaces its cluster rows
func (r *ReportRepository) Publish(ctx context.Context, report *ports.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	rec := ports.RunRecord{
		RunID:           report.RunID.String(),
		Status:          string(report.Status),
		Threshold:       report.Threshold.Value,
		Alpha:           report.Threshold.Alpha,
		TrialsRequested: report.Parameters.Permutations,
		TrialsCompleted: report.TrialsCompleted(),
		TrialsSkipped:   report.Skipped.Count,
		ClusterCount:    len(report.Clusters),
		Payload:         string(payload),
		CreatedAt:       r.now().UTC(),
	}
	if report.Selected != nil {
		x, y, z := report.Selected.Target.X, report.Selected.Target.Y, report.Selected.Target.Z
		rec.TargetX, rec.TargetY, rec.TargetZ = &x, &y, &z
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO fc_runs (
			run_id, status, threshold, alpha, trials_requested, trials_completed,
			trials_skipped, cluster_count, target_x, target_y, target_z, payload, created_at
		) VALUES (
			:run_id, :status, :threshold, :alpha, :trials_requested, :trials_completed,
			:trials_skipped, :cluster_count, :target_x, :target_y, :target_z, :payload, :created_at
		)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			threshold = excluded.threshold,
			alpha = excluded.alpha,
			trials_requested = excluded.trials_requested,
			trials_completed = excluded.trials_completed,
			trials_skipped = excluded.trials_skipped,
			cluster_count = excluded.cluster_count,
			target_x = excluded.target_x,
			target_y = excluded.target_y,
			target_z = excluded.target_z,
			payload = excluded.payload`
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return apperrors.DatabaseError("failed to save run", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM fc_clusters WHERE run_id = ?`), rec.RunID); err != nil {
		return apperrors.DatabaseError("failed to clear clusters", err)
	}

	for _, tc := range report.Clusters {
		c := tc.Cluster
		row := clusterRow{
			RunID:     rec.RunID,
			Rank:      c.Rank,
			Size:      c.Size,
			Peak:      c.Peak,
			MeanValue: c.MeanValue,
			Sign:      c.Sign.String(),
			ComX:      c.CenterOfMass.X,
			ComY:      c.CenterOfMass.Y,
			ComZ:      c.CenterOfMass.Z,
			TargetX:   tc.Target.X,
			TargetY:   tc.Target.Y,
			TargetZ:   tc.Target.Z,
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO fc_clusters (
				run_id, rank, size, peak, mean_value, sign,
				com_x, com_y, com_z, target_x, target_y, target_z
			) VALUES (
				:run_id, :rank, :size, :peak, :mean_value, :sign,
				:com_x, :com_y, :com_z, :target_x, :target_y, :target_z
			)`, row)
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to save cluster %d", c.Rank), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit report", err)
	}
	return nil
}

// GetRun returns the stored row and the full decoded report
func (r *ReportRepository) GetRun(ctx context.Context, runID core.RunID) (*ports.RunRecord, *ports.Report, error) {
	var rec ports.RunRecord
	query := r.db.Rebind(`
		SELECT run_id, status, threshold, alpha, trials_requested, trials_completed,
			trials_skipped, cluster_count, target_x, target_y, target_z, payload, created_at
		FROM fc_runs WHERE run_id = ?`)
	if err := r.db.GetContext(ctx, &rec, query, runID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperrors.NotFound("run " + runID.String())
		}
		return nil, nil, apperrors.DatabaseError("failed to get run", err)
	}

	var report ports.Report
	if err := json.Unmarshal([]byte(rec.Payload), &report); err != nil {
		return nil, nil, apperrors.DatabaseError("failed to decode stored report", err)
	}
	return &rec, &report, nil
}

// ListRuns returns the most recent runs first
func (r *ReportRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(`
		SELECT run_id, status, threshold, alpha, trials_requested, trials_completed,
			trials_skipped, cluster_count, target_x, target_y, target_z, payload, created_at
		FROM fc_runs ORDER BY created_at DESC, run_id DESC LIMIT ?`)

	records := []ports.RunRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	return records, nil
}

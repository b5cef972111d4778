// Package report renders finished targeting reports as workbooks and
// markdown/HTML documents.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"fctarget/ports"
)

// Sheet names of the workbook report
const (
	SheetSummary  = "Summary"
	SheetClusters = "Clusters"
	SheetNull     = "NullDistribution"
)

// XLSXWriter writes <dir>/<run>.xlsx for every published report
type XLSXWriter struct {
	dir string
}

// NewXLSXWriter creates a workbook writer rooted at dir
func NewXLSXWriter(dir string) *XLSXWriter {
	return &XLSXWriter{dir: dir}
}

// Path returns where the workbook of a run is written
func (w *XLSXWriter) Path(r *ports.Report) string {
	return filepath.Join(w.dir, baseName(r)+".xlsx")
}

// Publish renders and saves the workbook
func (w *XLSXWriter) Publish(ctx context.Context, r *ports.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.Path(r)), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	f, err := buildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(w.Path(r)); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func buildWorkbook(r *ports.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetSummary, summaryRows(r)); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetClusters); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetClusters, clusterRows(r)); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetNull); err != nil {
		return nil, err
	}
	nullRows := [][]interface{}{{"trial_rank", "max_abs_r"}}
	for i, v := range r.NullValues {
		nullRows = append(nullRows, []interface{}{i + 1, v})
	}
	if err := writeRows(f, SheetNull, nullRows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func summaryRows(r *ports.Report) [][]interface{} {
	rows := [][]interface{}{
		{"field", "value"},
		{"run_id", r.RunID.String()},
		{"status", string(r.Status)},
		{"time_series", r.Parameters.TimeSeries},
		{"seed_mask", r.Parameters.SeedMask},
		{"target_mask", r.Parameters.TargetMask},
		{"permutations", r.Parameters.Permutations},
		{"trials_completed", r.TrialsCompleted()},
		{"trials_skipped", r.Skipped.Count},
		{"alpha", r.Threshold.Alpha},
		{"threshold", r.Threshold.Value},
		{"null_mean", r.Null.Mean},
		{"null_p95", r.Null.Percentile95},
		{"observed_max_abs", r.Observed.MaxAbs},
		{"supra_threshold_voxels", r.Observed.SupraThreshold},
		{"clusters", len(r.Clusters)},
		{"seed", r.Parameters.Seed},
		{"fingerprint", r.Fingerprint.String()},
	}
	if r.Selected != nil {
		t := r.Selected.Target
		rows = append(rows,
			[]interface{}{"target_x", t.X},
			[]interface{}{"target_y", t.Y},
			[]interface{}{"target_z", t.Z},
		)
	}
	return rows
}

func clusterRows(r *ports.Report) [][]interface{} {
	rows := [][]interface{}{{
		"rank", "size", "peak", "mean", "sign",
		"com_x", "com_y", "com_z", "target_x", "target_y", "target_z",
	}}
	for _, tc := range r.Clusters {
		c := tc.Cluster
		rows = append(rows, []interface{}{
			c.Rank, c.Size, c.Peak, c.MeanValue, c.Sign.String(),
			c.CenterOfMass.X, c.CenterOfMass.Y, c.CenterOfMass.Z,
			tc.Target.X, tc.Target.Y, tc.Target.Z,
		})
	}
	return rows
}

func baseName(r *ports.Report) string {
	if r.Parameters.OutputPrefix != "" {
		return r.Parameters.OutputPrefix + "_" + r.RunID.String()
	}
	return r.RunID.String()
}

package run

import (
	"fctarget/domain/core"
)

// Manifest is the replay record of a targeting run: which datasets went in
// and which fingerprint the run must reproduce
type Manifest struct {
	RunID       core.RunID     `json:"run_id"`
	TimeSeries  string         `json:"time_series"`
	SeedMask    string         `json:"seed_mask"`
	TargetMask  string         `json:"target_mask"`
	Fingerprint RunFingerprint `json:"fingerprint"`
	CreatedAt   core.Timestamp `json:"created_at"`
}

// NewManifest creates a run manifest
func NewManifest(runID core.RunID, timeSeries, seedMask, targetMask string, fp RunFingerprint) *Manifest {
	return &Manifest{
		RunID:       runID,
		TimeSeries:  timeSeries,
		SeedMask:    seedMask,
		TargetMask:  targetMask,
		Fingerprint: fp,
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.Fingerprint.SeriesHash.IsEmpty() {
		return core.NewValidationError("run_manifest", "series_hash cannot be empty")
	}
	if m.Fingerprint.ParameterHash.IsEmpty() {
		return core.NewValidationError("run_manifest", "parameter_hash cannot be empty")
	}
	if m.Fingerprint.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}

// Replays reports whether o reproduces m bit for bit
func (m *Manifest) Replays(o *Manifest) bool {
	return m.Fingerprint.Fingerprint == o.Fingerprint.Fingerprint
}

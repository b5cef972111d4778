package run

import (
	"crypto/sha256"
	"fmt"

	"fctarget/domain/core"
)

// CodeVersion is recorded in every manifest so replays can detect algorithm changes
const CodeVersion = "0.1.0"

// RunFingerprint ensures deterministic replay: two runs with equal
// fingerprints produce identical null distributions and clusters
type RunFingerprint struct {
	SeriesHash    core.Hash `json:"series_hash"`
	ParameterHash core.Hash `json:"parameter_hash"`
	Seed          int64     `json:"seed"`
	CodeVersion   string    `json:"code_version"`
	Fingerprint   core.Hash `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(seriesHash, parameterHash core.Hash, seed int64, codeVersion string) RunFingerprint {
	return RunFingerprint{
		SeriesHash:    seriesHash,
		ParameterHash: parameterHash,
		Seed:          seed,
		CodeVersion:   codeVersion,
		Fingerprint:   computeRunFingerprint(seriesHash, parameterHash, seed, codeVersion),
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(seriesHash, parameterHash core.Hash, seed int64, codeVersion string) core.Hash {
	data := fmt.Sprintf("series:%s|params:%s|seed:%d|code:%s",
		seriesHash, parameterHash, seed, codeVersion)

	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

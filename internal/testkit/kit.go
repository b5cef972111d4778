package testkit

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"fctarget/adapters/engine"
	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	engine    *engine.PearsonEngine
	artifacts *MemoryArtifactSink // Shared artifact sink instance
	reports   *MemoryReportSink   // Shared report sink instance
}

// NewTestKit creates a new test kit instance backed by in-memory sinks
func NewTestKit() *TestKit {
	return &TestKit{
		engine:    engine.NewPearsonEngine(),
		artifacts: NewMemoryArtifactSink(),
		reports:   NewMemoryReportSink(),
	}
}

// Engine returns the reference Pearson engine
func (t *TestKit) Engine() ports.SpatialFieldEngine {
	return t.engine
}

// FlakyEngine wraps the reference engine with injected faults
func (t *TestKit) FlakyEngine(faults map[int]Fault) *FlakyEngine {
	return NewFlakyEngine(t.engine, faults)
}

// RNGAdapter returns an RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return &RNGAdapter{}
}

// ArtifactSink returns the shared in-memory artifact sink
func (t *TestKit) ArtifactSink() *MemoryArtifactSink {
	return t.artifacts
}

// ReportSink returns the shared in-memory report sink
func (t *TestKit) ReportSink() *MemoryReportSink {
	return t.reports
}

// RNGAdapter is a plain PCG implementation of ports.RNGPort
type RNGAdapter struct{}

// TrialStream returns a deterministic stream for (seed, trial)
func (r *RNGAdapter) TrialStream(seed int64, trial int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(trial)))
}

// Fault is a failure mode injected into a permutation trial
type Fault int

const (
	FaultNone Fault = iota
	FaultError
	FaultPanic
	FaultHang
	FaultNonNumeric
	FaultEmpty
)

// ErrInjected is returned by FlakyEngine for FaultError trials
var ErrInjected = errors.New("injected engine failure")

// FlakyEngine fails chosen trials and delegates the rest. The observed-map
// call carries no trial index and is never faulted.
type FlakyEngine struct {
	Inner  ports.SpatialFieldEngine
	Faults map[int]Fault
	calls  atomic.Int64
}

// NewFlakyEngine creates a fault-injecting engine
func NewFlakyEngine(inner ports.SpatialFieldEngine, faults map[int]Fault) *FlakyEngine {
	return &FlakyEngine{Inner: inner, Faults: faults}
}

// FailTrials maps every listed trial to the same fault
func FailTrials(f Fault, trials ...int) map[int]Fault {
	out := make(map[int]Fault, len(trials))
	for _, t := range trials {
		out[t] = f
	}
	return out
}

// Calls returns how many times Correlate was invoked
func (f *FlakyEngine) Calls() int {
	return int(f.calls.Load())
}

// Correlate applies the fault registered for the trial in ctx, if any
func (f *FlakyEngine) Correlate(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error) {
	f.calls.Add(1)

	fault := FaultNone
	if trial, ok := ports.TrialFromContext(ctx); ok {
		fault = f.Faults[trial]
	}

	switch fault {
	case FaultError:
		return nil, ErrInjected
	case FaultPanic:
		panic("injected engine panic")
	case FaultHang:
		<-ctx.Done()
		return nil, ctx.Err()
	case FaultEmpty:
		return volume.NewCorrelationMap(series.Grid), nil
	}

	m, err := f.Inner.Correlate(ctx, ts, series, target)
	if err != nil {
		return nil, err
	}
	if fault == FaultNonNumeric {
		if idx := target.Indices(); len(idx) > 0 {
			m.Values[idx[0]] = math.Inf(1)
		}
	}
	return m, nil
}

// MemoryArtifactSink keeps trial artifacts in memory
type MemoryArtifactSink struct {
	mu     sync.Mutex
	seeds  map[core.RunID]volume.TimeSeries
	trials map[core.RunID]map[int]volume.TimeSeries
	maps   map[core.RunID]ports.MapArtifacts
	Err    error // returned by every save when set
}

// NewMemoryArtifactSink creates an empty sink
func NewMemoryArtifactSink() *MemoryArtifactSink {
	return &MemoryArtifactSink{
		seeds:  make(map[core.RunID]volume.TimeSeries),
		trials: make(map[core.RunID]map[int]volume.TimeSeries),
		maps:   make(map[core.RunID]ports.MapArtifacts),
	}
}

// SaveSeedSeries stores the extracted seed series of a run
func (s *MemoryArtifactSink) SaveSeedSeries(ctx context.Context, runID core.RunID, ts volume.TimeSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.seeds[runID] = ts.Clone()
	return nil
}

// SaveTrial stores one trial's permuted series
func (s *MemoryArtifactSink) SaveTrial(ctx context.Context, runID core.RunID, trial int, permuted volume.TimeSeries, masked []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.trials[runID] == nil {
		s.trials[runID] = make(map[int]volume.TimeSeries)
	}
	s.trials[runID][trial] = permuted.Clone()
	return nil
}

// SaveMaps stores the map volumes of a run
func (s *MemoryArtifactSink) SaveMaps(ctx context.Context, runID core.RunID, maps ports.MapArtifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.maps[runID] = maps
	return nil
}

// Maps returns the stored map volumes of a run
func (s *MemoryArtifactSink) Maps(runID core.RunID) (ports.MapArtifacts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[runID]
	return m, ok
}

// SeedSeries returns the stored seed series of a run
func (s *MemoryArtifactSink) SeedSeries(runID core.RunID) (volume.TimeSeries, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.seeds[runID]
	return ts, ok
}

// Trials returns the stored trial series of a run keyed by trial index
func (s *MemoryArtifactSink) Trials(runID core.RunID) map[int]volume.TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]volume.TimeSeries, len(s.trials[runID]))
	for k, v := range s.trials[runID] {
		out[k] = v
	}
	return out
}

// MemoryReportSink collects published reports
type MemoryReportSink struct {
	mu      sync.Mutex
	reports []*ports.Report
	Err     error // returned by Publish when set
}

// NewMemoryReportSink creates an empty report sink
func NewMemoryReportSink() *MemoryReportSink {
	return &MemoryReportSink{}
}

// Publish records the report
func (s *MemoryReportSink) Publish(ctx context.Context, report *ports.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.reports = append(s.reports, report)
	return nil
}

// Reports returns everything published so far
func (s *MemoryReportSink) Reports() []*ports.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ports.Report(nil), s.reports...)
}

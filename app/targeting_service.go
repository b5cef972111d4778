package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fctarget/adapters/rng"
	"fctarget/domain/cluster"
	"fctarget/domain/core"
	"fctarget/domain/run"
	"fctarget/domain/stats"
	"fctarget/domain/volume"
	"fctarget/internal"
	clusterx "fctarget/internal/cluster"
	"fctarget/internal/coords"
	apperrors "fctarget/internal/errors"
	"fctarget/internal/metrics"
	"fctarget/internal/nulldist"
	"fctarget/internal/threshold"
	"fctarget/internal/timeseries"
	"fctarget/ports"
)

// Request names the inputs and parameters of one targeting run
type Request struct {
	RunID core.RunID // optional, generated when empty

	TimeSeries   string `json:"time_series"`
	SeedMask     string `json:"seed_mask"`
	TargetMask   string `json:"target_mask"`
	OutputPrefix string `json:"output_prefix"`

	Permutations    int                     `json:"permutations"`
	Alpha           float64                 `json:"alpha"`
	Cluster         clusterx.Options        `json:"cluster"`
	SelectionPolicy cluster.SelectionPolicy `json:"selection_policy"`
	// NativeCoordinates keeps targets in map space instead of flipping x and y
	NativeCoordinates bool  `json:"native_coordinates"`
	Seed              int64 `json:"seed"`
}

// Validate checks the parameters before any input is loaded
func (r Request) Validate() error {
	if r.Permutations < 1 {
		return core.NewValidationError("permutations", fmt.Sprintf("must be >= 1, got %d", r.Permutations))
	}
	if !(r.Alpha > 0 && r.Alpha < 1) {
		return core.NewValidationError("alpha", fmt.Sprintf("must be in (0,1), got %v", r.Alpha))
	}
	if err := r.Cluster.Validate(); err != nil {
		return err
	}
	if _, err := cluster.ParseSelectionPolicy(string(r.SelectionPolicy)); err != nil {
		return core.NewValidationError("selection_policy", err.Error())
	}
	return nil
}

// Inputs are already-loaded volumes for RunWithInputs
type Inputs struct {
	Series     *volume.VolumeSeries
	SeedMask   volume.SpatialMask
	TargetMask volume.SpatialMask
}

// Result is the outcome of a run. SinkErrors lists report sinks that failed;
// they never fail the run.
type Result struct {
	Report     *ports.Report
	SinkErrors []error
}

// TargetingService runs the seed-to-target FC targeting pipeline
type TargetingService struct {
	locator   ports.VolumeLocator
	engine    ports.SpatialFieldEngine
	builder   *nulldist.Builder
	extractor *clusterx.Extractor
	artifacts ports.ArtifactSink
	sinks     []ports.ReportSink
	logger    *internal.Logger
}

// ServiceOption configures a TargetingService
type ServiceOption func(*TargetingService)

// WithArtifacts persists the seed series and per-trial artifacts
func WithArtifacts(sink ports.ArtifactSink) ServiceOption {
	return func(s *TargetingService) { s.artifacts = sink }
}

// WithReportSinks adds final-report sinks
func WithReportSinks(sinks ...ports.ReportSink) ServiceOption {
	return func(s *TargetingService) { s.sinks = append(s.sinks, sinks...) }
}

// WithServiceLogger replaces the default logger
func WithServiceLogger(l *internal.Logger) ServiceOption {
	return func(s *TargetingService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTargetingService creates the pipeline service. The builder carries the
// worker count and trial timeout; the service binds it to each run.
func NewTargetingService(locator ports.VolumeLocator, engine ports.SpatialFieldEngine, builder *nulldist.Builder, opts ...ServiceOption) *TargetingService {
	s := &TargetingService{
		locator: locator,
		engine:  engine,
		builder: builder,
		logger:  internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Component("targeting")
	s.extractor = clusterx.NewExtractor(s.logger)
	return s
}

// Run resolves the request's datasets through the locator and runs the pipeline
func (s *TargetingService) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid targeting request")
	}
	if s.locator == nil {
		return nil, apperrors.Unavailable("no volume locator configured")
	}

	seedTS, series, err := timeseries.ExtractFromDataset(ctx, s.locator, req.TimeSeries, req.SeedMask)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to extract seed time series")
	}
	target, err := s.locator.LoadMask(ctx, req.TargetMask)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to load target mask %s", req.TargetMask)
	}
	return s.execute(ctx, req, seedTS, series, target)
}

// RunWithInputs runs the pipeline on in-memory volumes
func (s *TargetingService) RunWithInputs(ctx context.Context, req Request, in Inputs) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid targeting request")
	}
	seedTS, err := timeseries.Extract(in.SeedMask, in.Series)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to extract seed time series")
	}
	return s.execute(ctx, req, seedTS, in.Series, in.TargetMask)
}

func (s *TargetingService) execute(ctx context.Context, req Request, seedTS volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*Result, error) {
	started := time.Now()
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	seed := rng.ResolveSeed(req.Seed)
	logger := s.logger.With("run_id", runID.String())

	result, err := s.pipeline(ctx, logger, runID, seed, req, seedTS, series, target)
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues(string(ports.StatusFailed)).Inc()
		logger.Error("[Targeting] run failed after %s: %v", time.Since(started), err)
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues(string(result.Report.Status)).Inc()
	return result, nil
}

func (s *TargetingService) pipeline(ctx context.Context, logger *internal.Logger, runID core.RunID, seed int64, req Request, seedTS volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*Result, error) {
	startedAt := core.Now()

	if err := target.CheckGrid(series.Grid); err != nil {
		return nil, apperrors.Wrap(err, "target mask does not match the time series grid")
	}
	if err := target.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid target mask")
	}

	logger.Info("[Targeting] seed series T=%d, target %d voxels, %d permutations, alpha=%g, seed=%d",
		seedTS.Len(), target.Count(), req.Permutations, req.Alpha, seed)

	if s.artifacts != nil {
		if err := s.artifacts.SaveSeedSeries(ctx, runID, seedTS); err != nil {
			logger.Warn("[Targeting] failed to persist seed series: %v", err)
		}
	}

	builder := s.builder.ForRun(runID, seed)

	var (
		observed *volume.CorrelationMap
		dist     *stats.NullDistribution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.engine.Correlate(gctx, seedTS, series, target)
		if err != nil {
			return apperrors.Wrap(err, "observed correlation map failed")
		}
		observed = m
		return nil
	})
	g.Go(func() error {
		d, err := builder.Build(gctx, seedTS, series, target, req.Permutations)
		if err != nil {
			return apperrors.Wrap(err, "null distribution failed")
		}
		dist = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	thr, err := threshold.Estimate(dist, req.Alpha)
	if err != nil {
		return nil, apperrors.Wrap(err, "threshold estimation failed")
	}
	metrics.LastThreshold.Set(thr.Value)

	clusters, err := s.extractor.Extract(observed, thr, target, req.Cluster)
	if err != nil {
		return nil, apperrors.Wrap(err, "cluster extraction failed")
	}

	if s.artifacts != nil {
		maps := ports.MapArtifacts{
			Prefix:       req.OutputPrefix,
			Observed:     observed,
			Significance: clusterx.SignificanceMask(observed, thr, target),
			Clusters:     clusterx.ClusterMap(observed.Grid, clusters),
		}
		if err := s.artifacts.SaveMaps(ctx, runID, maps); err != nil {
			logger.Warn("[Targeting] failed to persist maps: %v", err)
		}
	}

	params := parameters(req, seed)
	manifest := run.NewManifest(runID, req.TimeSeries, req.SeedMask, req.TargetMask,
		run.NewRunFingerprint(core.HashFloats(seedTS), parameterHash(params), seed, run.CodeVersion))

	report := &ports.Report{
		RunID:       runID,
		Status:      ports.StatusNoCluster,
		Parameters:  params,
		Fingerprint: manifest.Fingerprint.Fingerprint,
		Manifest:    manifest,
		Observed:    threshold.SummarizeMap(observed, target, thr),
		Threshold:   thr,
		Null:        threshold.Summarize(dist),
		NullValues:  dist.Values,
		Skipped:     dist.Skipped,
		Clusters:    make([]ports.TargetCluster, 0, len(clusters)),
		StartedAt:   startedAt,
	}
	for _, c := range clusters {
		t := c.CenterOfMass
		if !req.NativeCoordinates {
			t = coords.ToTargetSpace(t)
		}
		report.Clusters = append(report.Clusters, ports.TargetCluster{Cluster: c, Target: t})
	}

	policy, _ := cluster.ParseSelectionPolicy(string(req.SelectionPolicy))
	if i := policy.Select(clusters); i >= 0 {
		selected := report.Clusters[i]
		report.Selected = &selected
		report.Status = ports.StatusTargetFound
		logger.Info("[Targeting] target %s from cluster %d (%d voxels, peak %.4f)",
			coords.Format(selected.Target), selected.Cluster.Rank, selected.Cluster.Size, selected.Cluster.Peak)
	} else {
		logger.Info("[Targeting] no cluster survived |r| > %.4f with >= %d voxels", thr.Value, req.Cluster.MinVoxels)
	}
	report.FinishedAt = core.Now()

	return &Result{Report: report, SinkErrors: s.publish(ctx, logger, report)}, nil
}

func (s *TargetingService) publish(ctx context.Context, logger *internal.Logger, report *ports.Report) []error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			logger.Warn("[Targeting] report sink %T failed: %v", sink, err)
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	return errs
}

// parameterHash covers every parameter that affects the result
func parameterHash(p ports.RunParameters) core.Hash {
	p.TimeSeries, p.SeedMask, p.TargetMask, p.OutputPrefix = "", "", "", ""
	data, _ := json.Marshal(p)
	return core.NewHash(data)
}

func parameters(req Request, seed int64) ports.RunParameters {
	return ports.RunParameters{
		TimeSeries:       req.TimeSeries,
		SeedMask:         req.SeedMask,
		TargetMask:       req.TargetMask,
		OutputPrefix:     req.OutputPrefix,
		Permutations:     req.Permutations,
		Alpha:            req.Alpha,
		MinClusterVoxels: req.Cluster.MinVoxels,
		Connectivity:     int(req.Cluster.Connectivity),
		Bisided:          req.Cluster.Bisided,
		CenterMode:       string(req.Cluster.CenterMode),
		SelectionPolicy:  string(req.SelectionPolicy),
		Seed:             seed,
	}
}

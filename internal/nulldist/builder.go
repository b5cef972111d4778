// Package nulldist builds the permutation null distribution of the peak
// absolute correlation inside a target mask.
package nulldist

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"fctarget/domain/core"
	"fctarget/domain/stats"
	"fctarget/domain/volume"
	"fctarget/internal"
	"fctarget/internal/metrics"
	"fctarget/internal/permutation"
	"fctarget/ports"
)

// DefaultTrialTimeout bounds a single engine call
const DefaultTrialTimeout = 2 * time.Minute

// Builder runs permutation trials against a SpatialFieldEngine
type Builder struct {
	engine  ports.SpatialFieldEngine
	rng     ports.RNGPort
	sampler *permutation.Sampler
	sink    ports.ArtifactSink
	logger  *internal.Logger

	workers int
	timeout time.Duration
	seed    int64
	runID   core.RunID
}

// Option configures a Builder
type Option func(*Builder)

// WithWorkers bounds the number of concurrent trials
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithTrialTimeout sets the per-trial engine deadline
func WithTrialTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithArtifactSink persists each successful trial's permuted series and map values
func WithArtifactSink(sink ports.ArtifactSink) Option {
	return func(b *Builder) { b.sink = sink }
}

// WithLogger replaces the default logger
func WithLogger(l *internal.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a null distribution builder
func NewBuilder(engine ports.SpatialFieldEngine, rng ports.RNGPort, opts ...Option) *Builder {
	b := &Builder{
		engine:  engine,
		rng:     rng,
		sampler: permutation.NewSampler(),
		logger:  internal.DefaultLogger,
		workers: runtime.NumCPU(),
		timeout: DefaultTrialTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Component("nulldist")
	return b
}

// ForRun returns a copy of b bound to a run id and RNG seed. Trial i always
// draws from stream (seed, i).
func (b *Builder) ForRun(runID core.RunID, seed int64) *Builder {
	c := *b
	c.runID = runID
	c.seed = seed
	c.logger = b.logger.With("run_id", runID.String())
	return &c
}

// trialResult is one slot of the result arena
type trialResult struct {
	value float64
	ok    bool
	skip  stats.SkippedTrial
}

// Build runs nTrials permutations and collects max|r| over the target mask
// for each successful trial. Failed trials are skipped and reported, never
// retried. Values are returned in trial order.
func (b *Builder) Build(ctx context.Context, seed volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask, nTrials int) (*stats.NullDistribution, error) {
	if nTrials < 1 {
		return nil, core.NewValidationError("permutations", fmt.Sprintf("must be >= 1, got %d", nTrials))
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	b.logger.Info("[NullBuilder] starting %d trials on %d workers (seed=%d, timeout=%s)", nTrials, b.workers, b.seed, b.timeout)
	started := time.Now()

	arena := make([]trialResult, nTrials)

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := 0; i < nTrials; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			arena[i] = b.runTrial(ctx, i, seed, series, target)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		b.logger.Warn("[NullBuilder] cancelled after %s: %v", time.Since(started), err)
		return nil, err
	}

	dist := &stats.NullDistribution{
		Values:    make([]float64, 0, nTrials),
		Requested: nTrials,
	}
	for _, r := range arena {
		if r.ok {
			dist.Values = append(dist.Values, r.value)
			continue
		}
		dist.Skipped.Add(r.skip)
	}

	if dist.Len() == 0 {
		b.logger.Error("[NullBuilder] all %d trials failed: %s", nTrials, dist.Skipped)
		return nil, fmt.Errorf("%w: all %d permutation trials failed (%s)", core.ErrInsufficientData, nTrials, dist.Skipped)
	}
	if dist.Skipped.Count > 0 {
		b.logger.Warn("[NullBuilder] effective sample size %d of %d: %s", dist.Len(), nTrials, dist.Skipped)
	}
	b.logger.Info("[NullBuilder] %d trials completed in %s", dist.Len(), time.Since(started))
	return dist, nil
}

type engineOutcome struct {
	m   *volume.CorrelationMap
	err error
}

// panicError carries a recovered engine panic
type panicError struct {
	value interface{}
}

func (p *panicError) Error() string {
	return fmt.Sprintf("engine panic: %v", p.value)
}

func (b *Builder) runTrial(ctx context.Context, i int, seed volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) trialResult {
	permuted := b.sampler.Permute(seed, b.rng.TrialStream(b.seed, i))

	tctx, cancel := context.WithTimeout(ports.WithTrial(ctx, i), b.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan engineOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- engineOutcome{err: &panicError{value: r}}
			}
		}()
		m, err := b.engine.Correlate(tctx, permuted, series, target)
		done <- engineOutcome{m: m, err: err}
	}()

	var out engineOutcome
	select {
	case out = <-done:
	case <-tctx.Done():
		out = engineOutcome{err: tctx.Err()}
	}

	if ctx.Err() != nil {
		return trialResult{}
	}

	if out.err != nil {
		var pe *panicError
		switch {
		case errors.As(out.err, &pe):
			return b.skip(i, stats.SkipEnginePanic, out.err)
		case errors.Is(out.err, context.DeadlineExceeded):
			return b.skip(i, stats.SkipTimeout, fmt.Errorf("exceeded %s", b.timeout))
		default:
			return b.skip(i, stats.SkipEngineError, out.err)
		}
	}
	if out.m == nil {
		return b.skip(i, stats.SkipEmptyOutput, errors.New("engine returned no map"))
	}
	if out.m.HasNonFinite(target) {
		return b.skip(i, stats.SkipNonNumeric, errors.New("map contains infinite values"))
	}
	peak, ok := out.m.MaxAbs(target)
	if !ok {
		return b.skip(i, stats.SkipEmptyOutput, errors.New("no defined voxel in target mask"))
	}

	metrics.ObserveTrial(time.Since(start).Seconds())
	b.logger.Trace("[NullBuilder] trial %d max|r|=%.4f", i, peak)

	if b.sink != nil {
		if err := b.sink.SaveTrial(ctx, b.runID, i, permuted, out.m.MaskedValues(target)); err != nil {
			b.logger.Warn("[NullBuilder] trial %d artifact not saved: %v", i, err)
		}
	}
	return trialResult{value: peak, ok: true}
}

func (b *Builder) skip(i int, reason stats.SkipReason, err error) trialResult {
	metrics.ObserveSkip(string(reason))
	b.logger.Warn("[NullBuilder] trial %d skipped (%s): %v", i, reason, err)
	return trialResult{skip: stats.SkippedTrial{Trial: i, Reason: reason, Detail: err.Error()}}
}

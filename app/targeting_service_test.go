package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/adapters/nifti"
	"fctarget/domain/cluster"
	"fctarget/domain/core"
	"fctarget/domain/volume"
	"fctarget/internal"
	clusterx "fctarget/internal/cluster"
	apperrors "fctarget/internal/errors"
	"fctarget/internal/nulldist"
	"fctarget/internal/testkit"
	"fctarget/ports"
)

func newService(kit *testkit.TestKit, engine ports.SpatialFieldEngine, locator ports.VolumeLocator, opts ...ServiceOption) *TargetingService {
	builder := nulldist.NewBuilder(engine, kit.RNGAdapter(),
		nulldist.WithWorkers(4),
		nulldist.WithTrialTimeout(5*time.Second),
		nulldist.WithLogger(internal.Discard()))
	opts = append([]ServiceOption{WithServiceLogger(internal.Discard())}, opts...)
	return NewTargetingService(locator, engine, builder, opts...)
}

func phantomRequest() Request {
	return Request{
		Permutations:    100,
		Alpha:           0.05,
		Cluster:         clusterx.DefaultOptions(),
		SelectionPolicy: cluster.SelectLargest,
		Seed:            11,
	}
}

func TestRunWithInputs_FindsPlantedCluster(t *testing.T) {
	kit := testkit.NewTestKit()
	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)

	svc := newService(kit, kit.Engine(), nil, WithReportSinks(kit.ReportSink()))
	res, err := svc.RunWithInputs(context.Background(), phantomRequest(), Inputs{
		Series:     phantom.Series,
		SeedMask:   phantom.SeedMask,
		TargetMask: phantom.TargetMask,
	})
	require.NoError(t, err)
	require.Empty(t, res.SinkErrors)

	r := res.Report
	assert.Equal(t, ports.StatusTargetFound, r.Status)
	assert.Equal(t, 100, r.TrialsCompleted())
	assert.Greater(t, r.Threshold.Value, 0.0)
	require.GreaterOrEqual(t, len(r.Clusters), 2)
	require.NotNil(t, r.Selected)

	// the 3x3x2 positive block at i,j in [5,8), k in [2,4)
	sel := r.Selected
	assert.Equal(t, 1, sel.Cluster.Rank)
	assert.GreaterOrEqual(t, sel.Cluster.Size, 18)
	assert.Equal(t, cluster.SignPositive, sel.Cluster.Sign)
	assert.Equal(t, cluster.SpaceTarget, sel.Target.Space)
	assert.InDelta(t, -2.0, sel.Cluster.CenterOfMass.X, 1.0)
	assert.InDelta(t, 2.0, sel.Target.X, 1.0)
	assert.InDelta(t, 2.0, sel.Target.Y, 1.0)
	assert.InDelta(t, -1.0, sel.Target.Z, 1.0)

	require.Len(t, kit.ReportSink().Reports(), 1)
	assert.Equal(t, r.RunID, kit.ReportSink().Reports()[0].RunID)
}

func TestRunWithInputs_NativeCoordinates(t *testing.T) {
	kit := testkit.NewTestKit()
	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)

	req := phantomRequest()
	req.NativeCoordinates = true
	res, err := newService(kit, kit.Engine(), nil).RunWithInputs(context.Background(), req, Inputs{
		Series:     phantom.Series,
		SeedMask:   phantom.SeedMask,
		TargetMask: phantom.TargetMask,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Report.Selected)
	assert.Equal(t, res.Report.Selected.Cluster.CenterOfMass, res.Report.Selected.Target)
}

// rampInputs is a 2x2x2 grid whose voxel 0 carries 1..8 and whose four
// k=1 voxels form the target
func rampInputs(t *testing.T) Inputs {
	t.Helper()
	g := volume.NewGrid(2, 2, 2)
	series := volume.NewVolumeSeries("ramp", g, 8)
	r := rand.New(rand.NewPCG(3, 4))
	for idx := 0; idx < g.Size(); idx++ {
		course := make([]float64, 8)
		for tt := range course {
			if idx == 0 {
				course[tt] = float64(tt + 1)
			} else {
				course[tt] = r.NormFloat64()
			}
		}
		series.SetVoxel(idx, course)
	}
	seed, err := volume.MaskFromIndices("seed", g, []int{0})
	require.NoError(t, err)
	target, err := volume.MaskFromIndices("target", g, []int{4, 5, 6, 7})
	require.NoError(t, err)
	return Inputs{Series: series, SeedMask: seed, TargetMask: target}
}

func TestRunWithInputs_RampReproducible(t *testing.T) {
	kit := testkit.NewTestKit()
	req := Request{
		Permutations:    200,
		Alpha:           0.05,
		Cluster:         clusterx.Options{MinVoxels: 1, Connectivity: cluster.NN1},
		SelectionPolicy: cluster.SelectLargest,
		Seed:            2024,
	}

	first, err := newService(kit, kit.Engine(), nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.NoError(t, err)
	second, err := newService(kit, kit.Engine(), nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, first.Report.Threshold.Value, 0.0)
	assert.Equal(t, 200, first.Report.TrialsCompleted())
	assert.Equal(t, first.Report.NullValues, second.Report.NullValues)
	assert.Equal(t, first.Report.Threshold, second.Report.Threshold)
	assert.Equal(t, len(first.Report.Clusters), len(second.Report.Clusters))
	assert.Equal(t, first.Report.Fingerprint, second.Report.Fingerprint)
	require.NoError(t, first.Report.Manifest.Validate())
	assert.True(t, first.Report.Manifest.Replays(second.Report.Manifest))
	assert.NotEqual(t, first.Report.RunID, second.Report.RunID)
	assert.Equal(t, int64(2024), first.Report.Parameters.Seed)
}

func TestRunWithInputs_SkippedTrialsReduceSampleSize(t *testing.T) {
	kit := testkit.NewTestKit()
	engine := kit.FlakyEngine(testkit.FailTrials(testkit.FaultError, 3, 7))
	req := Request{
		Permutations:    10,
		Alpha:           0.05,
		Cluster:         clusterx.Options{MinVoxels: 1, Connectivity: cluster.NN1},
		SelectionPolicy: cluster.SelectLargest,
		Seed:            5,
	}

	res, err := newService(kit, engine, nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.NoError(t, err)
	assert.Equal(t, 8, res.Report.TrialsCompleted())
	assert.Equal(t, 2, res.Report.Skipped.Count)
}

func TestRunWithInputs_ObservedFailureIsFatal(t *testing.T) {
	kit := testkit.NewTestKit()
	engine := ports.SpatialFieldEngineFunc(func(ctx context.Context, ts volume.TimeSeries, series *volume.VolumeSeries, target volume.SpatialMask) (*volume.CorrelationMap, error) {
		if _, ok := ports.TrialFromContext(ctx); ok {
			return kit.Engine().Correlate(ctx, ts, series, target)
		}
		return nil, core.NewComputationError("boom")
	})

	req := phantomRequest()
	req.Cluster.MinVoxels = 1
	_, err := newService(kit, engine, nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.Error(t, err)
	assert.True(t, core.IsComputationError(err))
	assert.Equal(t, apperrors.CodeComputationError, apperrors.GetCode(err))
}

func TestRunWithInputs_AllTrialsFail(t *testing.T) {
	kit := testkit.NewTestKit()
	engine := kit.FlakyEngine(testkit.FailTrials(testkit.FaultPanic, 0, 1, 2))
	req := phantomRequest()
	req.Permutations = 3

	_, err := newService(kit, engine, nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.Error(t, err)
	assert.True(t, core.IsInsufficientData(err))
}

func TestRunWithInputs_NoCluster(t *testing.T) {
	kit := testkit.NewTestKit()
	req := Request{
		Permutations:    50,
		Alpha:           0.05,
		Cluster:         clusterx.Options{MinVoxels: 5, Connectivity: cluster.NN1},
		SelectionPolicy: cluster.SelectLargest,
		Seed:            9,
	}

	res, err := newService(kit, kit.Engine(), nil).RunWithInputs(context.Background(), req, rampInputs(t))
	require.NoError(t, err)
	assert.Equal(t, ports.StatusNoCluster, res.Report.Status)
	assert.Empty(t, res.Report.Clusters)
	assert.Nil(t, res.Report.Selected)
}

func TestRunWithInputs_SinkFailuresAreNotFatal(t *testing.T) {
	kit := testkit.NewTestKit()
	kit.ArtifactSink().Err = errors.New("bucket gone")
	broken := testkit.NewMemoryReportSink()
	broken.Err = errors.New("db down")

	svc := newService(kit, kit.Engine(), nil,
		WithArtifacts(kit.ArtifactSink()),
		WithReportSinks(broken, kit.ReportSink()))

	res, err := svc.RunWithInputs(context.Background(), phantomRequest(), rampInputs(t))
	require.NoError(t, err)
	require.Len(t, res.SinkErrors, 1)
	assert.Contains(t, res.SinkErrors[0].Error(), "db down")
	assert.Len(t, kit.ReportSink().Reports(), 1)
}

func TestRunWithInputs_PersistsSeedSeries(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newService(kit, kit.Engine(), nil, WithArtifacts(kit.ArtifactSink()))

	req := phantomRequest()
	req.RunID = "fixed-run"
	req.Permutations = 5
	_, err := svc.RunWithInputs(context.Background(), req, rampInputs(t))
	require.NoError(t, err)

	ts, ok := kit.ArtifactSink().SeedSeries("fixed-run")
	require.True(t, ok)
	assert.Equal(t, volume.TimeSeries{1, 2, 3, 4, 5, 6, 7, 8}, ts)
}

func TestRunWithInputs_PersistsMaps(t *testing.T) {
	kit := testkit.NewTestKit()
	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)
	svc := newService(kit, kit.Engine(), nil, WithArtifacts(kit.ArtifactSink()))

	req := phantomRequest()
	req.RunID = "maps-run"
	req.OutputPrefix = "sub-001_SB"
	res, err := svc.RunWithInputs(context.Background(), req, Inputs{
		Series:     phantom.Series,
		SeedMask:   phantom.SeedMask,
		TargetMask: phantom.TargetMask,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Report.Selected)

	maps, ok := kit.ArtifactSink().Maps("maps-run")
	require.True(t, ok)
	assert.Equal(t, "sub-001_SB", maps.Prefix)
	require.NotNil(t, maps.Observed)

	size := phantom.Series.Grid.Size()
	require.Len(t, maps.Significance, size)
	require.Len(t, maps.Clusters, size)
	for _, idx := range res.Report.Selected.Cluster.Voxels {
		assert.Equal(t, 1.0, maps.Significance[idx])
		assert.Equal(t, float64(res.Report.Selected.Cluster.Rank), maps.Clusters[idx])
	}
	for _, idx := range phantom.SeedMask.Indices() {
		assert.Zero(t, maps.Significance[idx])
		assert.Zero(t, maps.Clusters[idx])
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newService(kit, kit.Engine(), nil)

	req := phantomRequest()
	req.Alpha = 1
	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestRun_ThroughNiftiLocator(t *testing.T) {
	dir := t.TempDir()
	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)

	g := phantom.Series.Grid
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "func.nii.gz"), g, phantom.Series.T, phantom.Series.Data))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "seed.nii"), g, 1, maskValues(phantom.SeedMask)))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "target.nii"), g, 1, maskValues(phantom.TargetMask)))

	kit := testkit.NewTestKit()
	svc := newService(kit, kit.Engine(), nifti.NewLocator(dir, internal.Discard()))

	req := phantomRequest()
	req.TimeSeries = "func"
	req.SeedMask = "seed"
	req.TargetMask = "target"
	res, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusTargetFound, res.Report.Status)
	assert.Equal(t, "func", res.Report.Parameters.TimeSeries)

	req.TargetMask = "missing"
	_, err = svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInputNotFound))
}

func TestRun_ReportsTargetInRASForMNISform(t *testing.T) {
	dir := t.TempDir()
	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)

	// radiological storage: i runs right to left
	g := phantom.Series.Grid
	g.Affine = volume.Affine{
		{-2, 0, 0, -28},
		{0, 2, 0, 40},
		{0, 0, 2, 22},
	}
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "func.nii.gz"), g, phantom.Series.T, phantom.Series.Data))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "seed.nii"), g, 1, maskValues(phantom.SeedMask)))
	require.NoError(t, nifti.WriteFile(filepath.Join(dir, "target.nii"), g, 1, maskValues(phantom.TargetMask)))

	kit := testkit.NewTestKit()
	svc := newService(kit, kit.Engine(), nifti.NewLocator(dir, internal.Discard()))

	req := phantomRequest()
	req.TimeSeries = "func"
	req.SeedMask = "seed"
	req.TargetMask = "target"
	res, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Report.Selected)

	// block centre (6, 6, 2.5) sits at RAS (-40, 52, 27): left, anterior
	sel := res.Report.Selected
	assert.Equal(t, cluster.SignPositive, sel.Cluster.Sign)
	assert.Equal(t, cluster.SpaceNative, sel.Cluster.CenterOfMass.Space)
	assert.InDelta(t, 40.0, sel.Cluster.CenterOfMass.X, 1.0)
	assert.InDelta(t, -52.0, sel.Cluster.CenterOfMass.Y, 1.0)
	assert.InDelta(t, 27.0, sel.Cluster.CenterOfMass.Z, 1.0)

	assert.Equal(t, cluster.SpaceTarget, sel.Target.Space)
	assert.InDelta(t, -40.0, sel.Target.X, 1.0)
	assert.InDelta(t, 52.0, sel.Target.Y, 1.0)
	assert.InDelta(t, 27.0, sel.Target.Z, 1.0)
}

func maskValues(m volume.SpatialMask) []float64 {
	out := make([]float64, len(m.Voxels))
	for i, on := range m.Voxels {
		if on {
			out[i] = 1
		}
	}
	return out
}

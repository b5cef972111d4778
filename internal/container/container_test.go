package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fctarget/adapters/artifacts"
	"fctarget/adapters/blob"
	"fctarget/app"
	"fctarget/domain/cluster"
	clusterx "fctarget/internal/cluster"
	"fctarget/internal/config"
	"fctarget/internal/testkit"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Inputs.Root = dir
	cfg.Reports.Dir = filepath.Join(dir, "reports")
	cfg.Reports.XLSX = true
	cfg.Reports.HTML = true
	cfg.Artifacts.Enabled = true
	cfg.Artifacts.Blob = blob.Config{Driver: blob.DriverMemory}
	cfg.Targeting.Workers = 2
	cfg.Log.Level = "ERROR"
	return cfg
}

func TestContainerWiresPipeline(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := New(ctx, cfg)
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	require.NotNil(t, c.Service)
	require.NotNil(t, c.Reports)
	require.NotNil(t, c.ReportReader())
	assert.Equal(t, blob.DriverMemory, c.ArtifactStore.Driver())

	phantom, err := testkit.NewPhantomGenerator(testkit.DefaultPhantomConfig()).Generate()
	require.NoError(t, err)

	res, err := c.Service.RunWithInputs(ctx, app.Request{
		RunID:           "wired",
		Permutations:    20,
		Alpha:           0.05,
		Cluster:         clusterx.DefaultOptions(),
		SelectionPolicy: cluster.SelectLargest,
		Seed:            1,
	}, app.Inputs{Series: phantom.Series, SeedMask: phantom.SeedMask, TargetMask: phantom.TargetMask})
	require.NoError(t, err)
	require.Empty(t, res.SinkErrors)

	rec, _, err := c.Reports.GetRun(ctx, "wired")
	require.NoError(t, err)
	assert.Equal(t, string(res.Report.Status), rec.Status)

	for _, name := range []string{"wired.xlsx", "wired.md", "wired.html", "fctarget.db"} {
		_, err := os.Stat(filepath.Join(cfg.Reports.Dir, name))
		assert.NoError(t, err, name)
	}

	_, err = c.ArtifactStore.Head(ctx, artifacts.SeedSeriesKey("wired"))
	assert.NoError(t, err)
	_, err = c.ArtifactStore.Head(ctx, artifacts.TrialSeriesKey("wired", 0))
	assert.NoError(t, err)
	for _, suffix := range []string{artifacts.SuffixObservedMap, artifacts.SuffixSigMask, artifacts.SuffixClusterMap} {
		_, err = c.ArtifactStore.Head(ctx, artifacts.MapKey("wired", "", suffix))
		assert.NoError(t, err, suffix)
	}
}

func TestContainerWithoutOptionalStores(t *testing.T) {
	cfg := testConfig(t)
	cfg.Artifacts.Enabled = false
	cfg.Reports.DBDriver = ""

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, c.ReportReader())
	assert.Nil(t, c.Artifacts)
	assert.Nil(t, c.DB)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"fctarget/adapters/artifacts"
	"fctarget/adapters/blob"
	"fctarget/adapters/engine"
	"fctarget/adapters/nifti"
	"fctarget/adapters/report"
	"fctarget/adapters/rng"
	"fctarget/adapters/sqlstore"
	"fctarget/app"
	"fctarget/internal"
	"fctarget/internal/config"
	"fctarget/internal/errors"
	"fctarget/internal/nulldist"
	"fctarget/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB            *sqlx.DB
	ArtifactStore blob.Store

	// Adapters
	Locator   *nifti.Locator
	Engine    ports.SpatialFieldEngine
	RNG       ports.RNGPort
	Artifacts ports.ArtifactSink
	Reports   *sqlstore.ReportRepository

	// Pipeline
	Builder *nulldist.Builder
	Service *app.TargetingService
}

// New builds every component named by cfg. extra sinks receive reports in
// addition to the configured ones.
func New(ctx context.Context, cfg *config.Config, extra ...ports.ReportSink) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		Logger: newLogger(cfg.Log),
		Engine: engine.NewPearsonEngine(),
		RNG:    rng.NewSeededSource(),
	}
	c.Locator = nifti.NewLocator(cfg.Inputs.Root, c.Logger)

	if err := c.initArtifacts(ctx); err != nil {
		return nil, err
	}
	if err := c.initReportStore(ctx); err != nil {
		return nil, err
	}

	opts := []nulldist.Option{
		nulldist.WithWorkers(cfg.Targeting.Workers),
		nulldist.WithTrialTimeout(cfg.Targeting.TrialTimeout),
		nulldist.WithLogger(c.Logger),
	}
	if c.Artifacts != nil {
		opts = append(opts, nulldist.WithArtifactSink(c.Artifacts))
	}
	c.Builder = nulldist.NewBuilder(c.Engine, c.RNG, opts...)

	svcOpts := []app.ServiceOption{
		app.WithServiceLogger(c.Logger),
		app.WithReportSinks(c.reportSinks(extra)...),
	}
	if c.Artifacts != nil {
		svcOpts = append(svcOpts, app.WithArtifacts(c.Artifacts))
	}
	c.Service = app.NewTargetingService(c.Locator, c.Engine, c.Builder, svcOpts...)

	return c, nil
}

func newLogger(cfg config.LogConfig) *internal.Logger {
	level := internal.ParseLogLevel(cfg.Level)
	if strings.EqualFold(cfg.Format, "json") {
		return internal.NewJSONLogger(level)
	}
	return internal.NewLogger(level)
}

func (c *Container) initArtifacts(ctx context.Context) error {
	if !c.Config.Artifacts.Enabled {
		return nil
	}
	store, err := blob.Open(ctx, c.Config.Artifacts.Blob)
	if err != nil {
		return errors.StorageError("failed to open artifact store", err)
	}
	c.ArtifactStore = store
	c.Artifacts = artifacts.NewBlobSink(store)
	c.Logger.Info("Artifact store: %s", store.Driver())
	return nil
}

func (c *Container) initReportStore(ctx context.Context) error {
	rc := c.Config.Reports
	if rc.DBDriver == "" {
		return nil
	}

	dsn := rc.DatabaseURL
	if dsn == "" && rc.DBDriver == sqlstore.DriverSQLite {
		if err := os.MkdirAll(rc.Dir, 0o755); err != nil {
			return errors.StorageError("failed to create report directory", err)
		}
		dsn = filepath.Join(rc.Dir, "fctarget.db")
	}

	db, err := sqlstore.Open(rc.DBDriver, dsn)
	if err != nil {
		return errors.DatabaseError("failed to open report database", err)
	}
	repo := sqlstore.NewReportRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}
	c.DB = db
	c.Reports = repo
	c.Logger.Info("Report store: %s", rc.DBDriver)
	return nil
}

func (c *Container) reportSinks(extra []ports.ReportSink) []ports.ReportSink {
	rc := c.Config.Reports
	var sinks []ports.ReportSink
	if c.Reports != nil {
		sinks = append(sinks, c.Reports)
	}
	if rc.XLSX {
		sinks = append(sinks, report.NewXLSXWriter(rc.Dir))
	}
	if rc.Markdown || rc.HTML {
		sinks = append(sinks, report.NewMarkdownWriter(rc.Dir, rc.HTML))
	}
	return append(sinks, extra...)
}

// ReportReader returns the stored-report reader, or nil when no database is configured
func (c *Container) ReportReader() ports.ReportReader {
	if c.Reports == nil {
		return nil
	}
	return c.Reports
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

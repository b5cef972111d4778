package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	Version string
	SQL     string
}

// migrations are applied in order; statements must be valid for both
// PostgreSQL and SQLite
var migrations = []migration{
	{
		Version: "0001_fc_runs",
		SQL: `
		CREATE TABLE IF NOT EXISTS fc_runs (
			run_id           TEXT PRIMARY KEY,
			status           TEXT NOT NULL,
			threshold        DOUBLE PRECISION NOT NULL,
			alpha            DOUBLE PRECISION NOT NULL,
			trials_requested INTEGER NOT NULL,
			trials_completed INTEGER NOT NULL,
			trials_skipped   INTEGER NOT NULL,
			cluster_count    INTEGER NOT NULL,
			target_x         DOUBLE PRECISION,
			target_y         DOUBLE PRECISION,
			target_z         DOUBLE PRECISION,
			payload          TEXT NOT NULL,
			created_at       TIMESTAMP NOT NULL
		)`,
	},
	{
		Version: "0002_fc_clusters",
		SQL: `
		CREATE TABLE IF NOT EXISTS fc_clusters (
			run_id     TEXT NOT NULL REFERENCES fc_runs(run_id) ON DELETE CASCADE,
			rank       INTEGER NOT NULL,
			size       INTEGER NOT NULL,
			peak       DOUBLE PRECISION NOT NULL,
			mean_value DOUBLE PRECISION NOT NULL,
			sign       TEXT NOT NULL,
			com_x      DOUBLE PRECISION NOT NULL,
			com_y      DOUBLE PRECISION NOT NULL,
			com_z      DOUBLE PRECISION NOT NULL,
			target_x   DOUBLE PRECISION NOT NULL,
			target_y   DOUBLE PRECISION NOT NULL,
			target_z   DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, rank)
		)`,
	},
	{
		Version: "0003_fc_runs_created_at_idx",
		SQL:     `CREATE INDEX IF NOT EXISTS fc_runs_created_at_idx ON fc_runs (created_at)`,
	},
}

// Migrator handles database schema migrations
type Migrator struct {
	db *sqlx.DB
}

// NewMigrator creates a new migrator
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db}
}

// Up executes all pending migrations and returns the versions applied
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var versions []string
	if err := m.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	var done []string
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return done, fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
		}
		done = append(done, mig.Version)
	}
	return done, nil
}

func (m *Migrator) apply(ctx context.Context, mig migration) error {
	sum := sha256.Sum256([]byte(mig.SQL))

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)`),
		mig.Version, hex.EncodeToString(sum[:])); err != nil {
		return err
	}
	return tx.Commit()
}

package migration

import (
	"context"
	"log"

	"bankml/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the experiment-tracking schema. Statements are
// portable between SQLite and PostgreSQL and safe to run repeatedly.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all tracking-store migrations in dependency order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createExperimentsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create experiments table")
	}

	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create runs table")
	}

	if err := r.createRunDataTables(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create run data tables")
	}

	r.createIndexes(ctx, db)
	return nil
}

func (r *MigrationRunner) createExperimentsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			experiment_id VARCHAR(32) PRIMARY KEY,
			name VARCHAR(256) NOT NULL UNIQUE,
			artifact_location TEXT NOT NULL,
			lifecycle_stage VARCHAR(32) NOT NULL,
			creation_time BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_uuid VARCHAR(32) PRIMARY KEY,
			experiment_id VARCHAR(32) NOT NULL REFERENCES experiments(experiment_id),
			name VARCHAR(250) NOT NULL,
			status VARCHAR(20) NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			artifact_uri TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createRunDataTables(ctx context.Context, db *sqlx.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS params (
			run_uuid VARCHAR(32) NOT NULL REFERENCES runs(run_uuid),
			key VARCHAR(250) NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (run_uuid, key)
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_uuid VARCHAR(32) NOT NULL REFERENCES runs(run_uuid),
			key VARCHAR(250) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			step BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			run_uuid VARCHAR(32) NOT NULL REFERENCES runs(run_uuid),
			key VARCHAR(250) NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (run_uuid, key)
		)`,
	}
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_experiment_id ON runs(experiment_id)",
		"CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time)",
		"CREATE INDEX IF NOT EXISTS idx_metrics_run_key ON metrics(run_uuid, key)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Index failures do not block tracking
			log.Printf("[Migration] ⚠️ failed to create index: %v", err)
		}
	}
}

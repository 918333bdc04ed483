package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"bankml/internal/errors"
	"bankml/internal/migration"
	"bankml/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLTracker stores runs in a SQL database. Artifacts are copied to a
// directory tree under artifactRoot.
type SQLTracker struct {
	db           *sqlx.DB
	artifactRoot string
}

// OpenSQLTracker connects with the given driver ("sqlite3" or "postgres")
// and creates the tracking tables if they are absent.
func OpenSQLTracker(ctx context.Context, driver, dsn, artifactRoot string) (*SQLTracker, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.ExternalServiceError("tracking database", err)
	}
	if driver == "sqlite3" {
		// a single connection keeps ":memory:" databases shared
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ExternalServiceError("tracking database", err)
	}
	tracker, err := NewSQLTracker(ctx, db, artifactRoot)
	if err != nil {
		db.Close()
		return nil, err
	}
	return tracker, nil
}

// NewSQLTracker wraps an open database, creating the schema if needed
func NewSQLTracker(ctx context.Context, db *sqlx.DB, artifactRoot string) (*SQLTracker, error) {
	if artifactRoot == "" {
		artifactRoot = "mlartifacts"
	}
	root, err := filepath.Abs(artifactRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve artifact root %s", artifactRoot)
	}
	var migrator migration.Migrator = migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		return nil, errors.ExternalServiceError("tracking database", err)
	}
	return &SQLTracker{db: db, artifactRoot: root}, nil
}

func (t *SQLTracker) Close() error {
	return t.db.Close()
}

// DB exposes the underlying connection
func (t *SQLTracker) DB() *sqlx.DB {
	return t.db
}

func (t *SQLTracker) StartRun(ctx context.Context, experimentName, runName string) (ports.Run, error) {
	experimentID, err := t.experimentID(ctx, experimentName)
	if err != nil {
		return nil, err
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	artifactDir := filepath.Join(t.artifactRoot, experimentID, runID, "artifacts")

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.ExternalServiceError("tracking database", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, t.db.Rebind(
		`INSERT INTO runs (run_uuid, experiment_id, name, status, start_time, artifact_uri) VALUES (?, ?, ?, ?, ?, ?)`),
		runID, experimentID, runName, "RUNNING", nowMillis(), artifactDir,
	); err != nil {
		return nil, errors.ExternalServiceError("tracking database", fmt.Errorf("failed to create run: %w", err))
	}
	if _, err := tx.ExecContext(ctx, t.db.Rebind(
		`INSERT INTO tags (run_uuid, key, value) VALUES (?, ?, ?)`),
		runID, tagRunName, runName,
	); err != nil {
		return nil, errors.ExternalServiceError("tracking database", fmt.Errorf("failed to tag run: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.ExternalServiceError("tracking database", err)
	}

	log.Printf("[Tracking] 🏃 Started run %s in experiment %s (%s)", runID, experimentName, experimentID)
	return &sqlRun{tracker: t, id: runID, artifactDir: artifactDir}, nil
}

func (t *SQLTracker) experimentID(ctx context.Context, name string) (string, error) {
	var id string
	err := t.db.GetContext(ctx, &id, t.db.Rebind(`SELECT experiment_id FROM experiments WHERE name = ?`), name)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", errors.ExternalServiceError("tracking database", fmt.Errorf("failed to look up experiment: %w", err))
	}

	var count int
	if err := t.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM experiments`); err != nil {
		return "", errors.ExternalServiceError("tracking database", err)
	}
	id = fmt.Sprintf("%d", count+1)
	if _, err := t.db.ExecContext(ctx, t.db.Rebind(
		`INSERT INTO experiments (experiment_id, name, artifact_location, lifecycle_stage, creation_time) VALUES (?, ?, ?, ?, ?)`),
		id, name, filepath.Join(t.artifactRoot, id), "active", nowMillis(),
	); err != nil {
		return "", errors.ExternalServiceError("tracking database", fmt.Errorf("failed to create experiment: %w", err))
	}
	log.Printf("[Tracking] 🆕 Created experiment %s (%s)", name, id)
	return id, nil
}

type sqlRun struct {
	tracker     *SQLTracker
	id          string
	artifactDir string
}

func (r *sqlRun) ID() string {
	return r.id
}

func (r *sqlRun) LogParams(ctx context.Context, params map[string]string) error {
	db := r.tracker.db
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}
	defer tx.Rollback()

	stmt := db.Rebind(`INSERT INTO params (run_uuid, key, value) VALUES (?, ?, ?)`)
	for _, key := range sortedKeys(params) {
		if _, err := tx.ExecContext(ctx, stmt, r.id, key, params[key]); err != nil {
			return errors.ExternalServiceError("tracking database", fmt.Errorf("failed to log param %s: %w", key, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}
	return nil
}

func (r *sqlRun) LogMetric(ctx context.Context, key string, value float64) error {
	db := r.tracker.db
	if _, err := db.ExecContext(ctx, db.Rebind(
		`INSERT INTO metrics (run_uuid, key, value, timestamp, step) VALUES (?, ?, ?, ?, ?)`),
		r.id, key, value, nowMillis(), 0,
	); err != nil {
		return errors.ExternalServiceError("tracking database", fmt.Errorf("failed to log metric %s: %w", key, err))
	}
	return nil
}

func (r *sqlRun) LogModel(ctx context.Context, artifactPath, localDir string) error {
	if err := validKey(artifactPath); err != nil {
		return err
	}
	if err := copyDir(localDir, filepath.Join(r.artifactDir, artifactPath)); err != nil {
		return errors.ExternalServiceError("artifact store", err)
	}

	descriptor, err := modelJSON(localDir, r.id, artifactPath)
	if err != nil {
		return err
	}

	db := r.tracker.db
	var existing string
	err = db.GetContext(ctx, &existing, db.Rebind(`SELECT value FROM tags WHERE run_uuid = ? AND key = ?`), r.id, tagLogModelHistory)
	if err != nil && err != sql.ErrNoRows {
		return errors.ExternalServiceError("tracking database", err)
	}
	history, err := appendHistory(existing, descriptor)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, db.Rebind(`DELETE FROM tags WHERE run_uuid = ? AND key = ?`), r.id, tagLogModelHistory); err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(`INSERT INTO tags (run_uuid, key, value) VALUES (?, ?, ?)`), r.id, tagLogModelHistory, history); err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.ExternalServiceError("tracking database", err)
	}

	log.Printf("[Tracking] 📦 Logged model %s to run %s", artifactPath, r.id)
	return nil
}

func (r *sqlRun) End(ctx context.Context, status ports.RunStatus) error {
	db := r.tracker.db
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE runs SET status = ?, end_time = ? WHERE run_uuid = ?`), string(status), nowMillis(), r.id)
	if err != nil {
		return errors.ExternalServiceError("tracking database", fmt.Errorf("failed to end run: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run " + r.id)
	}
	log.Printf("[Tracking] 🏁 Run %s ended %s", r.id, status)
	return nil
}

// Package store keeps a SQLite history of sweep runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/sweep"
)

// Run is one stored sweep.
type Run struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	ImagesDir  string
	ImageCount int
	Attempted  int
	Succeeded  int
	ParetoSize int
}

// ComboRow is one stored combo of a run.
type ComboRow struct {
	Combo  models.ThresholdCombo
	Scored int
	Failed int
	Pareto bool
}

// FailureRow is one stored combo or image failure. ImageID is empty for combo failures.
type FailureRow struct {
	Key     models.ComboKey
	ImageID string
	Kind    string
	Message string
}

type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string, log logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db, logger: log}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Store", "database ready", map[string]interface{}{"path": path})
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a finished sweep with all its combos and failures in one
// transaction and returns the stored run with its generated id.
func (s *Store) SaveRun(ctx context.Context, imagesDir string, imageCount int, report *sweep.Report, front []models.ThresholdCombo) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String(),
		StartedAt:  report.StartedAt,
		Duration:   report.Duration,
		ImagesDir:  imagesDir,
		ImageCount: imageCount,
		Attempted:  report.Attempted,
		Succeeded:  report.Succeeded,
		ParetoSize: len(front),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", models.ErrWrite, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sweep_runs (
			run_id, started_at_ns, duration_ns, images_dir, image_count,
			attempted, succeeded, pareto_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), int64(run.Duration), run.ImagesDir, run.ImageCount,
		run.Attempted, run.Succeeded, run.ParetoSize,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert run: %v", models.ErrWrite, err)
	}

	onFront := sweep.ParetoKeys(front)
	position := 0
	for _, o := range report.Outcomes {
		if o.Combo == nil || o.Err != nil {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sweep_combos (
				run_id, position, global_method, local_method, name,
				accuracy, difference, ji, scored, failed, pareto
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, position, o.Key.Global, o.Key.Local, o.Combo.Name,
			o.Combo.Accuracy, o.Combo.Difference, o.Combo.JI, o.Scored, o.Failed, onFront[o.Key],
		)
		if err != nil {
			return nil, fmt.Errorf("%w: insert combo %s: %v", models.ErrWrite, o.Key.Name(), err)
		}
		position++
	}

	for _, f := range report.ComboFailures {
		if err := insertFailure(ctx, tx, run.ID, f.Key, "", f.Err); err != nil {
			return nil, err
		}
	}
	for _, f := range report.ImageFailures {
		if err := insertFailure(ctx, tx, run.ID, f.Key, f.ImageID, f.Err); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit run: %v", models.ErrWrite, err)
	}

	s.logger.Info("Store", "sweep run stored", map[string]interface{}{
		"run_id": run.ID,
		"combos": position,
	})
	return run, nil
}

func insertFailure(ctx context.Context, tx *sql.Tx, runID string, key models.ComboKey, imageID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sweep_failures (run_id, global_method, local_method, image_id, kind, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, key.Global, key.Local, imageID, models.ErrorKind(cause), msg,
	)
	if err != nil {
		return fmt.Errorf("%w: insert failure for %s: %v", models.ErrWrite, key.Name(), err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT run_id, started_at_ns, duration_ns, images_dir, image_count,
		       attempted, succeeded, pareto_size
		FROM sweep_runs
		ORDER BY started_at_ns DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedNs, durationNs int64
		if err := rows.Scan(&r.ID, &startedNs, &durationNs, &r.ImagesDir, &r.ImageCount,
			&r.Attempted, &r.Succeeded, &r.ParetoSize); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, startedNs)
		r.Duration = time.Duration(durationNs)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunCombos returns the stored combos of a run in sweep order. With paretoOnly
// set only the Pareto front is returned.
func (s *Store) RunCombos(ctx context.Context, runID string, paretoOnly bool) ([]ComboRow, error) {
	query := `
		SELECT global_method, local_method, accuracy, difference, ji, scored, failed, pareto
		FROM sweep_combos
		WHERE run_id = ?`
	if paretoOnly {
		query += ` AND pareto = 1`
	}
	query += ` ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list combos: %w", err)
	}
	defer rows.Close()

	var combos []ComboRow
	for rows.Next() {
		var key models.ComboKey
		var acc, diff, ji float64
		var row ComboRow
		if err := rows.Scan(&key.Global, &key.Local, &acc, &diff, &ji, &row.Scored, &row.Failed, &row.Pareto); err != nil {
			return nil, fmt.Errorf("scan combo: %w", err)
		}
		row.Combo = models.NewThresholdCombo(key, acc, diff, ji)
		combos = append(combos, row)
	}
	return combos, rows.Err()
}

// RunFailures returns the stored failures of a run in insertion order.
func (s *Store) RunFailures(ctx context.Context, runID string) ([]FailureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT global_method, local_method, image_id, kind, message
		FROM sweep_failures
		WHERE run_id = ?
		ORDER BY failure_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var failures []FailureRow
	for rows.Next() {
		var f FailureRow
		if err := rows.Scan(&f.Key.Global, &f.Key.Local, &f.ImageID, &f.Kind, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Package report persists batch run reports to a local SQLite database so
// past runs stay queryable after the process exits.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// SQLiteStore implements domain.ReportStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite report store. The database file and
// schema are created if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		succeeded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		aggregate_halted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sample_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		sample_id TEXT NOT NULL,
		state TEXT NOT NULL,
		error_kind TEXT DEFAULT '',
		message TEXT DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		UNIQUE(run_id, sample_id)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON sample_outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveRun stores a batch report and all of its per-sample outcomes in one
// transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, report *domain.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, succeeded, skipped, failed, aggregate_halted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.StartedAt,
		report.FinishedAt,
		report.Succeeded,
		report.Skipped,
		report.Failed,
		report.AggregateHalted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, o := range report.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sample_outcomes (run_id, sample_id, state, error_kind, message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			report.RunID,
			string(o.SampleID),
			string(o.State),
			string(o.ErrorKind),
			o.Message,
			o.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.SampleID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a stored report by run id, outcomes included. Returns
// nil when the run is unknown.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.BatchReport, error) {
	report := &domain.BatchReport{}
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, succeeded, skipped, failed, aggregate_halted
		FROM runs WHERE run_id = ?
	`, runID).Scan(
		&report.RunID, &report.StartedAt, &report.FinishedAt,
		&report.Succeeded, &report.Skipped, &report.Failed, &report.AggregateHalted,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sample_id, state, error_kind, message, duration_ms
		FROM sample_outcomes WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o          domain.SampleOutcome
			durationMS int64
		)
		if err := rows.Scan(&o.SampleID, &o.State, &o.ErrorKind, &o.Message, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		report.Outcomes = append(report.Outcomes, o)
	}
	return report, rows.Err()
}

// ListRuns returns run summaries (no outcomes), most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.BatchReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, succeeded, skipped, failed, aggregate_halted
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var reports []domain.BatchReport
	for rows.Next() {
		var r domain.BatchReport
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt,
			&r.Succeeded, &r.Skipped, &r.Failed, &r.AggregateHalted); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

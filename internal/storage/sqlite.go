// Package storage keeps a bounded sqlite history of runs, monitor results
// and reporter deliveries.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/osbits/obtmon/internal/engine"
)

// Options configures storage behaviour.
type Options struct {
	// Retention is the number of rows kept per monitor, per reporter and for runs.
	Retention int
}

// Store wraps sqlite persistence for runs.
type Store struct {
	db    *sql.DB
	limit int
}

// Run summarises one orchestration run.
type Run struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ExitCode   int       `json:"exit_code"`
	Skipped    bool      `json:"skipped"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
}

// CheckRun is a persisted monitor result.
type CheckRun struct {
	RunID      string        `json:"run_id"`
	Name       string        `json:"name"`
	Command    string        `json:"command"`
	ExitStatus int           `json:"exit_status"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration_ns"`
	StartedAt  time.Time     `json:"started_at"`
}

// ReporterRun is a persisted reporter delivery.
type ReporterRun struct {
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	ExitStatus int       `json:"exit_status"`
	Stderr     string    `json:"stderr"`
	StartedAt  time.Time `json:"started_at"`
}

// Open initialises a sqlite store with WAL enabled and required schema.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	limit := opts.Retention
	if limit <= 0 {
		limit = 30
	}
	store := &Store{db: db, limit: limit}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureSQLite(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			exit_code INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			total INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS check_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			command TEXT NOT NULL,
			exit_status INTEGER NOT NULL,
			stdout TEXT,
			stderr TEXT,
			duration_ms INTEGER,
			started_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_check_runs_name ON check_runs (name, id DESC);`,
		`CREATE TABLE IF NOT EXISTS reporter_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			exit_status INTEGER NOT NULL,
			stderr TEXT,
			started_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reporter_runs_name ON reporter_runs (name, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// ObserveRun persists an outcome and enforces retention.
func (s *Store) ObserveRun(ctx context.Context, out engine.Outcome) (err error) {
	if s == nil || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, exit_code, skipped, failed, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, out.RunID, out.StartedAt.UTC(), out.Finished.UTC(), out.ExitCode, boolToInt(out.Skipped), len(out.Failed), len(out.Results))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)
	`, s.limit); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}

	for _, r := range out.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO check_runs (run_id, name, command, exit_status, stdout, stderr, duration_ms, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, out.RunID, r.Spec.Name, strings.Join(r.Spec.Command, " "), r.ExitStatus, r.Stdout, r.Stderr,
			int64(r.Duration/time.Millisecond), startedAt(r.StartedAt, out.StartedAt))
		if err != nil {
			return fmt.Errorf("insert check_run: %w", err)
		}
		if err = s.prune(ctx, tx, "check_runs", r.Spec.Name); err != nil {
			return err
		}
	}

	for _, r := range out.ReporterResults {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reporter_runs (run_id, name, exit_status, stderr, started_at)
			VALUES (?, ?, ?, ?, ?)
		`, out.RunID, r.Spec.Name, r.ExitStatus, r.Stderr, startedAt(r.StartedAt, out.StartedAt))
		if err != nil {
			return fmt.Errorf("insert reporter_run: %w", err)
		}
		if err = s.prune(ctx, tx, "reporter_runs", r.Spec.Name); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (s *Store) prune(ctx context.Context, tx *sql.Tx, table, name string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE name = ? AND id NOT IN (
			SELECT id FROM %[1]s
			WHERE name = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, table), name, name, s.limit)
	if err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	return nil
}

// RecentCheckRuns returns up to limit results for the named monitor, newest first.
func (s *Store) RecentCheckRuns(ctx context.Context, name string, limit int) ([]CheckRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialised")
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, command, exit_status, stdout, stderr, duration_ms, started_at
		FROM check_runs
		WHERE name = ?
		ORDER BY id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query check_runs: %w", err)
	}
	defer rows.Close()

	var runs []CheckRun
	for rows.Next() {
		var (
			run        CheckRun
			stdout     sql.NullString
			stderr     sql.NullString
			durationMs sql.NullInt64
		)
		if err := rows.Scan(&run.RunID, &run.Name, &run.Command, &run.ExitStatus, &stdout, &stderr, &durationMs, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("scan check_run: %w", err)
		}
		run.Stdout = stdout.String
		run.Stderr = stderr.String
		run.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecentReporterRuns returns up to limit deliveries for the named reporter, newest first.
func (s *Store) RecentReporterRuns(ctx context.Context, name string, limit int) ([]ReporterRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialised")
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, exit_status, stderr, started_at
		FROM reporter_runs
		WHERE name = ?
		ORDER BY id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query reporter_runs: %w", err)
	}
	defer rows.Close()

	var runs []ReporterRun
	for rows.Next() {
		var (
			run    ReporterRun
			stderr sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.Name, &run.ExitStatus, &stderr, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("scan reporter_run: %w", err)
		}
		run.Stderr = stderr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run. The boolean is false when no run
// has been recorded.
func (s *Store) LatestRun(ctx context.Context) (Run, bool, error) {
	if s == nil || s.db == nil {
		return Run{}, false, errors.New("store not initialised")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, exit_code, skipped, failed, total
		FROM runs
		ORDER BY id DESC
		LIMIT 1
	`)
	var (
		run     Run
		skipped int
	)
	if err := row.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.ExitCode, &skipped, &run.Failed, &run.Total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("query latest run: %w", err)
	}
	run.Skipped = skipped == 1
	return run, true, nil
}

func startedAt(t, fallback time.Time) time.Time {
	if t.IsZero() {
		t = fallback
	}
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

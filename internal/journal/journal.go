// Package journal keeps a SQLite history of retention runs and of every
// snapshot each run pruned.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Action outcomes.
const (
	OutcomeDestroyed = "destroyed"
	OutcomeFailed    = "failed"
	OutcomeDryRun    = "dry-run"
)

// Run is one recorded evaluation.
type Run struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Now      time.Time // evaluation instant, may differ from Started with --now
	DryRun   bool

	Kept    int
	Pending int
	Pruned  int
	Failed  int
	Error   string

	Actions []Action
}

// Action is the outcome for one snapshot selected for pruning.
type Action struct {
	Snapshot string
	Outcome  string
	Error    string
}

type Journal struct {
	db *sql.DB
}

// Open creates or upgrades the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id          TEXT PRIMARY KEY,
		  started_at  INTEGER NOT NULL,
		  finished_at INTEGER NOT NULL,
		  eval_at     INTEGER NOT NULL,
		  dry_run     INTEGER NOT NULL,
		  kept        INTEGER NOT NULL,
		  pending     INTEGER NOT NULL,
		  pruned      INTEGER NOT NULL,
		  failed      INTEGER NOT NULL,
		  error       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS actions (
		  run_id   TEXT NOT NULL REFERENCES runs(id),
		  snapshot TEXT NOT NULL,
		  outcome  TEXT NOT NULL,
		  error    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_actions_run
		ON actions(run_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", CurrentSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}

	return nil
}

// Record stores a run and its actions in one transaction.
func (j *Journal) Record(ctx context.Context, r Run) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, eval_at, dry_run, kept, pending, pruned, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started.UnixMilli(), r.Finished.UnixMilli(), r.Now.UnixMilli(), r.DryRun,
		r.Kept, r.Pending, r.Pruned, r.Failed, nullString(r.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	for _, a := range r.Actions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actions (run_id, snapshot, outcome, error) VALUES (?, ?, ?, ?)`,
			r.ID, a.Snapshot, a.Outcome, nullString(a.Error),
		)
		if err != nil {
			return fmt.Errorf("insert action for %s: %w", a.Snapshot, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit runs, newest first. Actions are not loaded.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, eval_at, dry_run, kept, pending, pruned, failed, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                       Run
			started, finished, eval int64
			errText                 sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &eval, &r.DryRun,
			&r.Kept, &r.Pending, &r.Pruned, &r.Failed, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.UnixMilli(started)
		r.Finished = time.UnixMilli(finished)
		r.Now = time.UnixMilli(eval)
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Actions returns the recorded outcomes of one run.
func (j *Journal) Actions(ctx context.Context, runID string) ([]Action, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT snapshot, outcome, error FROM actions WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var (
			a       Action
			errText sql.NullString
		)
		if err := rows.Scan(&a.Snapshot, &a.Outcome, &errText); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Error = errText.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

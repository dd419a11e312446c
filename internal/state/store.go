package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite run database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DefaultPath returns the database path under dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "state.db")
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, target, document, dir, status, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Target, r.Document, r.Dir, r.Status, r.Error, r.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status.
func (s *Store) FinishRun(id string, status RunStatus, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, target, document, dir, status, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first, up to limit (0 means all).
func (s *Store) ListRuns(limit int) ([]Run, error) {
	q := `SELECT id, target, document, dir, status, error, started_at, finished_at
	      FROM runs ORDER BY started_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// PruneRuns deletes finished runs started before the cutoff, cascading to
// their task attempts. Returns the number of runs deleted.
func (s *Store) PruneRuns(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM runs WHERE started_at < ? AND status IN (?, ?)`,
		before.UTC(), RunSucceeded, RunFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordTask inserts or updates a task attempt.
func (s *Store) RecordTask(t TaskAttempt) error {
	var finished any
	if t.FinishedAt != nil {
		finished = t.FinishedAt.UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO task_attempts (id, run_id, name, shard, status, exit_code, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   exit_code = excluded.exit_code,
		   error = excluded.error,
		   finished_at = excluded.finished_at`,
		t.ID, t.RunID, t.Name, t.Shard, t.Status, t.ExitCode, t.Error, t.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// ListTasks returns a run's task attempts in start order.
func (s *Store) ListTasks(runID string) ([]TaskAttempt, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, name, shard, status, exit_code, error, started_at, finished_at
		 FROM task_attempts WHERE run_id = ? ORDER BY started_at, name, shard`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []TaskAttempt
	for rows.Next() {
		var t TaskAttempt
		var finished sql.NullTime
		err := rows.Scan(&t.ID, &t.RunID, &t.Name, &t.Shard, &t.Status,
			&t.ExitCode, &t.Error, &t.StartedAt, &finished)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if finished.Valid {
			ft := finished.Time
			t.FinishedAt = &ft
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Target, &r.Document, &r.Dir, &r.Status,
		&r.Error, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		ft := finished.Time
		r.FinishedAt = &ft
	}
	return &r, nil
}

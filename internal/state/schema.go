// Package state persists run and task attempt records in a local SQLite
// database.
package state

import "time"

// RunStatus is a run's lifecycle state.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// TaskStatus is a task attempt's lifecycle state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Run is one invocation of a workflow or task.
type Run struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	Document   string     `json:"document"`
	Dir        string     `json:"dir"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskAttempt is one execution of a task within a run. Shard is -1 outside
// scatter sections.
type TaskAttempt struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	Shard      int        `json:"shard"`
	Status     TaskStatus `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	document    TEXT NOT NULL,
	dir         TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS task_attempts (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	shard       INTEGER NOT NULL DEFAULT -1,
	status      TEXT NOT NULL,
	exit_code   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_task_attempts_run ON task_attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Package runtime executes tasks and workflows: it localizes inputs,
// instantiates command templates, runs commands under the configured
// backend, and collects outputs.
package runtime

import (
	"errors"
	"fmt"
)

// ErrInterrupted marks a run aborted by signal or context cancellation.
var ErrInterrupted = errors.New("run interrupted")

// RunFailed wraps the cause of a failed run with its identity.
type RunFailed struct {
	RunID  string
	Target string
	Err    error
}

func (e *RunFailed) Error() string {
	return fmt.Sprintf("run %s (%s) failed: %v", e.RunID, e.Target, e.Err)
}

func (e *RunFailed) Unwrap() error { return e.Err }

// TaskFailed reports a task command exiting nonzero.
type TaskFailed struct {
	Task string
	// Shard is -1 outside scatter sections.
	Shard      int
	ExitCode   int
	StderrTail string
}

func (e *TaskFailed) Error() string {
	name := e.Task
	if e.Shard >= 0 {
		name = fmt.Sprintf("%s (shard %d)", name, e.Shard)
	}
	msg := fmt.Sprintf("task %s failed with exit status %d", name, e.ExitCode)
	if e.StderrTail != "" {
		msg += "\nstderr: " + e.StderrTail
	}
	return msg
}

// DownloadFailed reports a failure localizing a remote File input.
type DownloadFailed struct {
	URI string
	Err error
}

func (e *DownloadFailed) Error() string {
	return fmt.Sprintf("unable to download %s: %v", e.URI, e.Err)
}

func (e *DownloadFailed) Unwrap() error { return e.Err }

// OutputError reports a failure evaluating or collecting a task output.
type OutputError struct {
	Task   string
	Output string
	Err    error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("task %s output %s: %v", e.Task, e.Output, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

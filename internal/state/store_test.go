package state

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	started := time.Now().Add(-time.Minute)

	run := Run{
		ID:        "run-1",
		Target:    "main",
		Document:  "wf.wdl",
		Dir:       "/tmp/runs/run-1",
		Status:    RunRunning,
		StartedAt: started,
	}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Target != "main" || got.Status != RunRunning || got.FinishedAt != nil {
		t.Errorf("run = %+v", got)
	}

	if err := s.FinishRun("run-1", RunSucceeded, ""); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunSucceeded {
		t.Errorf("status = %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		err := s.CreateRun(Run{
			ID: id, Target: "main", Status: RunRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Errorf("runs = %+v", runs)
	}

	runs, err = s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2): %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" {
		t.Errorf("limited runs = %+v", runs)
	}
}

func TestPruneRuns(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	for _, r := range []Run{
		{ID: "old-done", Target: "t", Status: RunRunning, StartedAt: old},
		{ID: "old-running", Target: "t", Status: RunRunning, StartedAt: old},
		{ID: "recent-done", Target: "t", Status: RunRunning, StartedAt: recent},
	} {
		if err := s.CreateRun(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.FinishRun("old-done", RunFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun("recent-done", RunSucceeded, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTask(TaskAttempt{
		ID: "old-done/t", RunID: "old-done", Name: "t", Shard: -1,
		Status: TaskFailed, ExitCode: 1, StartedAt: old,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.PruneRuns(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	// Unfinished runs survive regardless of age.
	if _, err := s.GetRun("old-running"); err != nil {
		t.Errorf("old-running pruned: %v", err)
	}
	if _, err := s.GetRun("recent-done"); err != nil {
		t.Errorf("recent-done pruned: %v", err)
	}
	// Task attempts cascade with their run.
	tasks, err := s.ListTasks("old-done")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("orphaned tasks = %+v", tasks)
	}
}

func TestRecordTaskUpsert(t *testing.T) {
	s := openTestStore(t)
	started := time.Now().Add(-time.Minute)
	if err := s.CreateRun(Run{ID: "r", Target: "main", Status: RunRunning, StartedAt: started}); err != nil {
		t.Fatal(err)
	}

	attempt := TaskAttempt{
		ID: "r/greet/0", RunID: "r", Name: "greet", Shard: 0,
		Status: TaskRunning, StartedAt: started,
	}
	if err := s.RecordTask(attempt); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	finished := time.Now()
	attempt.Status = TaskSucceeded
	attempt.FinishedAt = &finished
	if err := s.RecordTask(attempt); err != nil {
		t.Fatalf("RecordTask update: %v", err)
	}

	tasks, err := s.ListTasks("r")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1 (upsert)", len(tasks))
	}
	if tasks[0].Status != TaskSucceeded || tasks[0].FinishedAt == nil {
		t.Errorf("task = %+v", tasks[0])
	}
}

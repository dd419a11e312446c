package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/state"
)

func testServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, events.NewBus(), "127.0.0.1:0"), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s.Router(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestListRuns(t *testing.T) {
	s, store := testServer(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"r1", "r2"} {
		err := store.CreateRun(state.Run{
			ID: id, Target: "main", Status: state.RunRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec := get(t, s.Router(), "/api/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp output.RunsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Runs[0].ID != "r2" {
		t.Errorf("resp = %+v", resp)
	}

	rec = get(t, s.Router(), "/api/runs?limit=1")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Errorf("limited count = %d", resp.Count)
	}

	rec = get(t, s.Router(), "/api/runs?limit=banana")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	s, store := testServer(t)
	err := store.CreateRun(state.Run{
		ID: "r1", Target: "main", Status: state.RunRunning, StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, s.Router(), "/api/runs/r1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var item output.RunListItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatal(err)
	}
	if item.ID != "r1" || item.Target != "main" {
		t.Errorf("item = %+v", item)
	}

	rec = get(t, s.Router(), "/api/runs/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	s, store := testServer(t)
	started := time.Now().Add(-time.Minute)
	if err := store.CreateRun(state.Run{ID: "r1", Target: "main", Status: state.RunRunning, StartedAt: started}); err != nil {
		t.Fatal(err)
	}

	// A run with no attempts yet returns an empty array, not null.
	rec := get(t, s.Router(), "/api/runs/r1/tasks")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got == "null\n" {
		t.Errorf("empty task list rendered as %q", got)
	}

	err := store.RecordTask(state.TaskAttempt{
		ID: "a1", RunID: "r1", Name: "greet", Shard: 0,
		Status: state.TaskSucceeded, StartedAt: started,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec = get(t, s.Router(), "/api/runs/r1/tasks")
	var tasks []state.TaskAttempt
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Name != "greet" {
		t.Errorf("tasks = %+v", tasks)
	}

	rec = get(t, s.Router(), "/api/runs/missing/tasks")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d", rec.Code)
	}
}

func TestJournalFollower(t *testing.T) {
	base := t.TempDir()
	runDir := filepath.Join(base, "20260101_000000_main_abc")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	journalPath := filepath.Join(runDir, "events.jsonl")

	// Pre-existing content must not be replayed.
	j, err := events.OpenJournal(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	j.Emit(events.Event{Kind: events.RunStarted, RunID: "old"})

	bus := events.NewBus()
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	f := NewJournalFollower(base, bus)
	f.interval = 10 * time.Millisecond
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go f.Run(ctx)

	// Give the follower its initial poll, then append fresh events.
	time.Sleep(50 * time.Millisecond)
	j.Emit(events.Event{Kind: events.TaskStarted, RunID: "r1", Task: "greet"})
	j.Close()

	select {
	case ev := <-ch:
		if ev.Kind != events.TaskStarted || ev.RunID != "r1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follower never delivered the appended event")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected replayed event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

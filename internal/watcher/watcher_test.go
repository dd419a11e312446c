package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestWatcherDeliversChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.wdl")
	if err := os.WriteFile(file, []byte("version 1.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := make(chan []string, 1)
	w, err := New(func(paths []string) {
		select {
		case got <- paths:
		default:
		}
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Add(file); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := os.WriteFile(file, []byte("version 1.1\n# changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-got:
		abs, _ := filepath.Abs(file)
		if len(paths) != 1 || paths[0] != abs {
			t.Errorf("paths = %v, want [%s]", paths, abs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never called")
	}
}

func TestWatcherIgnoresUnregisteredFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "a.wdl")
	other := filepath.Join(dir, "b.wdl")
	for _, f := range []string{watched, other} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := make(chan []string, 1)
	w, err := New(func(paths []string) {
		select {
		case got <- paths:
		default:
		}
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Add(watched); err != nil {
		t.Fatal(err)
	}

	// A sibling in the same directory must not trigger the handler.
	if err := os.WriteFile(other, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case paths := <-got:
		t.Errorf("unexpected delivery %v", paths)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wdl")
	b := filepath.Join(dir, "b.wdl")
	for _, f := range []string{a, b} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	for _, f := range []string{a, b, a} {
		if err := w.Add(f); err != nil {
			t.Fatal(err)
		}
	}

	files := w.Files()
	sort.Strings(files)
	if len(files) != 2 {
		t.Fatalf("Files = %v", files)
	}
}

func TestWatcherClosed(t *testing.T) {
	w, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Add(filepath.Join(t.TempDir(), "x.wdl")); err != ErrClosed {
		t.Errorf("Add after Close = %v, want ErrClosed", err)
	}
}

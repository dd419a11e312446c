package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	runID := "a1b2c3d4-0000-0000-0000-000000000000"

	dir, err := CreateRunDir(base, "main", runID, now)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if filepath.Base(dir) != "20260314_092653_main_a1b2c3d4" {
		t.Errorf("dir name = %q", filepath.Base(dir))
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("run dir not created: %v", err)
	}

	// The same name must not be reused.
	if _, err := CreateRunDir(base, "main", runID, now); err == nil {
		t.Error("duplicate run dir accepted")
	}
}

func TestTaskDir(t *testing.T) {
	tests := []struct {
		name  string
		shard int
		want  string
	}{
		{"greet", -1, "call-greet"},
		{"greet", 0, "call-greet-0"},
		{"greet", 12, "call-greet-12"},
		{"sub.greet", -1, "call-sub-greet"},
	}
	for _, tt := range tests {
		if got := taskDir("/runs/r1", tt.name, tt.shard); got != filepath.Join("/runs/r1", tt.want) {
			t.Errorf("taskDir(%q, %d) = %q, want %q", tt.name, tt.shard, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("a1b2c3d4-567"); got != "a1b2c3d4" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("nodashes"); got != "nodashes" {
		t.Errorf("shortID = %q", got)
	}
}

func TestParseRuntimeDefaults(t *testing.T) {
	got, err := ParseRuntimeDefaults("")
	if err != nil || got != nil {
		t.Errorf("empty arg = %v, %v", got, err)
	}

	got, err = ParseRuntimeDefaults(`{"docker": "alpine:3.20", "cpu": 2}`)
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if got["docker"] != "alpine:3.20" {
		t.Errorf("docker = %v", got["docker"])
	}

	path := filepath.Join(t.TempDir(), "defaults.yaml")
	if err := os.WriteFile(path, []byte("docker: ubuntu:22.04\nmemory: 2G\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = ParseRuntimeDefaults(path)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if got["memory"] != "2G" {
		t.Errorf("memory = %v", got["memory"])
	}

	if _, err := ParseRuntimeDefaults("/does/not/exist.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}

package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// shortID is the run directory suffix: the first uuid group.
func shortID(runID string) string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}

// CreateRunDir creates a fresh run directory under base, named
// <timestamp>_<target>_<shortid>. The directory must not already exist.
func CreateRunDir(base, target, runID string, now time.Time) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create run base: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), target, shortID(runID))
	dir := filepath.Join(base, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// taskDir returns the directory for one task attempt inside a run dir.
// Scatter shards get a numeric suffix.
func taskDir(runDir, name string, shard int) string {
	base := "call-" + strings.ReplaceAll(name, ".", "-")
	if shard >= 0 {
		base = fmt.Sprintf("%s-%d", base, shard)
	}
	return filepath.Join(runDir, base)
}

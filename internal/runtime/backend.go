package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecSpec describes one task command execution.
type ExecSpec struct {
	// Dir is the task attempt directory. It contains command.sh and the
	// work/ subdirectory the command runs in; stdout.txt and stderr.txt are
	// written next to them.
	Dir string
	// Image is the container image (ignored by the process backend).
	Image string
	// Resources is the (clamped) reservation, enforced as container limits
	// where the backend supports them.
	Resources TaskResources
	// InputPaths are host paths the command reads. The docker backend
	// mounts each read-only at its own path so command templates can
	// interpolate host paths unchanged.
	InputPaths []string
}

// Backend runs a prepared task command and reports its exit code. A nonzero
// exit is returned as (code, nil); err covers failures to run at all.
type Backend interface {
	Run(ctx context.Context, spec ExecSpec) (int, error)
}

// DockerBackend runs commands in containers via the docker CLI.
type DockerBackend struct {
	// Docker is the docker binary, "docker" when empty.
	Docker string
}

func (b *DockerBackend) docker() string {
	if b.Docker != "" {
		return b.Docker
	}
	return "docker"
}

// Run invokes docker run with the task dir mounted read-write at its host
// path and each input mounted read-only, so paths match inside and outside
// the container.
func (b *DockerBackend) Run(ctx context.Context, spec ExecSpec) (int, error) {
	args := []string{
		"run", "--rm",
		"-v", spec.Dir + ":" + spec.Dir,
		"--workdir", filepath.Join(spec.Dir, "work"),
	}
	for _, p := range dedupeMounts(spec.InputPaths, spec.Dir) {
		args = append(args, "-v", p+":"+p+":ro")
	}
	if spec.Resources.MemoryBytes > 0 {
		args = append(args, "--memory", fmt.Sprint(spec.Resources.MemoryBytes))
	}
	if spec.Resources.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprint(spec.Resources.CPUs))
	}
	args = append(args, spec.Image, "bash", filepath.Join(spec.Dir, "command.sh"))
	return runCapture(ctx, spec.Dir, b.docker(), args...)
}

// dedupeMounts drops inputs already visible under the task dir and repeated
// paths.
func dedupeMounts(paths []string, taskDir string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		if strings.HasPrefix(p, taskDir+string(filepath.Separator)) {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ProcessBackend runs commands directly with bash, without isolation.
// Resource limits are reservations only.
type ProcessBackend struct{}

func (ProcessBackend) Run(ctx context.Context, spec ExecSpec) (int, error) {
	return runCapture(ctx, spec.Dir, "bash", filepath.Join(spec.Dir, "command.sh"))
}

// runCapture runs the command with cwd <dir>/work, capturing stdout and
// stderr into files in dir.
func runCapture(ctx context.Context, dir, name string, args ...string) (int, error) {
	stdout, err := os.Create(filepath.Join(dir, "stdout.txt"))
	if err != nil {
		return -1, err
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(dir, "stderr.txt"))
	if err != nil {
		return -1, err
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = filepath.Join(dir, "work")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return exitErr.ExitCode(), ctx.Err()
		}
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// stderrTail returns the last part of a task's stderr for error messages.
func stderrTail(dir string, maxBytes int64) string {
	path := filepath.Join(dir, "stderr.txt")
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := int64(0)
	if info.Size() > maxBytes {
		offset = info.Size() - maxBytes
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return ""
	}
	s := strings.TrimRight(string(buf), "\n")
	if offset > 0 {
		// Drop the likely partial first line.
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return s
}

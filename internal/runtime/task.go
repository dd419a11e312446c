package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shahbajlive/flowrun/internal/eval"
	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/state"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/util"
	"github.com/shahbajlive/flowrun/internal/values"
)

// taskRuntime is the resolved runtime section of one task attempt.
type taskRuntime struct {
	Image     string
	Resources TaskResources
}

// runTask executes one task attempt: evaluate declarations and assertions,
// instantiate the command, run it under the backend, and collect outputs.
// name is the attempt's binding name (the call alias inside workflows);
// shard is -1 outside scatter sections; dir is the attempt directory.
func (e *engine) runTask(ctx context.Context, task *syntax.Task, inputs values.Bindings, name string, shard int, dir string) (values.Bindings, error) {
	if name == "" {
		name = task.Name
	}
	workDir := filepath.Join(dir, "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return values.Bindings{}, fmt.Errorf("create task dir: %w", err)
	}

	attempt := state.TaskAttempt{
		ID:        uuid.NewString(),
		RunID:     e.runID,
		Name:      name,
		Shard:     shard,
		Status:    state.TaskRunning,
		StartedAt: time.Now(),
	}
	e.recordTask(attempt)
	e.sink.Emit(events.Event{Kind: events.TaskStarted, RunID: e.runID, Task: name, Shard: shard})

	outputs, err := e.runTaskInner(ctx, task, inputs, name, shard, dir, workDir)
	now := time.Now()
	attempt.FinishedAt = &now
	if err != nil {
		attempt.Status = state.TaskFailed
		attempt.Error = err.Error()
		if tf, ok := err.(*TaskFailed); ok {
			attempt.ExitCode = tf.ExitCode
		}
		e.recordTask(attempt)
		e.sink.Emit(events.Event{Kind: events.TaskFailed, RunID: e.runID, Task: name, Shard: shard, Msg: err.Error()})
		return values.Bindings{}, err
	}
	attempt.Status = state.TaskSucceeded
	e.recordTask(attempt)
	e.sink.Emit(events.Event{Kind: events.TaskFinished, RunID: e.runID, Task: name, Shard: shard})
	return outputs, nil
}

func (e *engine) runTaskInner(ctx context.Context, task *syntax.Task, inputs values.Bindings, name string, shard int, dir, workDir string) (values.Bindings, error) {
	lib := &eval.Stdlib{WorkDir: workDir}

	env, err := evalTaskDecls(task, inputs, lib)
	if err != nil {
		return values.Bindings{}, err
	}
	if err := checkAsserts(task.Asserts, env, lib); err != nil {
		return values.Bindings{}, err
	}

	rt, err := e.resolveRuntime(task.Runtime, env, lib)
	if err != nil {
		return values.Bindings{}, err
	}

	writeFileJSON(filepath.Join(dir, "inputs.json"), values.ToJSON(inputs, ""))

	command, err := instantiateCommand(task.Command, env, lib)
	if err != nil {
		return values.Bindings{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "command.sh"), []byte(command), 0o755); err != nil {
		return values.Bindings{}, fmt.Errorf("write command: %w", err)
	}

	// Admission: a slot from the task pool, then a resource reservation.
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return values.Bindings{}, ctx.Err()
	}
	defer func() { <-e.sem }()
	reserved, err := e.limiter.Acquire(ctx, rt.Resources)
	if err != nil {
		return values.Bindings{}, err
	}
	defer e.limiter.Release(reserved)

	slog.Debug("task starting", "task", name, "shard", shard,
		"image", rt.Image, "memory", util.FormatSize(reserved.MemoryBytes), "cpu", reserved.CPUs)
	exitCode, err := e.backend.Run(ctx, ExecSpec{
		Dir:        dir,
		Image:      rt.Image,
		Resources:  reserved,
		InputPaths: inputFiles(env),
	})
	if err != nil {
		if ctx.Err() != nil {
			return values.Bindings{}, ErrInterrupted
		}
		return values.Bindings{}, fmt.Errorf("run command: %w", err)
	}
	if exitCode != 0 {
		return values.Bindings{}, &TaskFailed{
			Task:       name,
			Shard:      shard,
			ExitCode:   exitCode,
			StderrTail: stderrTail(dir, 1024),
		}
	}

	outputs, err := collectOutputs(task, env, dir, workDir)
	if err != nil {
		return values.Bindings{}, err
	}
	writeFileJSON(filepath.Join(dir, "outputs.json"), values.ToJSON(outputs, ""))
	return outputs, nil
}

// evalTaskDecls binds input defaults for unsupplied inputs and evaluates the
// private post-input declarations, both in declaration order.
func evalTaskDecls(task *syntax.Task, inputs values.Bindings, lib *eval.Stdlib) (values.Bindings, error) {
	env := inputs
	for _, d := range task.Inputs {
		if env.Has(d.Name) {
			continue
		}
		if d.Expr == nil {
			if d.Type.Optional() {
				env = env.Bind(d.Name, values.Null{})
			}
			continue
		}
		v, err := evalDecl(d, env, lib)
		if err != nil {
			return env, err
		}
		env = env.Bind(d.Name, v)
	}
	for _, d := range task.PostInputs {
		v, err := evalDecl(d, env, lib)
		if err != nil {
			return env, err
		}
		env = env.Bind(d.Name, v)
	}
	return env, nil
}

// evalDecl evaluates a bound declaration and coerces to its declared type.
func evalDecl(d *syntax.Decl, env values.Bindings, lib *eval.Stdlib) (values.Value, error) {
	v, err := eval.Eval(d.Expr, env, lib)
	if err != nil {
		return nil, err
	}
	c, err := values.Coerce(v, d.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", d.DeclPos, d.Name, err)
	}
	return c, nil
}

func checkAsserts(asserts []syntax.Assert, env values.Bindings, lib *eval.Stdlib) error {
	for _, a := range asserts {
		v, err := eval.Eval(a.Expr, env, lib)
		if err != nil {
			return err
		}
		b, ok := v.(values.Boolean)
		if !ok {
			return fmt.Errorf("%s: assert condition is %s, not Boolean", a.AssertPos, v.Type())
		}
		if !b.Value {
			return fmt.Errorf("%s: assertion failed", a.AssertPos)
		}
	}
	return nil
}

// resolveRuntime evaluates the runtime section, overlays configured
// defaults for unset keys, and clamps to the configured maxima.
func (e *engine) resolveRuntime(section map[string]syntax.Expr, env values.Bindings, lib *eval.Stdlib) (taskRuntime, error) {
	resolved := map[string]values.Value{}
	for key, expr := range section {
		v, err := eval.Eval(expr, env, lib)
		if err != nil {
			return taskRuntime{}, fmt.Errorf("runtime %s: %w", key, err)
		}
		resolved[key] = v
	}
	for key, raw := range e.runtimeDefaults {
		if _, set := resolved[key]; set {
			continue
		}
		v, err := anyToValue(raw)
		if err != nil {
			return taskRuntime{}, fmt.Errorf("runtime default %s: %w", key, err)
		}
		resolved[key] = v
	}

	rt := taskRuntime{
		Image:     e.defaultImage,
		Resources: TaskResources{MemoryBytes: e.defaultMemory, CPUs: e.defaultCPU},
	}
	for _, key := range []string{"docker", "container"} {
		if v, ok := resolved[key]; ok && !values.IsNull(v) {
			rt.Image = v.String()
		}
	}
	if v, ok := resolved["memory"]; ok && !values.IsNull(v) {
		n, err := memoryBytes(v)
		if err != nil {
			return taskRuntime{}, err
		}
		rt.Resources.MemoryBytes = n
	}
	if v, ok := resolved["cpu"]; ok && !values.IsNull(v) {
		n, err := cpuCount(v)
		if err != nil {
			return taskRuntime{}, err
		}
		rt.Resources.CPUs = n
	}
	if e.memoryMax > 0 && rt.Resources.MemoryBytes > e.memoryMax {
		rt.Resources.MemoryBytes = e.memoryMax
	}
	if e.cpuMax > 0 && rt.Resources.CPUs > e.cpuMax {
		rt.Resources.CPUs = e.cpuMax
	}
	return rt, nil
}

func memoryBytes(v values.Value) (int64, error) {
	switch x := v.(type) {
	case values.Int:
		return x.Value, nil
	case values.Float:
		return int64(x.Value), nil
	case values.String_:
		n, err := util.ParseSize(x.Value)
		if err != nil {
			return 0, fmt.Errorf("runtime memory: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("runtime memory is %s, not Int or String", v.Type())
}

func cpuCount(v values.Value) (int, error) {
	switch x := v.(type) {
	case values.Int:
		return int(x.Value), nil
	case values.Float:
		n := int(x.Value)
		if float64(n) < x.Value {
			n++
		}
		return n, nil
	case values.String_:
		var n int
		if _, err := fmt.Sscanf(x.Value, "%d", &n); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("runtime cpu is %s, not numeric", v.Type())
}

// anyToValue converts a decoded runtime-defaults entry to a Value.
func anyToValue(raw any) (values.Value, error) {
	switch x := raw.(type) {
	case nil:
		return values.Null{}, nil
	case bool:
		return values.Boolean{Value: x}, nil
	case int:
		return values.Int{Value: int64(x)}, nil
	case int64:
		return values.Int{Value: x}, nil
	case float64:
		if x == float64(int64(x)) {
			return values.Int{Value: int64(x)}, nil
		}
		return values.Float{Value: x}, nil
	case string:
		return values.String_{Value: x}, nil
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}

// instantiateCommand renders the command template and strips the common
// leading whitespace of its nonblank lines.
func instantiateCommand(parts []syntax.CommandPart, env values.Bindings, lib *eval.Stdlib) (string, error) {
	var sb strings.Builder
	for _, part := range parts {
		if part.Placeholder == nil {
			sb.WriteString(part.Literal)
			continue
		}
		s, err := renderPlaceholder(part.Placeholder, part.Options, env, lib)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return dedent(sb.String()), nil
}

// renderPlaceholder evaluates one ~{...} placeholder honoring its sep,
// default and true/false options.
func renderPlaceholder(expr syntax.Expr, opts map[string]syntax.Expr, env values.Bindings, lib *eval.Stdlib) (string, error) {
	v, err := eval.Eval(expr, env, lib)
	if err != nil {
		return "", err
	}
	if values.IsNull(v) {
		if d, ok := opts["default"]; ok {
			return eval.EvalString(d, env, lib)
		}
		return "", nil
	}
	if b, ok := v.(values.Boolean); ok {
		key := "false"
		if b.Value {
			key = "true"
		}
		if alt, ok := opts[key]; ok {
			return eval.EvalString(alt, env, lib)
		}
	}
	if arr, ok := v.(values.Array); ok {
		if sepExpr, ok := opts["sep"]; ok {
			sep, err := eval.EvalString(sepExpr, env, lib)
			if err != nil {
				return "", err
			}
			items := make([]string, len(arr.Items))
			for i, it := range arr.Items {
				items[i] = it.String()
			}
			return strings.Join(items, sep), nil
		}
	}
	return v.String(), nil
}

// dedent removes the common leading whitespace of nonblank lines and trims
// surrounding blank lines.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	common := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if common < 0 || indent < common {
			common = indent
		}
	}
	if common > 0 {
		for i, line := range lines {
			if len(line) >= common {
				lines[i] = line[common:]
			} else {
				lines[i] = strings.TrimLeft(line, " \t")
			}
		}
	}
	out := strings.Join(lines, "\n")
	out = strings.Trim(out, "\n")
	return out + "\n"
}

// collectOutputs evaluates the output declarations against the completed
// command, resolving File outputs against the work directory.
func collectOutputs(task *syntax.Task, env values.Bindings, dir, workDir string) (values.Bindings, error) {
	lib := &eval.Stdlib{
		WorkDir: workDir,
		Stdout:  filepath.Join(dir, "stdout.txt"),
		Stderr:  filepath.Join(dir, "stderr.txt"),
	}
	var out values.Bindings
	for _, d := range task.Outputs {
		v, err := eval.Eval(d.Expr, env, lib)
		if err != nil {
			return out, &OutputError{Task: task.Name, Output: d.Name, Err: err}
		}
		c, err := values.Coerce(v, d.Type)
		if err != nil {
			return out, &OutputError{Task: task.Name, Output: d.Name, Err: err}
		}
		c, err = resolveFiles(c, workDir, d.Type.Optional())
		if err != nil {
			return out, &OutputError{Task: task.Name, Output: d.Name, Err: err}
		}
		env = env.Bind(d.Name, c)
		out = out.Bind(d.Name, c)
	}
	return out, nil
}

// resolveFiles anchors relative File paths at the work directory and
// verifies the files exist. A missing file behind an optional type resolves
// to null.
func resolveFiles(v values.Value, workDir string, optional bool) (values.Value, error) {
	switch x := v.(type) {
	case values.File:
		p := x.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			if optional {
				return values.Null{}, nil
			}
			return nil, fmt.Errorf("output file missing: %s", x.Path)
		}
		return values.File{Path: p}, nil
	case values.Array:
		items := make([]values.Value, len(x.Items))
		for i, it := range x.Items {
			r, err := resolveFiles(it, workDir, optional)
			if err != nil {
				return nil, err
			}
			items[i] = r
		}
		return values.Array{ItemType: x.ItemType, Items: items}, nil
	case values.Map:
		vals := make([]values.Value, len(x.Values))
		for i, it := range x.Values {
			r, err := resolveFiles(it, workDir, optional)
			if err != nil {
				return nil, err
			}
			vals[i] = r
		}
		return values.Map{KeyType: x.KeyType, ValueType: x.ValueType, Keys: x.Keys, Values: vals}, nil
	case values.Pair:
		l, err := resolveFiles(x.Left, workDir, optional)
		if err != nil {
			return nil, err
		}
		r, err := resolveFiles(x.Right, workDir, optional)
		if err != nil {
			return nil, err
		}
		return values.Pair{Left: l, Right: r}, nil
	}
	return v, nil
}

// inputFiles lists the local file paths of an environment's File values,
// for backend mounts.
func inputFiles(env values.Bindings) []string {
	var out []string
	var walk func(values.Value)
	walk = func(v values.Value) {
		switch x := v.(type) {
		case values.File:
			if !IsURI(x.Path) {
				out = append(out, x.Path)
			}
		case values.Array:
			for _, it := range x.Items {
				walk(it)
			}
		case values.Map:
			for _, it := range x.Values {
				walk(it)
			}
		case values.Pair:
			walk(x.Left)
			walk(x.Right)
		}
	}
	for _, b := range env.All() {
		walk(b.Value)
	}
	return out
}

// writeFileJSON writes v as indented JSON; failures are logged, not fatal.
func writeFileJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		slog.Warn("write json file", "path", path, "error", err)
	}
}

// recordTask persists a task attempt when a store is attached.
func (e *engine) recordTask(t state.TaskAttempt) {
	if e.store == nil {
		return
	}
	if err := e.store.RecordTask(t); err != nil {
		slog.Warn("record task attempt", "task", t.Name, "error", err)
	}
}

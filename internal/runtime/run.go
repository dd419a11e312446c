package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/shahbajlive/flowrun/internal/check"
	"github.com/shahbajlive/flowrun/internal/config"
	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/state"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
	"github.com/shahbajlive/flowrun/internal/util"
	"github.com/shahbajlive/flowrun/internal/values"
)

// Options configures one run.
type Options struct {
	// Doc is the checked document to run.
	Doc *syntax.Document
	// Target names the workflow or task to run; empty selects the
	// document's workflow, or its first task when there is no workflow.
	Target string
	// Inputs is the decoded Cromwell-style input JSON object.
	Inputs map[string]any
	// Cfg supplies run base, backend, image and resource defaults.
	Cfg *config.Config
	// RuntimeDefaults overlays task runtime sections for keys they omit.
	RuntimeDefaults map[string]any
	// MemoryMax and CPUMax clamp per-task reservations when positive.
	MemoryMax int64
	CPUMax    int
	// RunBase overrides Cfg.RunBase when set.
	RunBase string
	// NoContainer forces the process backend.
	NoContainer bool
	// Sink receives run events in addition to the run journal; may be nil.
	Sink events.Sink
	// Store persists run and task records; may be nil.
	Store *state.Store
	// Backend overrides backend selection, for tests.
	Backend Backend
}

// Result is a completed run.
type Result struct {
	RunID   string
	Target  string
	Dir     string
	Outputs values.Bindings
	// OutputsJSON is the namespaced Cromwell-style outputs object.
	OutputsJSON map[string]any
}

// engine carries the per-run execution context.
type engine struct {
	doc             *syntax.Document
	runID           string
	runDir          string
	backend         Backend
	limiter         *Limiter
	sem             chan struct{}
	sink            events.Sink
	store           *state.Store
	defaultImage    string
	defaultMemory   int64
	defaultCPU      int
	runtimeDefaults map[string]any
	memoryMax       int64
	cpuMax          int
}

// Run executes a workflow or task to completion. Failures come back as
// *RunFailed wrapping the cause; the run directory (when created) holds
// inputs.json, events.jsonl and per-task attempt directories, plus
// outputs.json on success.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Cfg
	if cfg == nil {
		cfg = config.Default()
	}

	wf, task, err := resolveTarget(opts.Doc, opts.Target)
	if err != nil {
		return nil, err
	}
	targetName := opts.Target
	if targetName == "" {
		if wf != nil {
			targetName = wf.Name
		} else {
			targetName = task.Name
		}
	}

	env, namespace, err := bindInputs(opts.Doc, wf, task, opts.Inputs)
	if err != nil {
		return nil, err
	}

	runID := NewRunID()
	base := cfg.RunBase
	if opts.RunBase != "" {
		base = opts.RunBase
	}
	runDir, err := CreateRunDir(config.ExpandHome(base), targetName, runID, time.Now())
	if err != nil {
		return nil, err
	}

	sinks := events.Multi{}
	journal, err := events.OpenJournal(filepath.Join(runDir, "events.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	defer journal.Close()
	sinks = append(sinks, journal)
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	if opts.Store != nil {
		err := opts.Store.CreateRun(state.Run{
			ID:        runID,
			Target:    targetName,
			Document:  opts.Doc.URI,
			Dir:       runDir,
			Status:    state.RunRunning,
			StartedAt: time.Now(),
		})
		if err != nil {
			return nil, err
		}
	}

	writeFileJSON(filepath.Join(runDir, "inputs.json"), values.ToJSON(env, namespace))
	sinks.Emit(events.Event{Kind: events.RunStarted, RunID: runID, Msg: targetName,
		Meta: map[string]string{"dir": runDir}})
	slog.Info("run started", "run_id", runID, "target", targetName, "dir", runDir)

	result, err := execute(ctx, opts, cfg, runID, runDir, targetName, namespace, env, wf, task, sinks)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrInterrupted) {
			err = fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		finishRun(opts.Store, runID, state.RunFailed, err.Error())
		sinks.Emit(events.Event{Kind: events.RunFinished, RunID: runID,
			Msg: "failed", Meta: map[string]string{"error": err.Error()}})
		slog.Error("run failed", "run_id", runID, "target", targetName, "error", err)
		return nil, &RunFailed{RunID: runID, Target: targetName, Err: err}
	}
	finishRun(opts.Store, runID, state.RunSucceeded, "")
	sinks.Emit(events.Event{Kind: events.RunFinished, RunID: runID, Msg: "succeeded"})
	slog.Info("run succeeded", "run_id", runID, "dir", runDir)
	return result, nil
}

func execute(ctx context.Context, opts Options, cfg *config.Config, runID, runDir, targetName, namespace string,
	env values.Bindings, wf *syntax.Workflow, task *syntax.Task, sink events.Sink) (*Result, error) {

	dl := newDownloader(runDir, runID, sink)
	env, err := dl.localize(ctx, env)
	if err != nil {
		return nil, err
	}

	defaultMemory, err := util.ParseSize(cfg.Defaults.Memory)
	if err != nil {
		return nil, fmt.Errorf("config defaults.memory: %w", err)
	}

	backend := opts.Backend
	if backend == nil {
		if opts.NoContainer || cfg.Backend == "process" {
			backend = ProcessBackend{}
		} else {
			backend = &DockerBackend{}
		}
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DetectHost().CPUs
	}
	e := &engine{
		doc:             opts.Doc,
		runID:           runID,
		runDir:          runDir,
		backend:         backend,
		limiter:         NewLimiter(DetectHost()),
		sem:             make(chan struct{}, maxParallel),
		sink:            sink,
		store:           opts.Store,
		defaultImage:    cfg.DefaultImage,
		defaultMemory:   defaultMemory,
		defaultCPU:      cfg.Defaults.CPU,
		runtimeDefaults: opts.RuntimeDefaults,
		memoryMax:       opts.MemoryMax,
		cpuMax:          opts.CPUMax,
	}

	var outputs values.Bindings
	if wf != nil {
		outputs, err = e.runWorkflow(ctx, wf, env)
	} else {
		e.sink.Emit(eventQueued(runID, task.Name, -1))
		outputs, err = e.runTask(ctx, task, env, task.Name, -1, taskDir(runDir, task.Name, -1))
	}
	if err != nil {
		return nil, err
	}

	outputsJSON := values.ToJSON(outputs, namespace)
	writeFileJSON(filepath.Join(runDir, "outputs.json"), outputsJSON)
	return &Result{
		RunID:       runID,
		Target:      targetName,
		Dir:         runDir,
		Outputs:     outputs,
		OutputsJSON: outputsJSON,
	}, nil
}

// resolveTarget selects the workflow or task to run.
func resolveTarget(doc *syntax.Document, target string) (*syntax.Workflow, *syntax.Task, error) {
	if target == "" {
		return doc.DefaultTarget()
	}
	if doc.Workflow != nil && doc.Workflow.Name == target {
		return doc.Workflow, nil, nil
	}
	if t := doc.Task(target); t != nil {
		return nil, t, nil
	}
	return nil, nil, fmt.Errorf("no task or workflow named %q in %s", target, doc.URI)
}

// bindInputs builds the run environment from the input JSON object against
// the target's available inputs.
func bindInputs(doc *syntax.Document, wf *syntax.Workflow, task *syntax.Task, inputs map[string]any) (values.Bindings, string, error) {
	var list []check.Input
	var namespace string
	if wf != nil {
		list = check.WorkflowInputs(doc, wf)
		namespace = wf.Name
	} else {
		list = check.TaskInputs(task)
		namespace = task.Name
	}
	available := make(map[string]types.Type, len(list))
	var required []string
	for _, in := range list {
		available[in.Name] = in.Type
		if in.Required {
			required = append(required, in.Name)
		}
	}
	env, err := values.BindingsFromJSON(inputs, available, required, namespace)
	if err != nil {
		return values.Bindings{}, "", err
	}
	return env, namespace, nil
}

func finishRun(store *state.Store, runID string, status state.RunStatus, msg string) {
	if store == nil {
		return
	}
	if err := store.FinishRun(runID, status, msg); err != nil {
		slog.Warn("record run finish", "run_id", runID, "error", err)
	}
}

func eventQueued(runID, task string, shard int) events.Event {
	return events.Event{Kind: events.TaskQueued, RunID: runID, Task: task, Shard: shard}
}

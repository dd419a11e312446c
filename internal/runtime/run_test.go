package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shahbajlive/flowrun/internal/check"
	"github.com/shahbajlive/flowrun/internal/config"
	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/values"
)

func loadDoc(t *testing.T, source string) *syntax.Document {
	t.Helper()
	doc, err := syntax.ParseDocument(source, "test.wdl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := check.Check(doc, check.Options{CheckQuant: true}); err != nil {
		t.Fatalf("check: %v", err)
	}
	return doc
}

func processConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend = "process"
	cfg.MaxParallel = 2
	cfg.Defaults = config.ResourceDefaults{Memory: "64M", CPU: 1}
	return cfg
}

const workflowDoc = `
version 1.1

task greet {
  input {
    String name
  }
  command <<<
    echo "hello, ~{name}"
  >>>
  output {
    String out = read_string(stdout())
  }
}

workflow main {
  input {
    Array[String] names
    Boolean loud = false
  }
  scatter (n in names) {
    call greet { input: name = n }
  }
  if (loud) {
    call greet as shout { input: name = "EVERYONE" }
  }
  output {
    Array[String] greetings = greet.out
    String? shouted = shout.out
  }
}
`

func TestRunWorkflow(t *testing.T) {
	doc := loadDoc(t, workflowDoc)
	res, err := Run(context.Background(), Options{
		Doc:     doc,
		Inputs:  map[string]any{"main.names": []any{"ada", "grace"}},
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	greetings, ok := res.Outputs.Get("greetings")
	if !ok {
		t.Fatalf("greetings missing, outputs = %v", res.Outputs.Names())
	}
	arr := greetings.(values.Array)
	if len(arr.Items) != 2 {
		t.Fatalf("greetings = %v", arr)
	}
	if arr.Items[0].String() != "hello, ada" || arr.Items[1].String() != "hello, grace" {
		t.Errorf("greetings = %q, %q", arr.Items[0], arr.Items[1])
	}

	// The skipped conditional branch yields null.
	shouted, ok := res.Outputs.Get("shouted")
	if !ok || !values.IsNull(shouted) {
		t.Errorf("shouted = %v", shouted)
	}

	if res.OutputsJSON["main.greetings"] == nil {
		t.Errorf("namespaced outputs = %v", res.OutputsJSON)
	}

	// Run dir artifacts.
	for _, f := range []string{"inputs.json", "outputs.json", "events.jsonl"} {
		if _, err := os.Stat(filepath.Join(res.Dir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(res.Dir, "call-greet-0", "stdout.txt"))
	if err != nil {
		t.Fatalf("shard 0 stdout: %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello, ada" {
		t.Errorf("shard 0 stdout = %q", data)
	}

	evs, err := events.ReadJournal(filepath.Join(res.Dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(evs) == 0 || evs[0].Kind != events.RunStarted {
		t.Errorf("journal = %+v", evs)
	}
	last := evs[len(evs)-1]
	if last.Kind != events.RunFinished || last.Msg != "succeeded" {
		t.Errorf("last event = %+v", last)
	}
}

func TestRunConditionalTaken(t *testing.T) {
	doc := loadDoc(t, workflowDoc)
	res, err := Run(context.Background(), Options{
		Doc: doc,
		Inputs: map[string]any{
			"main.names": []any{"x"},
			"main.loud":  true,
		},
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	shouted, _ := res.Outputs.Get("shouted")
	if shouted.String() != "hello, EVERYONE" {
		t.Errorf("shouted = %q", shouted)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "call-shout")); err != nil {
		t.Errorf("shout attempt dir: %v", err)
	}
}

func TestRunTaskOnly(t *testing.T) {
	doc := loadDoc(t, `
version 1.1

task double {
  input {
    Int n
  }
  command <<<
    echo $(( ~{n} * 2 ))
  >>>
  output {
    Int result = read_int(stdout())
  }
}
`)
	res, err := Run(context.Background(), Options{
		Doc:     doc,
		Inputs:  map[string]any{"double.n": float64(21)},
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, _ := res.Outputs.Get("result")
	if v.(values.Int).Value != 42 {
		t.Errorf("result = %v", v)
	}
}

func TestRunTaskFailure(t *testing.T) {
	doc := loadDoc(t, `
version 1.1

task boom {
  command <<<
    echo oops >&2
    exit 3
  >>>
}
`)
	_, err := Run(context.Background(), Options{
		Doc:     doc,
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err == nil {
		t.Fatal("Run succeeded, want failure")
	}
	var rf *RunFailed
	if !errors.As(err, &rf) {
		t.Fatalf("err = %T, want *RunFailed", err)
	}
	var tf *TaskFailed
	if !errors.As(err, &tf) {
		t.Fatalf("cause = %v, want *TaskFailed", rf.Err)
	}
	if tf.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", tf.ExitCode)
	}
	if !strings.Contains(tf.StderrTail, "oops") {
		t.Errorf("stderr tail = %q", tf.StderrTail)
	}
}

func TestRunMissingRequiredInput(t *testing.T) {
	doc := loadDoc(t, workflowDoc)
	_, err := Run(context.Background(), Options{
		Doc:     doc,
		Inputs:  map[string]any{},
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err == nil || !strings.Contains(err.Error(), "missing required") {
		t.Errorf("err = %v", err)
	}
}

func TestRunUnknownTarget(t *testing.T) {
	doc := loadDoc(t, workflowDoc)
	_, err := Run(context.Background(), Options{
		Doc:     doc,
		Target:  "nope",
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err == nil || !strings.Contains(err.Error(), "no task or workflow named") {
		t.Errorf("err = %v", err)
	}
}

func TestRunDependencyChain(t *testing.T) {
	// A call feeding another call through its output, with an intermediate
	// declaration, exercises graph ordering.
	doc := loadDoc(t, `
version 1.1

task emit {
  input {
    String word
  }
  command <<<
    echo ~{word}
  >>>
  output {
    String out = read_string(stdout())
  }
}

workflow chain {
  call emit { input: word = "one" }
  String joined = emit.out + "-two"
  call emit as second { input: word = joined }
  output {
    String final = second.out
  }
}
`)
	res, err := Run(context.Background(), Options{
		Doc:     doc,
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, _ := res.Outputs.Get("final")
	if v.String() != "one-two" {
		t.Errorf("final = %q", v)
	}
}

func TestRunAssertFailure(t *testing.T) {
	doc := loadDoc(t, `
version development

task guarded {
  input {
    Int n
  }
  assert n > 0
  command <<<
    echo ~{n}
  >>>
}
`)
	_, err := Run(context.Background(), Options{
		Doc:     doc,
		Inputs:  map[string]any{"guarded.n": float64(-1)},
		Cfg:     processConfig(),
		RunBase: t.TempDir(),
	})
	if err == nil || !strings.Contains(err.Error(), "assertion failed") {
		t.Errorf("err = %v", err)
	}
}

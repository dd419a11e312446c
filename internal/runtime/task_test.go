package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shahbajlive/flowrun/internal/eval"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
	"github.com/shahbajlive/flowrun/internal/values"
)

func TestDedent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "echo hi", "echo hi\n"},
		{"common indent", "\n    echo a\n    echo b\n  ", "echo a\necho b\n"},
		{"nested deeper", "\n  for i in x; do\n    echo $i\n  done\n", "for i in x; do\n  echo $i\ndone\n"},
		{"blank lines ignored", "\n  echo a\n\n  echo b\n", "echo a\n\necho b\n"},
		{"empty", "", "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dedent(tt.in); got != tt.want {
				t.Errorf("dedent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInstantiateCommand(t *testing.T) {
	doc, err := syntax.ParseDocument(`
version 1.1
task t {
  input {
    Array[String] xs
    Boolean flag
    String? opt
    Int n
  }
  command <<<
    run ~{sep=" " xs} ~{true="--loud" false="--quiet" flag} ~{default="none" opt} ~{n}
  >>>
  output { String out = read_string(stdout()) }
}
`, "t.wdl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := values.Bindings{}.
		Bind("xs", values.Array{ItemType: types.String(), Items: []values.Value{
			values.String_{Value: "a"}, values.String_{Value: "b"},
		}}).
		Bind("flag", values.Boolean{Value: true}).
		Bind("opt", values.Null{}).
		Bind("n", values.Int{Value: 4})

	got, err := instantiateCommand(doc.Tasks[0].Command, env, &eval.Stdlib{})
	if err != nil {
		t.Fatalf("instantiateCommand: %v", err)
	}
	want := "run a b --loud none 4\n"
	if got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestRenderPlaceholderFalseOption(t *testing.T) {
	expr, err := syntax.ParseExpr("flag")
	if err != nil {
		t.Fatal(err)
	}
	alt, err := syntax.ParseExpr(`"--quiet"`)
	if err != nil {
		t.Fatal(err)
	}
	env := values.Bindings{}.Bind("flag", values.Boolean{Value: false})
	got, err := renderPlaceholder(expr, map[string]syntax.Expr{"false": alt}, env, &eval.Stdlib{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "--quiet" {
		t.Errorf("rendered = %q", got)
	}
}

func TestMemoryBytes(t *testing.T) {
	tests := []struct {
		v    values.Value
		want int64
	}{
		{values.Int{Value: 1024}, 1024},
		{values.String_{Value: "2G"}, 2e9},
		{values.String_{Value: "512MiB"}, 512 << 20},
	}
	for _, tt := range tests {
		got, err := memoryBytes(tt.v)
		if err != nil {
			t.Errorf("memoryBytes(%v): %v", tt.v, err)
			continue
		}
		if got != tt.want {
			t.Errorf("memoryBytes(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
	if _, err := memoryBytes(values.Boolean{Value: true}); err == nil {
		t.Error("Boolean accepted as memory")
	}
}

func TestCPUCount(t *testing.T) {
	tests := []struct {
		v    values.Value
		want int
	}{
		{values.Int{Value: 4}, 4},
		{values.Float{Value: 2.0}, 2},
		// Fractional reservations round up.
		{values.Float{Value: 1.5}, 2},
		{values.String_{Value: "3"}, 3},
	}
	for _, tt := range tests {
		got, err := cpuCount(tt.v)
		if err != nil {
			t.Errorf("cpuCount(%v): %v", tt.v, err)
			continue
		}
		if got != tt.want {
			t.Errorf("cpuCount(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestResolveFiles(t *testing.T) {
	workDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workDir, "out.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := resolveFiles(values.File{Path: "out.txt"}, workDir, false)
	if err != nil {
		t.Fatalf("resolveFiles: %v", err)
	}
	if got := v.(values.File).Path; got != filepath.Join(workDir, "out.txt") {
		t.Errorf("resolved path = %q", got)
	}

	if _, err := resolveFiles(values.File{Path: "missing.txt"}, workDir, false); err == nil {
		t.Error("missing required file accepted")
	}

	v, err = resolveFiles(values.File{Path: "missing.txt"}, workDir, true)
	if err != nil {
		t.Fatalf("optional missing: %v", err)
	}
	if !values.IsNull(v) {
		t.Errorf("optional missing = %v, want null", v)
	}

	arr := values.Array{ItemType: types.File(), Items: []values.Value{values.File{Path: "out.txt"}}}
	v, err = resolveFiles(arr, workDir, false)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if got := v.(values.Array).Items[0].(values.File).Path; !filepath.IsAbs(got) {
		t.Errorf("array item not resolved: %q", got)
	}
}

func TestStderrTail(t *testing.T) {
	dir := t.TempDir()
	lines := strings.Repeat("filler line\n", 200) + "final error\n"
	if err := os.WriteFile(filepath.Join(dir, "stderr.txt"), []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	tail := stderrTail(dir, 64)
	if !strings.Contains(tail, "final error") {
		t.Errorf("tail = %q", tail)
	}
	if strings.Contains(tail, "\nfiller line\nfiller") && len(tail) > 64 {
		t.Errorf("tail too long: %d bytes", len(tail))
	}

	if got := stderrTail(t.TempDir(), 64); got != "" {
		t.Errorf("missing stderr tail = %q", got)
	}
}

func TestDedupeMounts(t *testing.T) {
	taskDir := "/runs/r1/call-t"
	got := dedupeMounts([]string{
		"/data/a.txt",
		"/data/a.txt",
		filepath.Join(taskDir, "work", "local.txt"),
		"",
		"/data/b.txt",
	}, taskDir)
	want := []string{"/data/a.txt", "/data/b.txt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dedupeMounts = %v, want %v", got, want)
	}
}

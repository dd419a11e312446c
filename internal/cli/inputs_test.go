package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shahbajlive/flowrun/internal/syntax"
)

func TestReadInputs(t *testing.T) {
	got, err := readInputs("")
	if err != nil {
		t.Fatalf("empty arg: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty arg = %v", got)
	}

	got, err = readInputs(`{"main.n": 3}`)
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if got["main.n"] != float64(3) {
		t.Errorf("inline = %v", got)
	}

	path := filepath.Join(t.TempDir(), "inputs.json")
	if err := os.WriteFile(path, []byte(`{"main.name": "ada"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readInputs(path)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if got["main.name"] != "ada" {
		t.Errorf("file = %v", got)
	}

	if _, err := readInputs("/does/not/exist.json"); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := readInputs(`{"broken`); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestTargetInputs(t *testing.T) {
	doc, err := syntax.ParseDocument(`
version 1.1

task greet {
  input {
    String name
    Int? times
  }
  command <<<
    echo ~{name}
  >>>
}

workflow main {
  input {
    Array[String] names
  }
  scatter (n in names) {
    call greet { input: name = n }
  }
}
`, "test.wdl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	list, name, err := targetInputs(doc, "")
	if err != nil {
		t.Fatalf("default target: %v", err)
	}
	if name != "main" {
		t.Errorf("default target = %q", name)
	}
	found := false
	for _, in := range list {
		if in.Name == "names" && in.Required {
			found = true
		}
	}
	if !found {
		t.Errorf("workflow inputs = %+v", list)
	}

	list, name, err = targetInputs(doc, "greet")
	if err != nil {
		t.Fatalf("task target: %v", err)
	}
	if name != "greet" || len(list) != 2 {
		t.Errorf("task inputs = %q %+v", name, list)
	}
	for _, in := range list {
		if in.Name == "times" && in.Required {
			t.Errorf("optional input marked required: %+v", in)
		}
	}

	if _, _, err := targetInputs(doc, "nope"); err == nil || !strings.Contains(err.Error(), "no task or workflow named") {
		t.Errorf("unknown target err = %v", err)
	}
}

package check

import (
	"errors"
	"strings"
	"testing"

	"github.com/shahbajlive/flowrun/internal/syntax"
)

func parse(t *testing.T, source string) *syntax.Document {
	t.Helper()
	doc, err := syntax.ParseDocument(source, "test.wdl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

const validDoc = `
version 1.1

task count {
  input {
    File data
    Int? limit
  }
  command <<<
    head -n ~{default="10" limit} ~{data} | wc -l
  >>>
  output {
    Int n = read_int(stdout())
  }
  runtime {
    docker: "ubuntu:22.04"
  }
}

workflow main {
  input {
    Array[File] files
  }
  scatter (f in files) {
    call count { input: data = f }
  }
  output {
    Array[Int] counts = count.n
  }
}
`

func TestCheckValid(t *testing.T) {
	doc := parse(t, validDoc)
	if err := Check(doc, Options{CheckQuant: true}); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			"unknown identifier",
			`version 1.1
task t {
  Int x = bogus
  command <<<>>>
}`,
			"unknown identifier",
		},
		{
			"type mismatch",
			`version 1.1
task t {
  Int x = "words"
  command <<<>>>
}`,
			"not coercible",
		},
		{
			"call unknown task",
			`version 1.1
workflow w {
  call nothing
}`,
			"unknown task",
		},
		{
			"call unknown input",
			`version 1.1
task t {
  input { Int n }
  command <<<>>>
}
workflow w {
  call t { input: misspelled = 1 }
}`,
			"has no input",
		},
		{
			"scatter over non-array",
			`version 1.1
task t {
  input { Int n }
  command <<<>>>
}
workflow w {
  input { Int x }
  scatter (i in x) {
    call t { input: n = i }
  }
}`,
			"not an Array",
		},
		{
			"array placeholder without sep",
			`version 1.1
task t {
  input { Array[String] xs }
  command <<<
    echo ~{xs}
  >>>
}`,
			"sep",
		},
		{
			"duplicate declaration",
			`version 1.1
workflow w {
  Int x = 1
  Int x = 2
}`,
			"duplicate declaration",
		},
		{
			"if condition not boolean",
			`version 1.1
task t {
  command <<<>>>
}
workflow w {
  input { Int n }
  if (n) {
    call t
  }
}`,
			"not Boolean",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(parse(t, tt.source), Options{CheckQuant: true})
			if err == nil {
				t.Fatal("Check succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestCheckNestedSections(t *testing.T) {
	// Calls and declarations inside scatter and if bodies resolve against
	// the body-local unwrapped names; outside, the produced names are
	// wrapped (Array per scatter level, optional per conditional).
	source := `
version 1.1
task t {
  input { Int n }
  command <<<
    echo ~{n}
  >>>
  output { Int m = read_int(stdout()) }
}
workflow w {
  input {
    Array[Int] xs
    Boolean go
  }
  scatter (x in xs) {
    Int doubled = x * 2
    if (go) {
      call t { input: n = doubled }
    }
  }
  output {
    Array[Int] doubles = doubled
    Array[Int?] ms = t.m
  }
}
`
	if err := Check(parse(t, source), Options{CheckQuant: true}); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheckDuplicateCallInScatter(t *testing.T) {
	// A real duplicate inside a section body is reported exactly once.
	source := `
version 1.1
task t {
  command <<<>>>
  output { Int m = 1 }
}
workflow w {
  input { Array[Int] xs }
  scatter (x in xs) {
    call t
    call t
  }
}
`
	err := Check(parse(t, source), Options{CheckQuant: true})
	if err == nil {
		t.Fatal("Check succeeded, want error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %T (%v), want a single *ValidationError", err, err)
	}
	if !strings.Contains(ve.Msg, "duplicate call name") {
		t.Errorf("err = %v", ve)
	}
}

func TestCheckQuantRelaxation(t *testing.T) {
	// Passing an optional where a required value is expected is an error
	// under strict quantifier checking only.
	source := `
version 1.0
task t {
  input { Int n }
  command <<<>>>
}
workflow w {
  input { Int? maybe }
  call t { input: n = maybe }
}
`
	doc := parse(t, source)
	if err := Check(doc, Options{CheckQuant: true}); err == nil {
		t.Error("strict check accepted Int? for Int")
	}
	if err := Check(doc, Options{CheckQuant: false}); err != nil {
		t.Errorf("relaxed check rejected Int? for Int: %v", err)
	}
}

func TestCheckForwardReference(t *testing.T) {
	// Workflow bodies may reference names declared later.
	source := `
version 1.1
task t {
  input { Int n }
  command <<<
    echo ~{n}
  >>>
  output { Int m = read_int(stdout()) }
}
workflow w {
  call t { input: n = later }
  Int later = 3
  output { Int out = t.m }
}
`
	if err := Check(parse(t, source), Options{CheckQuant: true}); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestCheckCollectsMultipleErrors(t *testing.T) {
	source := `
version 1.1
task t {
  Int a = bogus1
  Int b = bogus2
  command <<<>>>
}
`
	err := Check(parse(t, source), Options{CheckQuant: true})
	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %T, want Errors", err)
	}
	if len(errs) != 2 {
		t.Errorf("errors = %d, want 2", len(errs))
	}
	var ve *ValidationError
	if !errors.As(errs[0], &ve) {
		t.Errorf("errs[0] = %T, want *ValidationError", errs[0])
	}
}

package eval

import (
	"strings"
	"testing"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/values"
)

func evalSource(t *testing.T, source string, env values.Bindings, lib *Stdlib) values.Value {
	t.Helper()
	e, err := syntax.ParseExpr(source)
	if err != nil {
		t.Fatalf("parse %q: %v", source, err)
	}
	v, err := Eval(e, env, lib)
	if err != nil {
		t.Fatalf("eval %q: %v", source, err)
	}
	return v
}

func evalErr(t *testing.T, source string, env values.Bindings) error {
	t.Helper()
	e, err := syntax.ParseExpr(source)
	if err != nil {
		t.Fatalf("parse %q: %v", source, err)
	}
	_, err = Eval(e, env, nil)
	if err == nil {
		t.Fatalf("eval %q succeeded, want error", source)
	}
	return err
}

func TestEvalExpressions(t *testing.T) {
	env := values.Bindings{}.
		Bind("n", values.Int{Value: 4}).
		Bind("s", values.String_{Value: "hi"}).
		Bind("f", values.File{Path: "/data/a.txt"}).
		Bind("maybe", values.Null{})

	tests := []struct {
		source string
		want   string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"7 % 3", "1"},
		{"10 / 4", "2"},
		{"10.0 / 4", "2.500000"},
		{"-n", "-4"},
		{"n > 3", "true"},
		{"!(n > 3)", "false"},
		{"n == 4.0", "true"},
		{"n != 4", "false"},
		{`"a" + "b"`, "ab"},
		{`s + 1`, "hi1"},
		{`f + ".gz"`, "/data/a.txt.gz"},
		{`"a" < "b"`, "true"},
		{`if n > 3 then "big" else "small"`, "big"},
		{`"n is ~{n}"`, "n is 4"},
		{"[1, 2, 3][1]", "2"},
		{`{"a": 1, "b": 2}["b"]`, "2"},
		{"(1, 2).left", "1"},
		{"maybe == None", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := evalSource(t, tt.source, env, nil); got.String() != tt.want {
				t.Errorf("= %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestEvalShortCircuit(t *testing.T) {
	env := values.Bindings{}.Bind("t", values.Boolean{Value: true})
	// The right operand references an unbound name and must not be evaluated.
	if got := evalSource(t, "false && missing", env, nil); got.(values.Boolean).Value {
		t.Error("false && x = true")
	}
	if got := evalSource(t, "t || missing", env, nil); !got.(values.Boolean).Value {
		t.Error("true || x = false")
	}
	evalErr(t, "t && missing", env)
}

func TestEvalErrors(t *testing.T) {
	env := values.Bindings{}.Bind("xs", values.Array{Items: []values.Value{values.Int{Value: 1}}})
	tests := []struct {
		source string
		want   string
	}{
		{"nope", "unknown identifier"},
		{"1 / 0", "division by zero"},
		{"5 % 0", "division by zero"},
		{"xs[3]", "out of bounds"},
		{`1 && true`, "not Boolean"},
		{`frobnicate(1)`, "unknown function"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			err := evalErr(t, tt.source, env)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEvalDottedName(t *testing.T) {
	// Call outputs live in the environment under their dotted name.
	env := values.Bindings{}.Bind("greet.out", values.String_{Value: "hello"})
	if got := evalSource(t, "greet.out", env, nil); got.String() != "hello" {
		t.Errorf("greet.out = %q", got.String())
	}
}

func TestEvalStringNull(t *testing.T) {
	env := values.Bindings{}.Bind("x", values.Null{})
	e, err := syntax.ParseExpr("x")
	if err != nil {
		t.Fatal(err)
	}
	s, err := EvalString(e, env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s != "" {
		t.Errorf("null renders as %q, want empty", s)
	}
}

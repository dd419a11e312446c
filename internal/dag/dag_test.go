package dag

import (
	"reflect"
	"strings"
	"testing"
)

func build(t *testing.T, nodes map[string][]string, order ...string) *Graph {
	t.Helper()
	g := New()
	for _, n := range order {
		if err := g.Add(n, nodes[n]...); err != nil {
			t.Fatalf("Add(%s): %v", n, err)
		}
	}
	return g
}

func TestTopoSort(t *testing.T) {
	g := build(t, map[string][]string{
		"c": {"a", "b"},
		"b": {"a"},
		"d": nil,
	}, "d", "c", "b", "a")

	got, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	// Dependency order, ties broken by declaration order.
	want := []string{"d", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopoSort = %v, want %v", got, want)
	}
}

func TestDuplicateNode(t *testing.T) {
	g := New()
	if err := g.Add("x"); err != nil {
		t.Fatal(err)
	}
	if err := g.Add("x"); err == nil {
		t.Error("duplicate Add succeeded")
	}
}

func TestUnknownDepsPruned(t *testing.T) {
	// References to run inputs are not nodes; Validate drops them.
	g := build(t, map[string][]string{"a": {"input_file"}}, "a")
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ready := g.Ready(); len(ready) != 1 || ready[0] != "a" {
		t.Errorf("Ready = %v, want [a]", ready)
	}
}

func TestCycleDetection(t *testing.T) {
	g := build(t, map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}, "a", "b")
	err := g.Validate()
	if err == nil {
		t.Fatal("cycle not detected")
	}
	if !strings.Contains(err.Error(), "dependency cycle") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(err.Error(), " -> ") {
		t.Errorf("cycle message does not name the path: %v", err)
	}
}

func TestReadyProgression(t *testing.T) {
	g := build(t, map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}, "a", "b", "c", "d")
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}

	if ready := g.Ready(); !reflect.DeepEqual(ready, []string{"a"}) {
		t.Fatalf("first front = %v", ready)
	}
	// A node already running is not returned again.
	if ready := g.Ready(); len(ready) != 0 {
		t.Fatalf("second front = %v, want empty", ready)
	}

	g.SetState("a", Done)
	if ready := g.Ready(); !reflect.DeepEqual(ready, []string{"b", "c"}) {
		t.Fatalf("front after a = %v", ready)
	}
	g.SetState("b", Done)
	if ready := g.Ready(); len(ready) != 0 {
		t.Fatalf("d ready before c done: %v", ready)
	}
	g.SetState("c", Done)
	if ready := g.Ready(); !reflect.DeepEqual(ready, []string{"d"}) {
		t.Fatalf("front after b,c = %v", ready)
	}
	g.SetState("d", Done)
	if !g.Finished() {
		t.Error("graph not finished")
	}
}

func TestSkipPending(t *testing.T) {
	g := build(t, map[string][]string{"b": {"a"}}, "a", "b")
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	g.Ready()
	g.SetState("a", Failed)
	g.SkipPending()
	if got := g.StateOf("b"); got != Skipped {
		t.Errorf("b state = %v, want Skipped", got)
	}
	if !g.Finished() {
		t.Error("graph not finished after skip")
	}
}

// Package dag models the dependency graph of a workflow body and yields
// nodes for execution in dependency order.
package dag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// State tracks a node through execution.
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
	// Skipped marks nodes abandoned after an upstream failure.
	Skipped
)

// Graph is a set of named nodes with dependency edges. Node order is the
// declaration order given to Add; Ready breaks ties on it so scheduling is
// reproducible.
type Graph struct {
	mu    sync.Mutex
	order []string
	deps  map[string][]string
	state map[string]State
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{deps: map[string][]string{}, state: map[string]State{}}
}

// Add inserts a node with its dependencies. Dependencies on names never
// added are pruned by Validate; duplicate nodes are an error.
func (g *Graph) Add(name string, deps ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.state[name]; exists {
		return fmt.Errorf("dag: duplicate node %q", name)
	}
	g.order = append(g.order, name)
	g.deps[name] = deps
	g.state[name] = Pending
	return nil
}

// Validate prunes dependencies on unknown names (references to run inputs
// rather than nodes) and fails on cycles, naming the nodes involved.
func (g *Graph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, deps := range g.deps {
		kept := deps[:0]
		for _, d := range deps {
			if _, known := g.state[d]; known {
				kept = append(kept, d)
			}
		}
		g.deps[name] = kept
	}
	return g.findCycle()
}

// findCycle runs a coloring DFS; must hold g.mu.
func (g *Graph) findCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var stack []string
	var visit func(string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)
		for _, d := range g.deps[n] {
			switch color[d] {
			case white:
				if err := visit(d); err != nil {
					return err
				}
			case gray:
				// Trim the stack to the cycle start for the message.
				start := 0
				for i, s := range stack {
					if s == d {
						start = i
						break
					}
				}
				return fmt.Errorf("dag: dependency cycle: %s", strings.Join(append(stack[start:], d), " -> "))
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}
	for _, n := range g.order {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopoSort returns all nodes in a dependency-respecting order, stable with
// respect to declaration order.
func (g *Graph) TopoSort() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	indeg := make(map[string]int, len(g.order))
	rdeps := make(map[string][]string)
	for _, n := range g.order {
		indeg[n] = len(g.deps[n])
		for _, d := range g.deps[n] {
			rdeps[d] = append(rdeps[d], n)
		}
	}
	var frontier []string
	for _, n := range g.order {
		if indeg[n] == 0 {
			frontier = append(frontier, n)
		}
	}
	var out []string
	for len(frontier) > 0 {
		sort.SliceStable(frontier, func(i, j int) bool {
			return g.declIndex(frontier[i]) < g.declIndex(frontier[j])
		})
		n := frontier[0]
		frontier = frontier[1:]
		out = append(out, n)
		for _, r := range rdeps[n] {
			indeg[r]--
			if indeg[r] == 0 {
				frontier = append(frontier, r)
			}
		}
	}
	if len(out) != len(g.order) {
		return nil, fmt.Errorf("dag: cycle prevented full ordering")
	}
	return out, nil
}

// declIndex must hold g.mu.
func (g *Graph) declIndex(name string) int {
	for i, n := range g.order {
		if n == name {
			return i
		}
	}
	return len(g.order)
}

// Ready returns the pending nodes whose dependencies are all Done, in
// declaration order, and marks them Running.
func (g *Graph) Ready() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ready []string
	for _, n := range g.order {
		if g.state[n] != Pending {
			continue
		}
		ok := true
		for _, d := range g.deps[n] {
			if g.state[d] != Done {
				ok = false
				break
			}
		}
		if ok {
			g.state[n] = Running
			ready = append(ready, n)
		}
	}
	return ready
}

// SetState records a node outcome.
func (g *Graph) SetState(name string, s State) {
	g.mu.Lock()
	g.state[name] = s
	g.mu.Unlock()
}

// StateOf returns a node's state.
func (g *Graph) StateOf(name string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state[name]
}

// SkipPending marks every pending node Skipped, used after a failure to
// drain the graph.
func (g *Graph) SkipPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for n, s := range g.state {
		if s == Pending {
			g.state[n] = Skipped
		}
	}
}

// Finished reports whether no node is pending or running.
func (g *Graph) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.state {
		if s == Pending || s == Running {
			return false
		}
	}
	return true
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/shahbajlive/flowrun/internal/dag"
	"github.com/shahbajlive/flowrun/internal/eval"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
	"github.com/shahbajlive/flowrun/internal/values"
)

// runWorkflow executes a workflow: evaluate input defaults, run the body as
// a dependency graph, then evaluate the output section.
func (e *engine) runWorkflow(ctx context.Context, wf *syntax.Workflow, inputs values.Bindings) (values.Bindings, error) {
	lib := &eval.Stdlib{WorkDir: e.runDir}
	env := inputs
	for _, d := range wf.Inputs {
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
			return values.Bindings{}, err
		}
		env = env.Bind(d.Name, v)
	}

	bodyOut, err := e.execBody(ctx, env, wf.Body, "", -1)
	if err != nil {
		return values.Bindings{}, err
	}
	env = env.Merge(bodyOut)

	if err := checkAsserts(wf.Asserts, env, lib); err != nil {
		return values.Bindings{}, err
	}

	if len(wf.Outputs) == 0 {
		// Without an output section, every call output is exposed.
		var out values.Bindings
		for _, b := range bodyOut.All() {
			if isDotted(b.Name) {
				out = out.Bind(b.Name, b.Value)
			}
		}
		return out, nil
	}
	var out values.Bindings
	for _, d := range wf.Outputs {
		v, err := evalDecl(d, env, lib)
		if err != nil {
			return out, fmt.Errorf("workflow output %s: %w", d.Name, err)
		}
		env = env.Bind(d.Name, v)
		out = out.Bind(d.Name, v)
	}
	return out, nil
}

func isDotted(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return true
		}
	}
	return false
}

// execBody runs a workflow section as a dependency graph, dispatching ready
// nodes concurrently, and returns the bindings the section produced. prefix
// is the subdirectory for task attempt dirs; shard is the enclosing scatter
// index, -1 at top level.
func (e *engine) execBody(ctx context.Context, env values.Bindings, body []syntax.WorkflowNode, prefix string, shard int) (values.Bindings, error) {
	g := dag.New()
	nodes := map[string]syntax.WorkflowNode{}
	for _, node := range body {
		name := nodeName(node)
		if err := g.Add(name, nodeDeps(node)...); err != nil {
			return values.Bindings{}, err
		}
		nodes[name] = node
	}
	if err := g.Validate(); err != nil {
		return values.Bindings{}, err
	}

	type nodeResult struct {
		name string
		out  values.Bindings
		err  error
	}
	results := make(chan nodeResult)
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var acc values.Bindings
	var firstErr error
	running := 0
	for {
		if firstErr == nil {
			for _, name := range g.Ready() {
				node := nodes[name]
				snapshot := env
				running++
				go func(name string, node syntax.WorkflowNode) {
					out, err := e.execNode(cctx, name, node, snapshot, prefix, shard)
					results <- nodeResult{name: name, out: out, err: err}
				}(name, node)
			}
		}
		if running == 0 {
			break
		}
		r := <-results
		running--
		if r.err != nil {
			g.SetState(r.name, dag.Failed)
			if firstErr == nil {
				firstErr = r.err
				cancel()
				g.SkipPending()
			}
			continue
		}
		g.SetState(r.name, dag.Done)
		env = env.Merge(r.out)
		acc = acc.Merge(r.out)
	}
	if firstErr != nil {
		return values.Bindings{}, firstErr
	}
	return acc, nil
}

// execNode runs one body node and returns the bindings it produces.
func (e *engine) execNode(ctx context.Context, name string, node syntax.WorkflowNode, env values.Bindings, prefix string, shard int) (values.Bindings, error) {
	if err := ctx.Err(); err != nil {
		return values.Bindings{}, err
	}
	switch n := node.(type) {
	case *syntax.Decl:
		v, err := evalDecl(n, env, &eval.Stdlib{WorkDir: e.runDir})
		if err != nil {
			return values.Bindings{}, err
		}
		return values.Bindings{}.Bind(n.Name, v), nil
	case *syntax.Call:
		return e.execCall(ctx, n, env, prefix, shard)
	case *syntax.Scatter:
		return e.execScatter(ctx, n, env, prefix, shard)
	case *syntax.Conditional:
		return e.execConditional(ctx, n, env, prefix, shard)
	}
	return values.Bindings{}, fmt.Errorf("unknown workflow node %T", node)
}

// execCall assembles a call's task inputs and runs the task; its outputs
// come back call-qualified ("alias.out").
func (e *engine) execCall(ctx context.Context, call *syntax.Call, env values.Bindings, prefix string, shard int) (values.Bindings, error) {
	task := e.doc.Task(lastComponent(call.Target))
	if task == nil {
		return values.Bindings{}, fmt.Errorf("%s: call of unknown task %q", call.CallPos, call.Target)
	}
	name := call.Name()

	var inputs values.Bindings
	lib := &eval.Stdlib{WorkDir: e.runDir}
	for _, d := range task.Inputs {
		if expr, supplied := call.Inputs[d.Name]; supplied {
			v, err := eval.Eval(expr, env, lib)
			if err != nil {
				return values.Bindings{}, fmt.Errorf("call %s input %s: %w", name, d.Name, err)
			}
			c, err := values.Coerce(v, d.Type)
			if err != nil {
				return values.Bindings{}, fmt.Errorf("call %s input %s: %w", name, d.Name, err)
			}
			inputs = inputs.Bind(d.Name, c)
			continue
		}
		// Call-qualified run inputs reach unsupplied task inputs.
		if v, ok := env.Get(name + "." + d.Name); ok {
			c, err := values.Coerce(v, d.Type)
			if err != nil {
				return values.Bindings{}, fmt.Errorf("call %s input %s: %w", name, d.Name, err)
			}
			inputs = inputs.Bind(d.Name, c)
		}
	}

	e.sink.Emit(eventQueued(e.runID, name, shard))
	dir := taskDir(filepath.Join(e.runDir, prefix), name, shard)
	taskOut, err := e.runTask(ctx, task, inputs, name, shard, dir)
	if err != nil {
		return values.Bindings{}, err
	}
	var out values.Bindings
	for _, b := range taskOut.All() {
		out = out.Bind(name+"."+b.Name, b.Value)
	}
	return out, nil
}

// execScatter evaluates the collection, runs the body once per element in
// parallel, and gathers each produced name into an array across shards.
func (e *engine) execScatter(ctx context.Context, sc *syntax.Scatter, env values.Bindings, prefix string, shard int) (values.Bindings, error) {
	coll, err := eval.Eval(sc.Collection, env, &eval.Stdlib{WorkDir: e.runDir})
	if err != nil {
		return values.Bindings{}, err
	}
	arr, ok := coll.(values.Array)
	if !ok {
		return values.Bindings{}, fmt.Errorf("%s: scatter collection is %s, not Array", sc.ScatterPos, coll.Type())
	}

	// Inside an enclosing scatter, push the outer shard index into the
	// directory prefix so nested attempt dirs stay distinct.
	childPrefix := prefix
	if shard >= 0 {
		childPrefix = filepath.Join(prefix, fmt.Sprintf("shard-%d", shard))
	}

	outs := make([]values.Bindings, len(arr.Items))
	errs := make([]error, len(arr.Items))
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	for i, item := range arr.Items {
		wg.Add(1)
		go func(i int, item values.Value) {
			defer wg.Done()
			elemEnv := env.Bind(sc.Var, item)
			out, err := e.execBody(cctx, elemEnv, sc.Body, childPrefix, i)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			outs[i] = out
		}(i, item)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return values.Bindings{}, err
		}
	}

	var gathered values.Bindings
	for _, name := range producedNames(e.doc, sc.Body) {
		items := make([]values.Value, len(outs))
		ts := make([]types.Type, 0, len(outs))
		for i, out := range outs {
			if v, ok := out.Get(name); ok {
				items[i] = v
				ts = append(ts, v.Type())
			} else {
				items[i] = values.Null{}
			}
		}
		gathered = gathered.Bind(name, values.Array{ItemType: types.Unify(ts, true), Items: items})
	}
	return gathered, nil
}

// execConditional runs the body when the condition holds; every name the
// body would produce binds to null otherwise.
func (e *engine) execConditional(ctx context.Context, cond *syntax.Conditional, env values.Bindings, prefix string, shard int) (values.Bindings, error) {
	v, err := eval.Eval(cond.Cond, env, &eval.Stdlib{WorkDir: e.runDir})
	if err != nil {
		return values.Bindings{}, err
	}
	b, ok := v.(values.Boolean)
	if !ok {
		return values.Bindings{}, fmt.Errorf("%s: if condition is %s, not Boolean", cond.IfPos, v.Type())
	}
	if b.Value {
		return e.execBody(ctx, env, cond.Body, prefix, shard)
	}
	var out values.Bindings
	for _, name := range producedNames(e.doc, cond.Body) {
		out = out.Bind(name, values.Null{})
	}
	return out, nil
}

// nodeName returns a body node's graph name.
func nodeName(node syntax.WorkflowNode) string {
	switch n := node.(type) {
	case *syntax.Decl:
		return n.Name
	case *syntax.Call:
		return n.Name()
	case *syntax.Scatter:
		return fmt.Sprintf("scatter:%s:%d:%d", n.Var, n.ScatterPos.Line, n.ScatterPos.Col)
	case *syntax.Conditional:
		return fmt.Sprintf("if:%d:%d", n.IfPos.Line, n.IfPos.Col)
	}
	return fmt.Sprintf("%T", node)
}

// nodeDeps returns the free identifier roots a node depends on. Sections
// exclude names bound within their own body.
func nodeDeps(node syntax.WorkflowNode) []string {
	switch n := node.(type) {
	case *syntax.Decl:
		if n.Expr == nil {
			return nil
		}
		return rootNames(syntax.ExprIdents(n.Expr))
	case *syntax.Call:
		var deps []string
		for _, key := range n.InputOrder {
			deps = append(deps, rootNames(syntax.ExprIdents(n.Inputs[key]))...)
		}
		return deps
	case *syntax.Scatter:
		deps := rootNames(syntax.ExprIdents(n.Collection))
		deps = append(deps, sectionDeps(n.Body)...)
		bound := map[string]bool{n.Var: true}
		boundNames(n.Body, bound)
		return exclude(deps, bound)
	case *syntax.Conditional:
		deps := rootNames(syntax.ExprIdents(n.Cond))
		deps = append(deps, sectionDeps(n.Body)...)
		bound := map[string]bool{}
		boundNames(n.Body, bound)
		return exclude(deps, bound)
	}
	return nil
}

// sectionDeps collects the free identifier roots of every node in a body.
func sectionDeps(body []syntax.WorkflowNode) []string {
	var deps []string
	for _, node := range body {
		deps = append(deps, nodeDeps(node)...)
	}
	return deps
}

// boundNames records the names a body binds: declarations, call aliases,
// and nested section variables.
func boundNames(body []syntax.WorkflowNode, out map[string]bool) {
	for _, node := range body {
		switch n := node.(type) {
		case *syntax.Decl:
			out[n.Name] = true
		case *syntax.Call:
			out[n.Name()] = true
		case *syntax.Scatter:
			out[n.Var] = true
			boundNames(n.Body, out)
		case *syntax.Conditional:
			boundNames(n.Body, out)
		}
	}
}

// producedNames lists the bindings a body exposes to the enclosing scope:
// declaration names and call outputs, recursing into nested sections.
func producedNames(doc *syntax.Document, body []syntax.WorkflowNode) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var walk func(body []syntax.WorkflowNode)
	walk = func(body []syntax.WorkflowNode) {
		for _, node := range body {
			switch n := node.(type) {
			case *syntax.Decl:
				add(n.Name)
			case *syntax.Call:
				if task := doc.Task(lastComponent(n.Target)); task != nil {
					for _, d := range task.Outputs {
						add(n.Name() + "." + d.Name)
					}
				}
			case *syntax.Scatter:
				walk(n.Body)
			case *syntax.Conditional:
				walk(n.Body)
			}
		}
	}
	walk(body)
	return out
}

// rootNames maps dotted identifier references to their root component, the
// form graph node names take.
func rootNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		for i := 0; i < len(name); i++ {
			if name[i] == '.' {
				name = name[:i]
				break
			}
		}
		out = append(out, name)
	}
	return out
}

func exclude(names []string, bound map[string]bool) []string {
	out := names[:0]
	for _, n := range names {
		if !bound[n] {
			out = append(out, n)
		}
	}
	return out
}

func lastComponent(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

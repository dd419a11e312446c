// Package check implements static validation of parsed workflow documents:
// identifier resolution, type inference, and coercion checking, with the
// optional/nonempty quantifier rules togglable for older workflows.
package check

import (
	"fmt"
	"strings"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
)

// Options configures validation.
type Options struct {
	// CheckQuant enables strict checking of the ? and + type quantifiers.
	// The --no-quant-check flag clears it.
	CheckQuant bool
}

// ValidationError is a single static validity failure with position.
type ValidationError struct {
	Pos syntax.Pos
	Msg string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Errors collects multiple validation errors detected in one pass.
type Errors []error

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Check validates a document. The returned error is either nil, a single
// *ValidationError, or an Errors list.
func Check(doc *syntax.Document, opts Options) error {
	c := &checker{doc: doc, opts: opts}
	for _, task := range doc.Tasks {
		c.checkTask(task)
	}
	if doc.Workflow != nil {
		c.checkWorkflow(doc.Workflow)
	}
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	default:
		return c.errs
	}
}

type checker struct {
	doc  *syntax.Document
	opts Options
	errs Errors
}

func (c *checker) errorf(pos syntax.Pos, format string, args ...any) {
	c.errs = append(c.errs, &ValidationError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// typeEnv maps identifier names (possibly dotted) to types.
type typeEnv map[string]types.Type

func (env typeEnv) clone() typeEnv {
	out := make(typeEnv, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func (c *checker) checkTask(task *syntax.Task) {
	env := typeEnv{}
	for _, d := range task.Inputs {
		c.checkDecl(d, env)
	}
	for _, d := range task.PostInputs {
		c.checkDecl(d, env)
	}
	for _, a := range task.Asserts {
		c.requireBoolean(a.Expr, env, "assert condition")
	}
	for _, part := range task.Command {
		if part.Placeholder != nil {
			c.checkPlaceholder(part, env)
		}
	}
	for key, e := range task.Runtime {
		if _, err := c.infer(e, env); err != nil {
			c.errorf(e.Pos(), "runtime %s: %v", key, err)
		}
	}
	// Outputs evaluate in an environment extended with the file functions'
	// results; inference handles stdout()/stderr() directly.
	outEnv := env.clone()
	for _, d := range task.Outputs {
		c.checkDecl(d, outEnv)
	}
}

func (c *checker) checkWorkflow(wf *syntax.Workflow) {
	env := typeEnv{}
	for _, d := range wf.Inputs {
		if d.Expr != nil {
			// Defaults are checked below once the full environment is known;
			// input declarations may reference each other.
			env[d.Name] = d.Type
		} else {
			env[d.Name] = d.Type
		}
	}
	// Workflow bodies allow forward references; bind every name the body
	// produces before checking expressions.
	c.bindBodyNames(wf.Body, env, func(t types.Type) types.Type { return t }, true)

	for _, d := range wf.Inputs {
		if d.Expr != nil {
			c.checkBoundExpr(d, env)
		}
	}
	c.checkBody(wf.Body, env)
	for _, a := range wf.Asserts {
		c.requireBoolean(a.Expr, env, "assert condition")
	}
	for _, d := range wf.Outputs {
		c.checkDecl(d, env)
	}
}

// bindBodyNames adds the names produced by body nodes to env, applying
// wrap to each type (identity at top level, Array for scatter bodies,
// optional for conditional bodies). With report false it overwrites
// existing bindings silently; checkBody uses that to shadow a body's
// wrapped outer bindings with their unwrapped forms inside the body,
// after the top-level pass has already reported duplicates and unknown
// call targets.
func (c *checker) bindBodyNames(body []syntax.WorkflowNode, env typeEnv, wrap func(types.Type) types.Type, report bool) {
	for _, node := range body {
		switch n := node.(type) {
		case *syntax.Decl:
			if _, exists := env[n.Name]; exists && report {
				c.errorf(n.DeclPos, "duplicate declaration %q", n.Name)
			}
			env[n.Name] = wrap(n.Type)
		case *syntax.Call:
			task := c.doc.Task(stripNamespace(n.Target))
			if task == nil {
				if report {
					c.errorf(n.CallPos, "call targets unknown task %q", n.Target)
				}
				continue
			}
			name := n.Name()
			for _, out := range task.Outputs {
				key := name + "." + out.Name
				if _, exists := env[key]; exists && report {
					c.errorf(n.CallPos, "duplicate call name %q", name)
					break
				}
				env[key] = wrap(out.Type)
			}
			// Unsupplied required task inputs become workflow-level inputs
			// namespaced under the call.
			for _, in := range task.Inputs {
				if _, supplied := n.Inputs[in.Name]; !supplied && in.Expr == nil {
					env[name+"."+in.Name] = in.Type
				}
			}
		case *syntax.Scatter:
			sub := typeEnv{}
			c.bindBodyNames(n.Body, sub, func(t types.Type) types.Type { return t }, report)
			for k, v := range sub {
				env[k] = wrap(types.ArrayOf(v))
			}
		case *syntax.Conditional:
			sub := typeEnv{}
			c.bindBodyNames(n.Body, sub, func(t types.Type) types.Type { return t }, report)
			for k, v := range sub {
				env[k] = wrap(v.WithOptional(true))
			}
		}
	}
}

func (c *checker) checkBody(body []syntax.WorkflowNode, env typeEnv) {
	for _, node := range body {
		switch n := node.(type) {
		case *syntax.Decl:
			if n.Expr != nil {
				c.checkBoundExpr(n, env)
			}
		case *syntax.Call:
			c.checkCall(n, env)
		case *syntax.Scatter:
			t, err := c.infer(n.Collection, env)
			if err != nil {
				c.errorf(n.Collection.Pos(), "scatter collection: %v", err)
				continue
			}
			itemType := types.Any().WithOptional(false)
			if arr, ok := t.(types.Array); ok {
				itemType = arr.Item
			} else if !types.IsAny(t) {
				c.errorf(n.Collection.Pos(), "scatter collection is %s, not an Array", t)
			}
			inner := env.clone()
			inner[n.Var] = itemType
			// Names inside the body are visible unwrapped within it.
			c.bindBodyNames(n.Body, inner, func(t types.Type) types.Type { return t }, false)
			c.checkBody(n.Body, inner)
		case *syntax.Conditional:
			c.requireBoolean(n.Cond, env, "if condition")
			inner := env.clone()
			c.bindBodyNames(n.Body, inner, func(t types.Type) types.Type { return t }, false)
			c.checkBody(n.Body, inner)
		}
	}
}

func (c *checker) checkCall(call *syntax.Call, env typeEnv) {
	task := c.doc.Task(stripNamespace(call.Target))
	if task == nil {
		return // already reported by bindBodyNames
	}
	inputTypes := map[string]types.Type{}
	for _, d := range task.Inputs {
		inputTypes[d.Name] = d.Type
	}
	for _, name := range call.InputOrder {
		want, ok := inputTypes[name]
		if !ok {
			c.errorf(call.CallPos, "call %s: task %s has no input %q", call.Name(), task.Name, name)
			continue
		}
		got, err := c.infer(call.Inputs[name], env)
		if err != nil {
			c.errorf(call.Inputs[name].Pos(), "call %s input %s: %v", call.Name(), name, err)
			continue
		}
		if !got.CoercibleTo(want, c.opts.CheckQuant) {
			c.errorf(call.Inputs[name].Pos(), "call %s input %s: %s is not coercible to %s", call.Name(), name, got, want)
		}
	}
}

func (c *checker) checkDecl(d *syntax.Decl, env typeEnv) {
	if d.Expr != nil {
		got, err := c.infer(d.Expr, env)
		if err != nil {
			c.errorf(d.Expr.Pos(), "%s: %v", d.Name, err)
		} else if !got.CoercibleTo(d.Type, c.opts.CheckQuant) {
			c.errorf(d.Expr.Pos(), "%s: %s is not coercible to %s", d.Name, got, d.Type)
		}
	}
	env[d.Name] = d.Type
}

func (c *checker) checkBoundExpr(d *syntax.Decl, env typeEnv) {
	got, err := c.infer(d.Expr, env)
	if err != nil {
		c.errorf(d.Expr.Pos(), "%s: %v", d.Name, err)
		return
	}
	if !got.CoercibleTo(d.Type, c.opts.CheckQuant) {
		c.errorf(d.Expr.Pos(), "%s: %s is not coercible to %s", d.Name, got, d.Type)
	}
}

func (c *checker) checkPlaceholder(part syntax.CommandPart, env typeEnv) {
	t, err := c.infer(part.Placeholder, env)
	if err != nil {
		c.errorf(part.Placeholder.Pos(), "command placeholder: %v", err)
		return
	}
	for name, opt := range part.Options {
		if _, err := c.infer(opt, env); err != nil {
			c.errorf(opt.Pos(), "placeholder option %s: %v", name, err)
		}
	}
	_, hasSep := part.Options["sep"]
	if _, isArray := t.(types.Array); isArray && !hasSep {
		c.errorf(part.Placeholder.Pos(), "array placeholder requires a sep= option")
	}
	if t.Optional() && c.opts.CheckQuant {
		if _, hasDefault := part.Options["default"]; !hasDefault {
			c.errorf(part.Placeholder.Pos(), "optional placeholder requires a default= option")
		}
	}
}

func (c *checker) requireBoolean(e syntax.Expr, env typeEnv, what string) {
	t, err := c.infer(e, env)
	if err != nil {
		c.errorf(e.Pos(), "%s: %v", what, err)
		return
	}
	if !t.CoercibleTo(types.Boolean(), c.opts.CheckQuant) {
		c.errorf(e.Pos(), "%s is %s, not Boolean", what, t)
	}
}

func stripNamespace(target string) string {
	if i := strings.LastIndexByte(target, '.'); i >= 0 {
		return target[i+1:]
	}
	return target
}

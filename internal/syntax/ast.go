// Package syntax implements the lexer and parser for workflow documents.
// A document contains task and workflow definitions; parsing produces the
// AST consumed by the typechecker and the execution engine.
package syntax

import (
	"fmt"

	"github.com/shahbajlive/flowrun/internal/types"
)

// Pos is a source position for error reporting.
type Pos struct {
	URI  string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.URI == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.URI, p.Line, p.Col)
}

// SyntaxError is a parse failure with source position.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Expr is a workflow language expression.
type Expr interface {
	Pos() Pos
	exprNode()
}

type exprBase struct{ pos Pos }

func (e exprBase) Pos() Pos  { return e.pos }
func (e exprBase) exprNode() {}

// BoolLit is true or false.
type BoolLit struct {
	exprBase
	Value bool
}

// IntLit is an integer literal.
type IntLit struct {
	exprBase
	Value int64
}

// FloatLit is a floating point literal.
type FloatLit struct {
	exprBase
	Value float64
}

// NullLit is the null/None literal.
type NullLit struct{ exprBase }

// StringPart is one segment of an interpolated string: either literal text
// or an embedded ~{...}/${...} expression.
type StringPart struct {
	Literal string
	Expr    Expr
}

// StringLit is a (possibly interpolated) string literal.
type StringLit struct {
	exprBase
	Parts []StringPart
}

// Ident is an identifier reference.
type Ident struct {
	exprBase
	Name string
}

// ArrayLit is [a, b, c].
type ArrayLit struct {
	exprBase
	Items []Expr
}

// MapEntry is one key: value entry of a map literal.
type MapEntry struct {
	Key   Expr
	Value Expr
}

// MapLit is {k1: v1, k2: v2}.
type MapLit struct {
	exprBase
	Entries []MapEntry
}

// PairLit is (left, right).
type PairLit struct {
	exprBase
	Left  Expr
	Right Expr
}

// Unary is !x or -x.
type Unary struct {
	exprBase
	Op string
	X  Expr
}

// Binary is a binary operation.
type Binary struct {
	exprBase
	Op    string
	Left  Expr
	Right Expr
}

// Ternary is "if cond then a else b".
type Ternary struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

// Apply is a function call f(args...).
type Apply struct {
	exprBase
	Func string
	Args []Expr
}

// Index is x[i].
type Index struct {
	exprBase
	X   Expr
	Idx Expr
}

// Select is member access x.field; chained access (a.b.c) nests.
type Select struct {
	exprBase
	X     Expr
	Field string
}

// Decl is a typed declaration, optionally with a default/bound expression.
type Decl struct {
	DeclPos Pos
	Type    types.Type
	Name    string
	Expr    Expr // nil for unbound input declarations
}

// CommandPart is one segment of a task command template: literal text or a
// ~{...} placeholder.
type CommandPart struct {
	Literal     string
	Placeholder Expr
	// Options are placeholder options such as sep=", " or default="x".
	Options map[string]Expr
}

// Assert is an "assert expr" statement (version development).
type Assert struct {
	AssertPos Pos
	Expr      Expr
}

// Task is a task definition.
type Task struct {
	TaskPos Pos
	Name    string
	Inputs  []*Decl
	// PostInputs are private declarations after the input section.
	PostInputs []*Decl
	Command    []CommandPart
	Outputs    []*Decl
	Runtime    map[string]Expr
	Asserts    []Assert
	Meta       map[string]string
}

// WorkflowNode is an element of a workflow body: *Decl, *Call, *Scatter or
// *Conditional.
type WorkflowNode interface {
	NodePos() Pos
	workflowNode()
}

func (d *Decl) NodePos() Pos  { return d.DeclPos }
func (d *Decl) workflowNode() {}

// Call invokes a task (or imported workflow) with input bindings.
type Call struct {
	CallPos Pos
	Target  string
	Alias   string // "" when not aliased
	Inputs  map[string]Expr
	// InputOrder preserves source order of the Inputs keys.
	InputOrder []string
}

func (c *Call) NodePos() Pos  { return c.CallPos }
func (c *Call) workflowNode() {}

// Name returns the call's binding name: the alias if present, else the last
// dotted component of the target.
func (c *Call) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	name := c.Target
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// Scatter runs its body once per element of the collection expression.
type Scatter struct {
	ScatterPos Pos
	Var        string
	Collection Expr
	Body       []WorkflowNode
}

func (s *Scatter) NodePos() Pos  { return s.ScatterPos }
func (s *Scatter) workflowNode() {}

// Conditional runs its body only when the condition holds; names bound in
// the body gather as optionals.
type Conditional struct {
	IfPos Pos
	Cond  Expr
	Body  []WorkflowNode
}

func (c *Conditional) NodePos() Pos  { return c.IfPos }
func (c *Conditional) workflowNode() {}

// Workflow is a workflow definition.
type Workflow struct {
	WorkflowPos Pos
	Name        string
	Inputs      []*Decl
	Body        []WorkflowNode
	Outputs     []*Decl
	Asserts     []Assert
	Meta        map[string]string
}

// Document is a parsed source document.
type Document struct {
	URI      string
	Version  string
	Tasks    []*Task
	Workflow *Workflow
}

// Task returns the named task, or nil.
func (d *Document) Task(name string) *Task {
	for _, t := range d.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// DefaultTarget returns the workflow if present, else the sole task. It
// mirrors the runner's "workflow or first task" selection.
func (d *Document) DefaultTarget() (workflow *Workflow, task *Task, err error) {
	if d.Workflow != nil {
		return d.Workflow, nil, nil
	}
	if len(d.Tasks) == 0 {
		return nil, nil, fmt.Errorf("document %s contains no workflow or task", d.URI)
	}
	return nil, d.Tasks[0], nil
}

// ExprIdents returns the free identifier names an expression references.
// Member access rooted at an identifier (alias.out) reports the root
// (alias), which is the form dependency graph nodes are named by.
func ExprIdents(e Expr) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case nil:
		case *Ident:
			add(x.Name)
		case *Select:
			if root, ok := dottedName(x); ok {
				add(root)
			} else {
				walk(x.X)
			}
		case *StringLit:
			for _, p := range x.Parts {
				if p.Expr != nil {
					walk(p.Expr)
				}
			}
		case *ArrayLit:
			for _, it := range x.Items {
				walk(it)
			}
		case *MapLit:
			for _, ent := range x.Entries {
				walk(ent.Key)
				walk(ent.Value)
			}
		case *PairLit:
			walk(x.Left)
			walk(x.Right)
		case *Unary:
			walk(x.X)
		case *Binary:
			walk(x.Left)
			walk(x.Right)
		case *Ternary:
			walk(x.Cond)
			walk(x.Then)
			walk(x.Else)
		case *Apply:
			for _, a := range x.Args {
				walk(a)
			}
		case *Index:
			walk(x.X)
			walk(x.Idx)
		}
	}
	walk(e)
	return out
}

// dottedName flattens a Select chain rooted at an Ident into its dotted
// root identifier ("alias.out" reports "alias").
func dottedName(s *Select) (string, bool) {
	switch x := s.X.(type) {
	case *Ident:
		return x.Name, true
	case *Select:
		return dottedName(x)
	default:
		return "", false
	}
}

package syntax

import (
	"fmt"
	"strings"

	"github.com/shahbajlive/flowrun/internal/types"
)

// SupportedVersions are the document versions the runner accepts. The
// "development" version additionally enables assert statements.
var SupportedVersions = []string{"1.0", "1.1", "development"}

// ParseDocument parses source text into an AST. It does not typecheck; see
// the check package for validation.
func ParseDocument(source, uri string) (*Document, error) {
	p := &parser{lex: newLexer(source, uri)}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseDocument()
}

// ParseExpr parses an isolated expression.
func ParseExpr(text string) (Expr, error) {
	return parseExprAt(text, Pos{Line: 1, Col: 1})
}

func parseExprAt(text string, pos Pos) (Expr, error) {
	p := &parser{lex: newLexer(text, pos.URI)}
	p.lex.line = pos.Line
	p.lex.col = pos.Col
	if err := p.next(); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errf("unexpected %q after expression", p.tok.text)
	}
	return e, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return &SyntaxError{Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// expect consumes the given punctuation or keyword.
func (p *parser) expect(text string) error {
	if !p.tok.is(text) {
		return p.errf("expected %q, found %q", text, p.tok.text)
	}
	return p.next()
}

// ident consumes and returns an identifier.
func (p *parser) ident() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errf("expected identifier, found %q", p.tok.text)
	}
	name := p.tok.text
	if err := p.next(); err != nil {
		return "", err
	}
	return name, nil
}

func (p *parser) parseDocument() (*Document, error) {
	doc := &Document{URI: p.lex.uri}

	if !p.tok.is("version") {
		return nil, p.errf("document must begin with a version statement")
	}
	// Read the version as a raw word; "1.0" and "draft-2" are not tokens.
	word, pos, err := p.lex.word()
	if err != nil {
		return nil, err
	}
	supported := false
	for _, v := range SupportedVersions {
		if word == v {
			supported = true
		}
	}
	if !supported {
		return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unsupported version %q (supported: %s)", word, strings.Join(SupportedVersions, ", "))}
	}
	doc.Version = word
	if err := p.next(); err != nil {
		return nil, err
	}

	for p.tok.kind != tokEOF {
		switch {
		case p.tok.is("task"):
			task, err := p.parseTask()
			if err != nil {
				return nil, err
			}
			if doc.Task(task.Name) != nil {
				return nil, &SyntaxError{Pos: task.TaskPos, Msg: fmt.Sprintf("duplicate task %q", task.Name)}
			}
			doc.Tasks = append(doc.Tasks, task)
		case p.tok.is("workflow"):
			if doc.Workflow != nil {
				return nil, p.errf("document contains more than one workflow")
			}
			wf, err := p.parseWorkflow()
			if err != nil {
				return nil, err
			}
			doc.Workflow = wf
		case p.tok.is("import"):
			return nil, p.errf("import statements are not supported")
		default:
			return nil, p.errf("expected task or workflow, found %q", p.tok.text)
		}
	}
	return doc, nil
}

func (p *parser) parseTask() (*Task, error) {
	task := &Task{TaskPos: p.tok.pos, Runtime: map[string]Expr{}}
	if err := p.next(); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	task.Name = name
	if err := p.expect("{"); err != nil {
		return nil, err
	}

	for !p.tok.is("}") {
		switch {
		case p.tok.is("input"):
			decls, err := p.parseDeclBlock()
			if err != nil {
				return nil, err
			}
			task.Inputs = append(task.Inputs, decls...)
		case p.tok.is("output"):
			decls, err := p.parseDeclBlock()
			if err != nil {
				return nil, err
			}
			task.Outputs = append(task.Outputs, decls...)
		case p.tok.is("command"):
			if task.Command != nil {
				return nil, p.errf("task %s has more than one command", task.Name)
			}
			parts, err := p.parseCommand()
			if err != nil {
				return nil, err
			}
			task.Command = parts
		case p.tok.is("runtime"):
			if err := p.parseRuntime(task.Runtime); err != nil {
				return nil, err
			}
		case p.tok.is("assert"):
			a, err := p.parseAssert()
			if err != nil {
				return nil, err
			}
			task.Asserts = append(task.Asserts, a)
		case p.tok.is("meta"), p.tok.is("parameter_meta"):
			if err := p.skipBraceBlock(); err != nil {
				return nil, err
			}
		default:
			decl, err := p.parseDecl(true)
			if err != nil {
				return nil, err
			}
			task.PostInputs = append(task.PostInputs, decl)
		}
	}
	if err := p.next(); err != nil { // consume }
		return nil, err
	}
	if task.Command == nil {
		return nil, &SyntaxError{Pos: task.TaskPos, Msg: fmt.Sprintf("task %s has no command", task.Name)}
	}
	return task, nil
}

func (p *parser) parseWorkflow() (*Workflow, error) {
	wf := &Workflow{WorkflowPos: p.tok.pos}
	if err := p.next(); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	wf.Name = name
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	for !p.tok.is("}") {
		switch {
		case p.tok.is("input"):
			decls, err := p.parseDeclBlock()
			if err != nil {
				return nil, err
			}
			wf.Inputs = append(wf.Inputs, decls...)
		case p.tok.is("output"):
			decls, err := p.parseDeclBlock()
			if err != nil {
				return nil, err
			}
			wf.Outputs = append(wf.Outputs, decls...)
		case p.tok.is("assert"):
			a, err := p.parseAssert()
			if err != nil {
				return nil, err
			}
			wf.Asserts = append(wf.Asserts, a)
		case p.tok.is("meta"), p.tok.is("parameter_meta"):
			if err := p.skipBraceBlock(); err != nil {
				return nil, err
			}
		default:
			node, err := p.parseWorkflowNode()
			if err != nil {
				return nil, err
			}
			wf.Body = append(wf.Body, node)
		}
	}
	return wf, p.next()
}

func (p *parser) parseWorkflowNode() (WorkflowNode, error) {
	switch {
	case p.tok.is("call"):
		return p.parseCall()
	case p.tok.is("scatter"):
		return p.parseScatter()
	case p.tok.is("if"):
		return p.parseConditional()
	default:
		return p.parseDecl(true)
	}
}

func (p *parser) parseCall() (*Call, error) {
	call := &Call{CallPos: p.tok.pos, Inputs: map[string]Expr{}}
	if err := p.next(); err != nil {
		return nil, err
	}
	target, err := p.ident()
	if err != nil {
		return nil, err
	}
	for p.tok.is(".") {
		if err := p.next(); err != nil {
			return nil, err
		}
		part, err := p.ident()
		if err != nil {
			return nil, err
		}
		target += "." + part
	}
	call.Target = target
	if p.tok.is("as") {
		if err := p.next(); err != nil {
			return nil, err
		}
		alias, err := p.ident()
		if err != nil {
			return nil, err
		}
		call.Alias = alias
	}
	if !p.tok.is("{") {
		return call, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	// WDL 1.0 requires an "input:" prefix before the bindings; the
	// development version drops it. Accept both.
	if p.tok.is("input") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
	}
	for !p.tok.is("}") {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, dup := call.Inputs[name]; dup {
			return nil, p.errf("duplicate call input %q", name)
		}
		call.Inputs[name] = expr
		call.InputOrder = append(call.InputOrder, name)
		if p.tok.is(",") {
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	return call, p.next()
}

func (p *parser) parseScatter() (*Scatter, error) {
	sc := &Scatter{ScatterPos: p.tok.pos}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	v, err := p.ident()
	if err != nil {
		return nil, err
	}
	sc.Var = v
	if err := p.expect("in"); err != nil {
		return nil, err
	}
	coll, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	sc.Collection = coll
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseNodeBlock()
	if err != nil {
		return nil, err
	}
	sc.Body = body
	return sc, nil
}

func (p *parser) parseConditional() (*Conditional, error) {
	cond := &Conditional{IfPos: p.tok.pos}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	cond.Cond = e
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseNodeBlock()
	if err != nil {
		return nil, err
	}
	cond.Body = body
	return cond, nil
}

func (p *parser) parseNodeBlock() ([]WorkflowNode, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var nodes []WorkflowNode
	for !p.tok.is("}") {
		node, err := p.parseWorkflowNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, p.next()
}

func (p *parser) parseAssert() (Assert, error) {
	a := Assert{AssertPos: p.tok.pos}
	if err := p.next(); err != nil {
		return a, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return a, err
	}
	a.Expr = e
	return a, nil
}

// parseDeclBlock parses "input { ... }" or "output { ... }".
func (p *parser) parseDeclBlock() ([]*Decl, error) {
	if err := p.next(); err != nil { // consume input/output keyword
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var decls []*Decl
	for !p.tok.is("}") {
		d, err := p.parseDecl(true)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, p.next()
}

// parseDecl parses "Type name" optionally followed by "= expr".
func (p *parser) parseDecl(allowUnbound bool) (*Decl, error) {
	pos := p.tok.pos
	ty, err := p.parseType()
	if err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	d := &Decl{DeclPos: pos, Type: ty, Name: name}
	if p.tok.is("=") {
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d.Expr = e
	} else if !allowUnbound {
		return nil, p.errf("declaration %s requires a bound expression", name)
	}
	return d, nil
}

func (p *parser) parseType() (types.Type, error) {
	if p.tok.kind != tokIdent {
		return nil, p.errf("expected type, found %q", p.tok.text)
	}
	name := p.tok.text
	if err := p.next(); err != nil {
		return nil, err
	}
	var t types.Type
	switch name {
	case "Boolean":
		t = types.Boolean()
	case "Int":
		t = types.Int()
	case "Float":
		t = types.Float()
	case "String":
		t = types.String()
	case "File":
		t = types.File()
	case "Array":
		if err := p.expect("["); err != nil {
			return nil, err
		}
		item, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		arr := types.ArrayOf(item)
		if p.tok.is("+") {
			arr.NonEmpty = true
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		t = arr
	case "Map":
		k, v, err := p.parseTypePair()
		if err != nil {
			return nil, err
		}
		t = types.MapOf(k, v)
	case "Pair":
		l, r, err := p.parseTypePair()
		if err != nil {
			return nil, err
		}
		t = types.PairOf(l, r)
	default:
		return nil, p.errf("unknown type %q", name)
	}
	if p.tok.is("?") {
		t = t.WithOptional(true)
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (p *parser) parseTypePair() (types.Type, types.Type, error) {
	if err := p.expect("["); err != nil {
		return nil, nil, err
	}
	a, err := p.parseType()
	if err != nil {
		return nil, nil, err
	}
	if err := p.expect(","); err != nil {
		return nil, nil, err
	}
	b, err := p.parseType()
	if err != nil {
		return nil, nil, err
	}
	if err := p.expect("]"); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// parseCommand parses "command { ... }" or "command <<< ... >>>" into
// literal and placeholder parts.
func (p *parser) parseCommand() ([]CommandPart, error) {
	pos := p.tok.pos
	if err := p.next(); err != nil { // consume "command"
		return nil, err
	}
	var heredoc bool
	switch {
	case p.tok.is("<<<"):
		heredoc = true
	case p.tok.is("{"):
		heredoc = false
	default:
		return nil, p.errf("expected command body after command keyword")
	}
	// The opening delimiter is the current token, so the lexer sits right
	// after it; pull the body raw before refilling the lookahead.
	raw, err := p.lex.rawCommand(heredoc)
	if err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	parts, err := splitPlaceholders(raw, heredoc, pos)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		parts = []CommandPart{{Literal: ""}}
	}
	return parts, nil
}

// parseRuntime parses "runtime { key: expr ... }".
func (p *parser) parseRuntime(dst map[string]Expr) error {
	if err := p.next(); err != nil {
		return err
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	for !p.tok.is("}") {
		key, err := p.ident()
		if err != nil {
			return err
		}
		if err := p.expect(":"); err != nil {
			return err
		}
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		if _, dup := dst[key]; dup {
			return p.errf("duplicate runtime attribute %q", key)
		}
		dst[key] = e
		if p.tok.is(",") {
			if err := p.next(); err != nil {
				return err
			}
		}
	}
	return p.next()
}

// skipBraceBlock skips a meta/parameter_meta section without parsing it.
func (p *parser) skipBraceBlock() error {
	if err := p.next(); err != nil { // consume the section keyword
		return err
	}
	if !p.tok.is("{") {
		return p.errf("expected { after meta section")
	}
	if _, err := p.lex.rawCommand(false); err != nil {
		return err
	}
	return p.next()
}

// Expression grammar, lowest precedence first.

func (p *parser) parseExpr() (Expr, error) {
	if p.tok.is("if") {
		pos := p.tok.pos
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("then"); err != nil {
			return nil, err
		}
		thenX, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("else"); err != nil {
			return nil, err
		}
		elseX, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Ternary{exprBase: exprBase{pos}, Cond: cond, Then: thenX, Else: elseX}, nil
	}
	return p.parseBinary(0)
}

var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) parseBinary(level int) (Expr, error) {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range binaryLevels[level] {
			if p.tok.kind == tokPunct && p.tok.text == op {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		pos := p.tok.pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{exprBase: exprBase{pos}, Op: matched, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.is("!") || p.tok.is("-") {
		op := p.tok.text
		pos := p.tok.pos
		if err := p.next(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{exprBase: exprBase{pos}, Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tok.is("["):
			pos := p.tok.pos
			if err := p.next(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			e = &Index{exprBase: exprBase{pos}, X: e, Idx: idx}
		case p.tok.is("."):
			pos := p.tok.pos
			if err := p.next(); err != nil {
				return nil, err
			}
			field, err := p.ident()
			if err != nil {
				return nil, err
			}
			e = &Select{exprBase: exprBase{pos}, X: e, Field: field}
		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	pos := p.tok.pos
	switch {
	case p.tok.kind == tokInt:
		v, err := parseInt(p.tok.text)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", p.tok.text)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &IntLit{exprBase: exprBase{pos}, Value: v}, nil

	case p.tok.kind == tokFloat:
		v, err := parseFloat(p.tok.text)
		if err != nil {
			return nil, p.errf("invalid float literal %q", p.tok.text)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &FloatLit{exprBase: exprBase{pos}, Value: v}, nil

	case p.tok.kind == tokString:
		raw := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		parts, err := splitStringParts(raw, pos)
		if err != nil {
			return nil, err
		}
		return &StringLit{exprBase: exprBase{pos}, Parts: parts}, nil

	case p.tok.is("true"), p.tok.is("false"):
		v := p.tok.text == "true"
		if err := p.next(); err != nil {
			return nil, err
		}
		return &BoolLit{exprBase: exprBase{pos}, Value: v}, nil

	case p.tok.is("null"), p.tok.is("None"):
		if err := p.next(); err != nil {
			return nil, err
		}
		return &NullLit{exprBase: exprBase{pos}}, nil

	case p.tok.is("("):
		if err := p.next(); err != nil {
			return nil, err
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.is(",") {
			if err := p.next(); err != nil {
				return nil, err
			}
			second, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return &PairLit{exprBase: exprBase{pos}, Left: first, Right: second}, nil
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return first, nil

	case p.tok.is("["):
		if err := p.next(); err != nil {
			return nil, err
		}
		var items []Expr
		for !p.tok.is("]") {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.tok.is(",") {
				if err := p.next(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ArrayLit{exprBase: exprBase{pos}, Items: items}, nil

	case p.tok.is("{"):
		if err := p.next(); err != nil {
			return nil, err
		}
		var entries []MapEntry
		for !p.tok.is("}") {
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			entries = append(entries, MapEntry{Key: k, Value: v})
			if p.tok.is(",") {
				if err := p.next(); err != nil {
					return nil, err
				}
			}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return &MapLit{exprBase: exprBase{pos}, Entries: entries}, nil

	case p.tok.kind == tokIdent:
		name := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.is("(") {
			if err := p.next(); err != nil {
				return nil, err
			}
			var args []Expr
			for !p.tok.is(")") {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.tok.is(",") {
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			return &Apply{exprBase: exprBase{pos}, Func: name, Args: args}, nil
		}
		return &Ident{exprBase: exprBase{pos}, Name: name}, nil
	}
	return nil, p.errf("unexpected %q in expression", p.tok.text)
}

package syntax

import "strings"

// Placeholder option keys accepted inside ~{...}: sep=, default=, and the
// true=/false= pair for Boolean flags.
var placeholderOptions = map[string]bool{
	"sep":     true,
	"default": true,
	"true":    true,
	"false":   true,
}

// splitPlaceholders splits a raw command body into literal and placeholder
// parts. Heredoc commands accept only ~{...}; brace commands accept ${...}
// as well.
func splitPlaceholders(raw string, heredoc bool, pos Pos) ([]CommandPart, error) {
	var parts []CommandPart
	var lit strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			lit.WriteByte(raw[i])
			lit.WriteByte(raw[i+1])
			i += 2
			continue
		}
		if isPlaceholderStart(raw, i, heredoc) {
			end, err := placeholderEnd(raw, i+2, pos)
			if err != nil {
				return nil, err
			}
			if lit.Len() > 0 {
				parts = append(parts, CommandPart{Literal: lit.String()})
				lit.Reset()
			}
			expr, opts, err := parsePlaceholder(raw[i+2:end], offsetPos(pos, raw[:i]))
			if err != nil {
				return nil, err
			}
			parts = append(parts, CommandPart{Placeholder: expr, Options: opts})
			i = end + 1
			continue
		}
		lit.WriteByte(raw[i])
		i++
	}
	if lit.Len() > 0 {
		parts = append(parts, CommandPart{Literal: lit.String()})
	}
	return parts, nil
}

// splitStringParts splits a string literal's raw text into literal and
// interpolated-expression parts, processing escapes in the literals.
func splitStringParts(raw string, pos Pos) ([]StringPart, error) {
	var parts []StringPart
	var lit strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			lit.WriteByte(raw[i])
			lit.WriteByte(raw[i+1])
			i += 2
			continue
		}
		if isPlaceholderStart(raw, i, false) {
			end, err := placeholderEnd(raw, i+2, pos)
			if err != nil {
				return nil, err
			}
			if lit.Len() > 0 {
				parts = append(parts, StringPart{Literal: unescape(lit.String())})
				lit.Reset()
			}
			expr, err := parseExprAt(raw[i+2:end], offsetPos(pos, raw[:i]))
			if err != nil {
				return nil, err
			}
			parts = append(parts, StringPart{Expr: expr})
			i = end + 1
			continue
		}
		lit.WriteByte(raw[i])
		i++
	}
	if lit.Len() > 0 || len(parts) == 0 {
		parts = append(parts, StringPart{Literal: unescape(lit.String())})
	}
	return parts, nil
}

func isPlaceholderStart(s string, i int, heredocOnly bool) bool {
	if i+1 >= len(s) || s[i+1] != '{' {
		return false
	}
	if s[i] == '~' {
		return true
	}
	return s[i] == '$' && !heredocOnly
}

// placeholderEnd returns the index of the closing brace matching the
// placeholder opened just before start, tracking nested braces and string
// literals inside the placeholder.
func placeholderEnd(s string, start int, pos Pos) (int, error) {
	depth := 1
	i := start
	for i < len(s) {
		switch s[i] {
		case '\\':
			i++
		case '"', '\'':
			quote := s[i]
			i++
			for i < len(s) && s[i] != quote {
				if s[i] == '\\' {
					i++
				}
				i++
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
		i++
	}
	return 0, &SyntaxError{Pos: offsetPos(pos, s[:start]), Msg: "unterminated placeholder"}
}

// offsetPos advances pos over the given prefix text.
func offsetPos(pos Pos, prefix string) Pos {
	for i := 0; i < len(prefix); i++ {
		if prefix[i] == '\n' {
			pos.Line++
			pos.Col = 1
		} else {
			pos.Col++
		}
	}
	return pos
}

// parsePlaceholder parses the inside of ~{...}: zero or more option
// bindings followed by the expression.
func parsePlaceholder(inner string, pos Pos) (Expr, map[string]Expr, error) {
	p := &parser{lex: newLexer(inner, pos.URI)}
	p.lex.line = pos.Line
	p.lex.col = pos.Col
	if err := p.next(); err != nil {
		return nil, nil, err
	}
	var opts map[string]Expr
	for p.tok.kind == tokIdent && placeholderOptions[p.tok.text] {
		st := p.save()
		name := p.tok.text
		if err := p.next(); err != nil {
			return nil, nil, err
		}
		if !p.tok.is("=") {
			p.restore(st)
			break
		}
		if err := p.next(); err != nil {
			return nil, nil, err
		}
		val, err := p.parsePostfix()
		if err != nil {
			return nil, nil, err
		}
		if opts == nil {
			opts = map[string]Expr{}
		}
		opts[name] = val
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, nil, p.errf("unexpected %q in placeholder", p.tok.text)
	}
	return expr, opts, nil
}

// parserState snapshots the lexer for one-token backtracking in
// placeholder option parsing.
type parserState struct {
	pos  int
	line int
	col  int
	tok  token
}

func (p *parser) save() parserState {
	return parserState{pos: p.lex.pos, line: p.lex.line, col: p.lex.col, tok: p.tok}
}

func (p *parser) restore(st parserState) {
	p.lex.pos = st.pos
	p.lex.line = st.line
	p.lex.col = st.col
	p.tok = st.tok
}

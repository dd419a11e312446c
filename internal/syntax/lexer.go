package syntax

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString // raw inner text, escapes unprocessed
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  Pos
}

func (t token) is(text string) bool {
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

// lexer scans a document into tokens. Command bodies are not tokenized;
// the parser pulls them out raw via rawCommand.
type lexer struct {
	src  string
	uri  string
	pos  int
	line int
	col  int
}

func newLexer(src, uri string) *lexer {
	return &lexer{src: src, uri: uri, line: 1, col: 1}
}

func (l *lexer) here() Pos { return Pos{URI: l.uri, Line: l.line, Col: l.col} }

func (l *lexer) errf(pos Pos, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool { return isIdentStart(c) || c >= '0' && c <= '9' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// multi-char punctuation, longest first.
var puncts = []string{
	"<<<", ">>>", "<=", ">=", "==", "!=", "&&", "||",
	"(", ")", "[", "]", "{", "}", "<", ">", "=", "+", "-", "*", "/", "%",
	"!", ",", ":", ".", "?", ";",
}

// next returns the next token.
func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	pos := l.here()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: pos}, nil
	}
	c := l.src[l.pos]

	if isIdentStart(c) {
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.advance()
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: pos}, nil
	}

	if isDigit(c) {
		start := l.pos
		kind := tokInt
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance()
		}
		if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
			kind = tokFloat
			l.advance()
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.advance()
			}
		}
		if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
			kind = tokFloat
			l.advance()
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.advance()
			}
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.advance()
			}
		}
		return token{kind: kind, text: l.src[start:l.pos], pos: pos}, nil
	}

	if c == '"' || c == '\'' {
		quote := c
		l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, l.errf(pos, "unterminated string literal")
			}
			ch := l.src[l.pos]
			if ch == quote {
				l.advance()
				return token{kind: tokString, text: sb.String(), pos: pos}, nil
			}
			if ch == '\\' {
				if l.pos+1 >= len(l.src) {
					return token{}, l.errf(pos, "unterminated string literal")
				}
				sb.WriteByte(l.advance())
				sb.WriteByte(l.advance())
				continue
			}
			if ch == '\n' {
				return token{}, l.errf(pos, "newline in string literal")
			}
			sb.WriteByte(l.advance())
		}
	}

	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			for range p {
				l.advance()
			}
			return token{kind: tokPunct, text: p, pos: pos}, nil
		}
	}

	return token{}, l.errf(pos, "unexpected character %q", string(c))
}

// word reads the next whitespace-delimited word, used for the version
// header where "1.0" and "draft-2" are not ordinary tokens.
func (l *lexer) word() (string, Pos, error) {
	l.skipSpaceAndComments()
	pos := l.here()
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '#' {
			break
		}
		l.advance()
	}
	if l.pos == start {
		return "", pos, l.errf(pos, "expected word")
	}
	return l.src[start:l.pos], pos, nil
}

// rawCommand consumes a command body. For heredoc commands it reads until
// ">>>"; for brace commands it reads until the matching "}", tracking brace
// depth so placeholder braces do not end the body early.
func (l *lexer) rawCommand(heredoc bool) (string, error) {
	pos := l.here()
	start := l.pos
	if heredoc {
		idx := strings.Index(l.src[l.pos:], ">>>")
		if idx < 0 {
			return "", l.errf(pos, "unterminated command (missing >>>)")
		}
		for i := 0; i < idx+3; i++ {
			l.advance()
		}
		return l.src[start : start+idx], nil
	}
	depth := 1
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				body := l.src[start:l.pos]
				l.advance()
				return body, nil
			}
		}
		l.advance()
	}
	return "", l.errf(pos, "unterminated command (missing })")
}

// unescape processes backslash escapes in string literal text.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '\\', '"', '\'', '~', '$':
			sb.WriteByte(s[i])
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func parseInt(text string) (int64, error)     { return strconv.ParseInt(text, 10, 64) }
func parseFloat(text string) (float64, error) { return strconv.ParseFloat(text, 64) }

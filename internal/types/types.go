// Package types implements the workflow language type system: primitive
// types, parameterized containers, and the optional (?) and nonempty (+)
// quantifiers, with the coercion rules used by the typechecker and the
// input binder.
package types

import "fmt"

// Type is a workflow language type. Implementations are value types; the
// With* methods return modified copies.
type Type interface {
	// String renders the type in source syntax, e.g. "Array[File]+".
	String() string

	// Optional reports whether the type carries the ? quantifier.
	Optional() bool

	// WithOptional returns a copy with the ? quantifier set or cleared.
	WithOptional(opt bool) Type

	// Parameters returns type parameters for container types, nil otherwise.
	Parameters() []Type

	// CoercibleTo reports whether a value of this type can be coerced to rhs.
	// With checkQuant false, the optional and nonempty quantifier rules are
	// relaxed (T? coerces to T, Array[T] to Array[T]+).
	CoercibleTo(rhs Type, checkQuant bool) bool
}

// Primitive kinds.
type kind int

const (
	kindBoolean kind = iota
	kindInt
	kindFloat
	kindString
	kindFile
	kindAny
)

var kindNames = map[kind]string{
	kindBoolean: "Boolean",
	kindInt:     "Int",
	kindFloat:   "Float",
	kindString:  "String",
	kindFile:    "File",
	kindAny:     "Any",
}

// Base is a primitive type (Boolean, Int, Float, String, File, Any).
type Base struct {
	kind kind
	opt  bool
}

// Constructors for the primitive types.
func Boolean() Base { return Base{kind: kindBoolean} }
func Int() Base     { return Base{kind: kindInt} }
func Float() Base   { return Base{kind: kindFloat} }
func String() Base  { return Base{kind: kindString} }
func File() Base    { return Base{kind: kindFile} }

// Any is the type of null literals and of values read from untyped JSON.
// It coerces to anything.
func Any() Base { return Base{kind: kindAny, opt: true} }

func (t Base) String() string {
	s := kindNames[t.kind]
	if t.opt && t.kind != kindAny {
		s += "?"
	}
	return s
}

func (t Base) Optional() bool { return t.opt }

func (t Base) WithOptional(opt bool) Type {
	t.opt = opt
	return t
}

func (t Base) Parameters() []Type { return nil }

func (t Base) CoercibleTo(rhs Type, checkQuant bool) bool {
	// Any coerces to anything; it must not be caught by the quantifier
	// rule even though it carries the optional flag for null literals.
	if t.kind == kindAny {
		return true
	}
	if !quantOK(t, rhs, checkQuant) {
		return false
	}
	switch r := rhs.(type) {
	case Base:
		if r.kind == kindAny || r.kind == t.kind {
			return true
		}
		switch t.kind {
		case kindInt:
			return r.kind == kindFloat || r.kind == kindString
		case kindFloat, kindBoolean:
			return r.kind == kindString
		case kindString:
			return r.kind == kindFile
		case kindFile:
			return r.kind == kindString
		}
		return false
	default:
		return false
	}
}

// Array is Array[Item], optionally nonempty (+).
type Array struct {
	Item     Type
	NonEmpty bool
	opt      bool
}

// ArrayOf returns Array[item].
func ArrayOf(item Type) Array { return Array{Item: item} }

func (t Array) String() string {
	s := fmt.Sprintf("Array[%s]", t.Item)
	if t.NonEmpty {
		s += "+"
	}
	if t.opt {
		s += "?"
	}
	return s
}

func (t Array) Optional() bool { return t.opt }

func (t Array) WithOptional(opt bool) Type {
	t.opt = opt
	return t
}

func (t Array) Parameters() []Type { return []Type{t.Item} }

func (t Array) CoercibleTo(rhs Type, checkQuant bool) bool {
	if !quantOK(t, rhs, checkQuant) {
		return false
	}
	switch r := rhs.(type) {
	case Base:
		return r.kind == kindAny
	case Array:
		if checkQuant && r.NonEmpty && !t.NonEmpty {
			return false
		}
		return t.Item.CoercibleTo(r.Item, checkQuant)
	default:
		return false
	}
}

// Map is Map[Key, Value].
type Map struct {
	Key   Type
	Value Type
	opt   bool
}

// MapOf returns Map[key, value].
func MapOf(key, value Type) Map { return Map{Key: key, Value: value} }

func (t Map) String() string {
	s := fmt.Sprintf("Map[%s,%s]", t.Key, t.Value)
	if t.opt {
		s += "?"
	}
	return s
}

func (t Map) Optional() bool { return t.opt }

func (t Map) WithOptional(opt bool) Type {
	t.opt = opt
	return t
}

func (t Map) Parameters() []Type { return []Type{t.Key, t.Value} }

func (t Map) CoercibleTo(rhs Type, checkQuant bool) bool {
	if !quantOK(t, rhs, checkQuant) {
		return false
	}
	switch r := rhs.(type) {
	case Base:
		return r.kind == kindAny
	case Map:
		return t.Key.CoercibleTo(r.Key, checkQuant) && t.Value.CoercibleTo(r.Value, checkQuant)
	default:
		return false
	}
}

// Pair is Pair[Left, Right].
type Pair struct {
	Left  Type
	Right Type
	opt   bool
}

// PairOf returns Pair[left, right].
func PairOf(left, right Type) Pair { return Pair{Left: left, Right: right} }

func (t Pair) String() string {
	s := fmt.Sprintf("Pair[%s,%s]", t.Left, t.Right)
	if t.opt {
		s += "?"
	}
	return s
}

func (t Pair) Optional() bool { return t.opt }

func (t Pair) WithOptional(opt bool) Type {
	t.opt = opt
	return t
}

func (t Pair) Parameters() []Type { return []Type{t.Left, t.Right} }

func (t Pair) CoercibleTo(rhs Type, checkQuant bool) bool {
	if !quantOK(t, rhs, checkQuant) {
		return false
	}
	switch r := rhs.(type) {
	case Base:
		return r.kind == kindAny
	case Pair:
		return t.Left.CoercibleTo(r.Left, checkQuant) && t.Right.CoercibleTo(r.Right, checkQuant)
	default:
		return false
	}
}

// quantOK applies the optional-quantifier rule: an optional value cannot be
// coerced to a non-optional type when quantifier checking is on.
func quantOK(lhs, rhs Type, checkQuant bool) bool {
	if !checkQuant {
		return true
	}
	if b, ok := rhs.(Base); ok && b.kind == kindAny {
		return true
	}
	return !lhs.Optional() || rhs.Optional()
}

// Equal reports structural equality, quantifiers included.
func Equal(a, b Type) bool { return a.String() == b.String() }

// Unify returns the least common supertype of the given types, used for
// array literals and ternary branches. It returns Any() when the types do
// not unify.
func Unify(ts []Type, checkQuant bool) Type {
	if len(ts) == 0 {
		return Any()
	}
	best := ts[0]
	for _, t := range ts[1:] {
		best = unify2(best, t, checkQuant)
	}
	return best
}

func unify2(a, b Type, checkQuant bool) Type {
	opt := a.Optional() || b.Optional()
	if Equal(a.WithOptional(false), b.WithOptional(false)) {
		return a.WithOptional(opt)
	}
	if a.CoercibleTo(b, false) && !b.CoercibleTo(a, false) {
		return b.WithOptional(opt)
	}
	if b.CoercibleTo(a, false) && !a.CoercibleTo(b, false) {
		return a.WithOptional(opt)
	}
	// Int/Float unify to Float.
	if isKind(a, kindInt) && isKind(b, kindFloat) || isKind(a, kindFloat) && isKind(b, kindInt) {
		return Float().WithOptional(opt)
	}
	ab, aok := a.(Array)
	bb, bok := b.(Array)
	if aok && bok {
		item := unify2(ab.Item, bb.Item, checkQuant)
		return Array{Item: item, NonEmpty: ab.NonEmpty && bb.NonEmpty, opt: opt}
	}
	if isKind(a, kindAny) {
		return b.WithOptional(opt)
	}
	if isKind(b, kindAny) {
		return a.WithOptional(opt)
	}
	return Any()
}

func isKind(t Type, k kind) bool {
	b, ok := t.(Base)
	return ok && b.kind == k
}

// Parse parses a type from its source syntax, e.g. "Array[File?]+". It
// exists for input templates and tests; the document parser builds types
// directly from its token stream.
func Parse(s string) (Type, error) {
	p := &typeParser{src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing characters in type %q", s)
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			p.pos++
		} else {
			break
		}
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return fmt.Errorf("expected %q in type %q", string(c), p.src)
	}
	p.pos++
	return nil
}

func (p *typeParser) parse() (Type, error) {
	name := p.ident()
	var t Type
	switch name {
	case "Boolean":
		t = Boolean()
	case "Int":
		t = Int()
	case "Float":
		t = Float()
	case "String":
		t = String()
	case "File":
		t = File()
	case "Array":
		if err := p.expect('['); err != nil {
			return nil, err
		}
		item, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		arr := ArrayOf(item)
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '+' {
			arr.NonEmpty = true
			p.pos++
		}
		t = arr
	case "Map":
		if err := p.expect('['); err != nil {
			return nil, err
		}
		k, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		v, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		t = MapOf(k, v)
	case "Pair":
		if err := p.expect('['); err != nil {
			return nil, err
		}
		l, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		r, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		t = PairOf(l, r)
	default:
		return nil, fmt.Errorf("unknown type %q", name)
	}
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '?' {
		t = t.WithOptional(true)
		p.pos++
	}
	return t, nil
}

// IsNumeric reports whether t is Int or Float.
func IsNumeric(t Type) bool { return isKind(t, kindInt) || isKind(t, kindFloat) }

// IsInt reports whether t is Int.
func IsInt(t Type) bool { return isKind(t, kindInt) }

// IsFloat reports whether t is Float.
func IsFloat(t Type) bool { return isKind(t, kindFloat) }

// IsString reports whether t is String.
func IsString(t Type) bool { return isKind(t, kindString) }

// IsFile reports whether t is File.
func IsFile(t Type) bool { return isKind(t, kindFile) }

// IsBoolean reports whether t is Boolean.
func IsBoolean(t Type) bool { return isKind(t, kindBoolean) }

// IsAny reports whether t is Any.
func IsAny(t Type) bool { return isKind(t, kindAny) }

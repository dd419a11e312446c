// Package eval evaluates workflow language expressions against an
// environment of bound values, including the standard library functions
// available to declarations and task outputs.
package eval

import (
	"fmt"
	"math"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
	"github.com/shahbajlive/flowrun/internal/values"
)

// Stdlib provides the file-system context for standard library functions.
// Outside a task output section Stdout and Stderr are empty and the
// stdout()/stderr() functions fail.
type Stdlib struct {
	// WorkDir anchors relative paths passed to the read_*/write_* functions.
	WorkDir string
	// Stdout is the path of the completed task's standard output.
	Stdout string
	// Stderr is the path of the completed task's standard error.
	Stderr string
}

func errAt(pos syntax.Pos, format string, args ...any) error {
	return fmt.Errorf("%s: %s", pos, fmt.Sprintf(format, args...))
}

// Eval evaluates an expression.
func Eval(e syntax.Expr, env values.Bindings, lib *Stdlib) (values.Value, error) {
	if lib == nil {
		lib = &Stdlib{}
	}
	switch x := e.(type) {
	case *syntax.BoolLit:
		return values.Boolean{Value: x.Value}, nil
	case *syntax.IntLit:
		return values.Int{Value: x.Value}, nil
	case *syntax.FloatLit:
		return values.Float{Value: x.Value}, nil
	case *syntax.NullLit:
		return values.Null{}, nil
	case *syntax.StringLit:
		return evalString(x, env, lib)
	case *syntax.Ident:
		v, ok := env.Get(x.Name)
		if !ok {
			return nil, errAt(x.Pos(), "unknown identifier %q", x.Name)
		}
		return v, nil
	case *syntax.Select:
		return evalSelect(x, env, lib)
	case *syntax.Index:
		return evalIndex(x, env, lib)
	case *syntax.ArrayLit:
		items := make([]values.Value, len(x.Items))
		ts := make([]types.Type, len(x.Items))
		for i, it := range x.Items {
			v, err := Eval(it, env, lib)
			if err != nil {
				return nil, err
			}
			items[i] = v
			ts[i] = v.Type()
		}
		return values.Array{ItemType: types.Unify(ts, true), Items: items}, nil
	case *syntax.MapLit:
		m := values.Map{KeyType: types.Any(), ValueType: types.Any()}
		var kts, vts []types.Type
		for _, ent := range x.Entries {
			k, err := Eval(ent.Key, env, lib)
			if err != nil {
				return nil, err
			}
			v, err := Eval(ent.Value, env, lib)
			if err != nil {
				return nil, err
			}
			m.Keys = append(m.Keys, k)
			m.Values = append(m.Values, v)
			kts = append(kts, k.Type())
			vts = append(vts, v.Type())
		}
		m.KeyType = types.Unify(kts, true)
		m.ValueType = types.Unify(vts, true)
		return m, nil
	case *syntax.PairLit:
		l, err := Eval(x.Left, env, lib)
		if err != nil {
			return nil, err
		}
		r, err := Eval(x.Right, env, lib)
		if err != nil {
			return nil, err
		}
		return values.Pair{Left: l, Right: r}, nil
	case *syntax.Unary:
		return evalUnary(x, env, lib)
	case *syntax.Binary:
		return evalBinary(x, env, lib)
	case *syntax.Ternary:
		cond, err := Eval(x.Cond, env, lib)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(values.Boolean)
		if !ok {
			return nil, errAt(x.Pos(), "if condition is %s, not Boolean", cond.Type())
		}
		if b.Value {
			return Eval(x.Then, env, lib)
		}
		return Eval(x.Else, env, lib)
	case *syntax.Apply:
		return applyFunc(x, env, lib)
	}
	return nil, fmt.Errorf("cannot evaluate expression %T", e)
}

// EvalString renders an expression for command-template interpolation,
// with null rendering as the empty string.
func EvalString(e syntax.Expr, env values.Bindings, lib *Stdlib) (string, error) {
	v, err := Eval(e, env, lib)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func evalString(x *syntax.StringLit, env values.Bindings, lib *Stdlib) (values.Value, error) {
	out := ""
	for _, part := range x.Parts {
		if part.Expr == nil {
			out += part.Literal
			continue
		}
		s, err := EvalString(part.Expr, env, lib)
		if err != nil {
			return nil, err
		}
		out += s
	}
	return values.String_{Value: out}, nil
}

func evalSelect(x *syntax.Select, env values.Bindings, lib *Stdlib) (values.Value, error) {
	// A dotted name may be bound directly in the environment (call outputs
	// are bound as "alias.output").
	if name, ok := flattenSelect(x); ok {
		if v, found := env.Get(name); found {
			return v, nil
		}
	}
	base, err := Eval(x.X, env, lib)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case values.Pair:
		switch x.Field {
		case "left":
			return b.Left, nil
		case "right":
			return b.Right, nil
		}
		return nil, errAt(x.Pos(), "Pair has no member %q", x.Field)
	case values.Map:
		if v, ok := b.Get(values.String_{Value: x.Field}); ok {
			return v, nil
		}
		return nil, errAt(x.Pos(), "map has no key %q", x.Field)
	}
	return nil, errAt(x.Pos(), "cannot select %q from %s", x.Field, base.Type())
}

// flattenSelect renders a Select chain rooted at an identifier as its full
// dotted name.
func flattenSelect(x *syntax.Select) (string, bool) {
	switch b := x.X.(type) {
	case *syntax.Ident:
		return b.Name + "." + x.Field, true
	case *syntax.Select:
		if prefix, ok := flattenSelect(b); ok {
			return prefix + "." + x.Field, true
		}
	}
	return "", false
}

func evalIndex(x *syntax.Index, env values.Bindings, lib *Stdlib) (values.Value, error) {
	base, err := Eval(x.X, env, lib)
	if err != nil {
		return nil, err
	}
	idx, err := Eval(x.Idx, env, lib)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case values.Array:
		i, ok := idx.(values.Int)
		if !ok {
			return nil, errAt(x.Pos(), "array index is %s, not Int", idx.Type())
		}
		if i.Value < 0 || i.Value >= int64(len(b.Items)) {
			return nil, errAt(x.Pos(), "array index %d out of bounds (length %d)", i.Value, len(b.Items))
		}
		return b.Items[i.Value], nil
	case values.Map:
		if v, ok := b.Get(idx); ok {
			return v, nil
		}
		return nil, errAt(x.Pos(), "map has no key %q", idx.String())
	}
	return nil, errAt(x.Pos(), "cannot index %s", base.Type())
}

func evalUnary(x *syntax.Unary, env values.Bindings, lib *Stdlib) (values.Value, error) {
	v, err := Eval(x.X, env, lib)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "!":
		b, ok := v.(values.Boolean)
		if !ok {
			return nil, errAt(x.Pos(), "operand of ! is %s, not Boolean", v.Type())
		}
		return values.Boolean{Value: !b.Value}, nil
	case "-":
		switch n := v.(type) {
		case values.Int:
			return values.Int{Value: -n.Value}, nil
		case values.Float:
			return values.Float{Value: -n.Value}, nil
		}
		return nil, errAt(x.Pos(), "operand of - is %s, not numeric", v.Type())
	}
	return nil, errAt(x.Pos(), "unknown unary operator %q", x.Op)
}

func evalBinary(x *syntax.Binary, env values.Bindings, lib *Stdlib) (values.Value, error) {
	// Short-circuit logical operators.
	if x.Op == "&&" || x.Op == "||" {
		l, err := Eval(x.Left, env, lib)
		if err != nil {
			return nil, err
		}
		lb, ok := l.(values.Boolean)
		if !ok {
			return nil, errAt(x.Pos(), "operand of %s is %s, not Boolean", x.Op, l.Type())
		}
		if x.Op == "&&" && !lb.Value {
			return values.Boolean{Value: false}, nil
		}
		if x.Op == "||" && lb.Value {
			return values.Boolean{Value: true}, nil
		}
		r, err := Eval(x.Right, env, lib)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(values.Boolean)
		if !ok {
			return nil, errAt(x.Pos(), "operand of %s is %s, not Boolean", x.Op, r.Type())
		}
		return values.Boolean{Value: rb.Value}, nil
	}

	l, err := Eval(x.Left, env, lib)
	if err != nil {
		return nil, err
	}
	r, err := Eval(x.Right, env, lib)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case "==":
		return values.Boolean{Value: equalValues(l, r)}, nil
	case "!=":
		return values.Boolean{Value: !equalValues(l, r)}, nil
	}

	// String concatenation and comparison.
	if x.Op == "+" {
		if isStringy(l) || isStringy(r) {
			return values.String_{Value: l.String() + r.String()}, nil
		}
	}
	if ls, lok := l.(values.String_); lok {
		if rs, rok := r.(values.String_); rok {
			switch x.Op {
			case "<":
				return values.Boolean{Value: ls.Value < rs.Value}, nil
			case "<=":
				return values.Boolean{Value: ls.Value <= rs.Value}, nil
			case ">":
				return values.Boolean{Value: ls.Value > rs.Value}, nil
			case ">=":
				return values.Boolean{Value: ls.Value >= rs.Value}, nil
			}
		}
	}

	lf, lInt, lok := numeric(l)
	rf, rInt, rok := numeric(r)
	if !lok || !rok {
		return nil, errAt(x.Pos(), "operands of %s are %s and %s", x.Op, l.Type(), r.Type())
	}
	bothInt := lInt && rInt
	switch x.Op {
	case "+", "-", "*", "%", "/":
		if bothInt {
			li, ri := int64(lf), int64(rf)
			switch x.Op {
			case "+":
				return values.Int{Value: li + ri}, nil
			case "-":
				return values.Int{Value: li - ri}, nil
			case "*":
				return values.Int{Value: li * ri}, nil
			case "/":
				if ri == 0 {
					return nil, errAt(x.Pos(), "division by zero")
				}
				return values.Int{Value: li / ri}, nil
			case "%":
				if ri == 0 {
					return nil, errAt(x.Pos(), "division by zero")
				}
				return values.Int{Value: li % ri}, nil
			}
		}
		switch x.Op {
		case "+":
			return values.Float{Value: lf + rf}, nil
		case "-":
			return values.Float{Value: lf - rf}, nil
		case "*":
			return values.Float{Value: lf * rf}, nil
		case "/":
			if rf == 0 {
				return nil, errAt(x.Pos(), "division by zero")
			}
			return values.Float{Value: lf / rf}, nil
		case "%":
			return values.Float{Value: math.Mod(lf, rf)}, nil
		}
	case "<":
		return values.Boolean{Value: lf < rf}, nil
	case "<=":
		return values.Boolean{Value: lf <= rf}, nil
	case ">":
		return values.Boolean{Value: lf > rf}, nil
	case ">=":
		return values.Boolean{Value: lf >= rf}, nil
	}
	return nil, errAt(x.Pos(), "unknown operator %q", x.Op)
}

func isStringy(v values.Value) bool {
	switch v.(type) {
	case values.String_, values.File:
		return true
	}
	return false
}

func numeric(v values.Value) (f float64, isInt, ok bool) {
	switch n := v.(type) {
	case values.Int:
		return float64(n.Value), true, true
	case values.Float:
		return n.Value, false, true
	}
	return 0, false, false
}

func equalValues(a, b values.Value) bool {
	if values.IsNull(a) || values.IsNull(b) {
		return values.IsNull(a) == values.IsNull(b)
	}
	af, _, aok := numeric(a)
	bf, _, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a.JSON()) == fmt.Sprintf("%v", b.JSON())
}

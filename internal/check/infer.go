package check

import (
	"fmt"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
)

// infer determines the static type of an expression in the given
// environment.
func (c *checker) infer(e syntax.Expr, env typeEnv) (types.Type, error) {
	switch x := e.(type) {
	case *syntax.BoolLit:
		return types.Boolean(), nil
	case *syntax.IntLit:
		return types.Int(), nil
	case *syntax.FloatLit:
		return types.Float(), nil
	case *syntax.NullLit:
		return types.Any(), nil
	case *syntax.StringLit:
		for _, part := range x.Parts {
			if part.Expr != nil {
				if _, err := c.infer(part.Expr, env); err != nil {
					return nil, err
				}
			}
		}
		return types.String(), nil
	case *syntax.Ident:
		if t, ok := env[x.Name]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("unknown identifier %q", x.Name)
	case *syntax.Select:
		return c.inferSelect(x, env)
	case *syntax.Index:
		base, err := c.infer(x.X, env)
		if err != nil {
			return nil, err
		}
		idx, err := c.infer(x.Idx, env)
		if err != nil {
			return nil, err
		}
		switch t := base.(type) {
		case types.Array:
			if !idx.CoercibleTo(types.Int(), c.opts.CheckQuant) {
				return nil, fmt.Errorf("array index is %s, not Int", idx)
			}
			return t.Item, nil
		case types.Map:
			if !idx.CoercibleTo(t.Key, c.opts.CheckQuant) {
				return nil, fmt.Errorf("map key is %s, not %s", idx, t.Key)
			}
			return t.Value, nil
		case types.Base:
			if types.IsAny(t) {
				return types.Any(), nil
			}
		}
		return nil, fmt.Errorf("cannot index %s", base)
	case *syntax.ArrayLit:
		var ts []types.Type
		for _, item := range x.Items {
			t, err := c.infer(item, env)
			if err != nil {
				return nil, err
			}
			ts = append(ts, t)
		}
		arr := types.ArrayOf(types.Unify(ts, c.opts.CheckQuant))
		arr.NonEmpty = len(x.Items) > 0
		return arr, nil
	case *syntax.MapLit:
		var kts, vts []types.Type
		for _, ent := range x.Entries {
			kt, err := c.infer(ent.Key, env)
			if err != nil {
				return nil, err
			}
			vt, err := c.infer(ent.Value, env)
			if err != nil {
				return nil, err
			}
			kts = append(kts, kt)
			vts = append(vts, vt)
		}
		return types.MapOf(types.Unify(kts, c.opts.CheckQuant), types.Unify(vts, c.opts.CheckQuant)), nil
	case *syntax.PairLit:
		lt, err := c.infer(x.Left, env)
		if err != nil {
			return nil, err
		}
		rt, err := c.infer(x.Right, env)
		if err != nil {
			return nil, err
		}
		return types.PairOf(lt, rt), nil
	case *syntax.Unary:
		t, err := c.infer(x.X, env)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case "!":
			if !t.CoercibleTo(types.Boolean(), c.opts.CheckQuant) {
				return nil, fmt.Errorf("operand of ! is %s, not Boolean", t)
			}
			return types.Boolean(), nil
		case "-":
			if !types.IsNumeric(t) && !types.IsAny(t) {
				return nil, fmt.Errorf("operand of - is %s, not numeric", t)
			}
			return t, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", x.Op)
	case *syntax.Binary:
		return c.inferBinary(x, env)
	case *syntax.Ternary:
		ct, err := c.infer(x.Cond, env)
		if err != nil {
			return nil, err
		}
		if !ct.CoercibleTo(types.Boolean(), c.opts.CheckQuant) {
			return nil, fmt.Errorf("if condition is %s, not Boolean", ct)
		}
		tt, err := c.infer(x.Then, env)
		if err != nil {
			return nil, err
		}
		et, err := c.infer(x.Else, env)
		if err != nil {
			return nil, err
		}
		return types.Unify([]types.Type{tt, et}, c.opts.CheckQuant), nil
	case *syntax.Apply:
		return c.inferApply(x, env)
	}
	return nil, fmt.Errorf("cannot infer type of %T", e)
}

func (c *checker) inferSelect(x *syntax.Select, env typeEnv) (types.Type, error) {
	// Dotted environment names (call outputs) take precedence.
	if name, ok := selectName(x); ok {
		if t, found := env[name]; found {
			return t, nil
		}
	}
	base, err := c.infer(x.X, env)
	if err != nil {
		return nil, err
	}
	switch t := base.(type) {
	case types.Pair:
		switch x.Field {
		case "left":
			return t.Left, nil
		case "right":
			return t.Right, nil
		}
		return nil, fmt.Errorf("Pair has no member %q", x.Field)
	case types.Map:
		return t.Value, nil
	case types.Base:
		if types.IsAny(t) {
			return types.Any(), nil
		}
	}
	return nil, fmt.Errorf("cannot select %q from %s", x.Field, base)
}

func selectName(x *syntax.Select) (string, bool) {
	switch b := x.X.(type) {
	case *syntax.Ident:
		return b.Name + "." + x.Field, true
	case *syntax.Select:
		if prefix, ok := selectName(b); ok {
			return prefix + "." + x.Field, true
		}
	}
	return "", false
}

func (c *checker) inferBinary(x *syntax.Binary, env typeEnv) (types.Type, error) {
	lt, err := c.infer(x.Left, env)
	if err != nil {
		return nil, err
	}
	rt, err := c.infer(x.Right, env)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "&&", "||":
		for _, t := range []types.Type{lt, rt} {
			if !t.CoercibleTo(types.Boolean(), c.opts.CheckQuant) {
				return nil, fmt.Errorf("operand of %s is %s, not Boolean", x.Op, t)
			}
		}
		return types.Boolean(), nil
	case "==", "!=", "<", "<=", ">", ">=":
		return types.Boolean(), nil
	case "+":
		if types.IsString(lt) || types.IsString(rt) || types.IsFile(lt) || types.IsFile(rt) {
			return types.String(), nil
		}
		fallthrough
	case "-", "*", "/", "%":
		if types.IsAny(lt) || types.IsAny(rt) {
			return types.Any(), nil
		}
		if !types.IsNumeric(lt) || !types.IsNumeric(rt) {
			return nil, fmt.Errorf("operands of %s are %s and %s", x.Op, lt, rt)
		}
		if types.IsFloat(lt) || types.IsFloat(rt) {
			return types.Float(), nil
		}
		return types.Int(), nil
	}
	return nil, fmt.Errorf("unknown operator %q", x.Op)
}

func (c *checker) inferApply(x *syntax.Apply, env typeEnv) (types.Type, error) {
	argTypes := make([]types.Type, len(x.Args))
	for i, a := range x.Args {
		t, err := c.infer(a, env)
		if err != nil {
			if x.Func == "defined" || x.Func == "select_first" {
				argTypes[i] = types.Any()
				continue
			}
			return nil, err
		}
		argTypes[i] = t
	}

	arity := func(n int) error {
		if len(x.Args) != n {
			return fmt.Errorf("%s expects %d argument(s), found %d", x.Func, n, len(x.Args))
		}
		return nil
	}

	switch x.Func {
	case "length":
		return types.Int(), arity(1)
	case "range":
		return types.ArrayOf(types.Int()), arity(1)
	case "defined":
		return types.Boolean(), arity(1)
	case "floor", "ceil", "round":
		return types.Int(), arity(1)
	case "size":
		if len(x.Args) != 1 && len(x.Args) != 2 {
			return nil, fmt.Errorf("size expects 1 or 2 arguments")
		}
		return types.Float(), nil
	case "basename":
		if len(x.Args) != 1 && len(x.Args) != 2 {
			return nil, fmt.Errorf("basename expects 1 or 2 arguments")
		}
		return types.String(), nil
	case "sub":
		return types.String(), arity(3)
	case "sep":
		return types.String(), arity(2)
	case "stdout", "stderr":
		return types.File(), arity(0)
	case "read_string":
		return types.String(), arity(1)
	case "read_int":
		return types.Int(), arity(1)
	case "read_float":
		return types.Float(), arity(1)
	case "read_boolean":
		return types.Boolean(), arity(1)
	case "read_lines":
		return types.ArrayOf(types.String()), arity(1)
	case "read_json":
		return types.Any(), arity(1)
	case "write_lines":
		return types.File(), arity(1)
	case "flatten":
		if err := arity(1); err != nil {
			return nil, err
		}
		if arr, ok := argTypes[0].(types.Array); ok {
			if inner, ok := arr.Item.(types.Array); ok {
				return types.ArrayOf(inner.Item), nil
			}
			if types.IsAny(arr.Item) {
				return types.ArrayOf(types.Any()), nil
			}
			return nil, fmt.Errorf("flatten expects Array[Array[X]], found %s", argTypes[0])
		}
		if types.IsAny(argTypes[0]) {
			return types.ArrayOf(types.Any()), nil
		}
		return nil, fmt.Errorf("flatten expects Array[Array[X]], found %s", argTypes[0])
	case "select_first":
		if err := arity(1); err != nil {
			return nil, err
		}
		if arr, ok := argTypes[0].(types.Array); ok {
			return arr.Item.WithOptional(false), nil
		}
		return types.Any(), nil
	case "select_all":
		if err := arity(1); err != nil {
			return nil, err
		}
		if arr, ok := argTypes[0].(types.Array); ok {
			return types.ArrayOf(arr.Item.WithOptional(false)), nil
		}
		return types.ArrayOf(types.Any()), nil
	case "zip":
		if err := arity(2); err != nil {
			return nil, err
		}
		at, aok := argTypes[0].(types.Array)
		bt, bok := argTypes[1].(types.Array)
		if !aok || !bok {
			return nil, fmt.Errorf("zip expects two Arrays")
		}
		return types.ArrayOf(types.PairOf(at.Item, bt.Item)), nil
	}
	return nil, fmt.Errorf("unknown function %q", x.Func)
}

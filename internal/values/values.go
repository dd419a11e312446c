// Package values implements runtime values for the workflow language and
// their conversion to and from Cromwell-style JSON.
package values

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shahbajlive/flowrun/internal/types"
)

// Value is a runtime value.
type Value interface {
	// Type returns the value's type.
	Type() types.Type

	// JSON returns the value in a form encoding/json can marshal.
	JSON() any

	// String renders the value for command-template interpolation.
	String() string
}

// Null is the absent optional value.
type Null struct{}

func (Null) Type() types.Type { return types.Any() }
func (Null) JSON() any        { return nil }
func (Null) String() string   { return "" }

// Boolean is a Boolean value.
type Boolean struct{ Value bool }

func (v Boolean) Type() types.Type { return types.Boolean() }
func (v Boolean) JSON() any        { return v.Value }
func (v Boolean) String() string   { return strconv.FormatBool(v.Value) }

// Int is an Int value.
type Int struct{ Value int64 }

func (v Int) Type() types.Type { return types.Int() }
func (v Int) JSON() any        { return v.Value }
func (v Int) String() string   { return strconv.FormatInt(v.Value, 10) }

// Float is a Float value.
type Float struct{ Value float64 }

func (v Float) Type() types.Type { return types.Float() }
func (v Float) JSON() any        { return v.Value }
func (v Float) String() string   { return strconv.FormatFloat(v.Value, 'f', 6, 64) }

// String_ is a String value. The trailing underscore avoids colliding with
// the method name required by the Value interface.
type String_ struct{ Value string }

func (v String_) Type() types.Type { return types.String() }
func (v String_) JSON() any        { return v.Value }
func (v String_) String() string   { return v.Value }

// File is a File value holding a path or URI.
type File struct{ Path string }

func (v File) Type() types.Type { return types.File() }
func (v File) JSON() any        { return v.Path }
func (v File) String() string   { return v.Path }

// Array is an Array value.
type Array struct {
	ItemType types.Type
	Items    []Value
}

func (v Array) Type() types.Type {
	it := v.ItemType
	if it == nil {
		it = types.Any()
	}
	return types.ArrayOf(it)
}

func (v Array) JSON() any {
	out := make([]any, len(v.Items))
	for i, item := range v.Items {
		out[i] = item.JSON()
	}
	return out
}

func (v Array) String() string {
	parts := make([]string, len(v.Items))
	for i, item := range v.Items {
		parts[i] = item.String()
	}
	return strings.Join(parts, " ")
}

// Map is a Map value with insertion-ordered keys.
type Map struct {
	KeyType   types.Type
	ValueType types.Type
	Keys      []Value
	Values    []Value
}

func (v Map) Type() types.Type {
	kt, vt := v.KeyType, v.ValueType
	if kt == nil {
		kt = types.Any()
	}
	if vt == nil {
		vt = types.Any()
	}
	return types.MapOf(kt, vt)
}

func (v Map) JSON() any {
	out := make(map[string]any, len(v.Keys))
	for i, k := range v.Keys {
		out[k.String()] = v.Values[i].JSON()
	}
	return out
}

func (v Map) String() string {
	parts := make([]string, len(v.Keys))
	for i, k := range v.Keys {
		parts[i] = k.String() + ":" + v.Values[i].String()
	}
	return strings.Join(parts, " ")
}

// Get returns the value bound to the given key.
func (v Map) Get(key Value) (Value, bool) {
	for i, k := range v.Keys {
		if k.String() == key.String() {
			return v.Values[i], true
		}
	}
	return nil, false
}

// Pair is a Pair value.
type Pair struct {
	Left  Value
	Right Value
}

func (v Pair) Type() types.Type { return types.PairOf(v.Left.Type(), v.Right.Type()) }

func (v Pair) JSON() any {
	return map[string]any{"left": v.Left.JSON(), "right": v.Right.JSON()}
}

func (v Pair) String() string { return v.Left.String() + " " + v.Right.String() }

// IsNull reports whether v is the null value.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}

// Coerce converts v to type ty, returning an error when the conversion is
// not possible. Runtime coercion is always strict about null: a null can
// only coerce to an optional type.
func Coerce(v Value, ty types.Type) (Value, error) {
	if IsNull(v) {
		if ty.Optional() || types.IsAny(ty) {
			return Null{}, nil
		}
		return nil, fmt.Errorf("null value where non-optional %s required", ty)
	}
	switch t := ty.(type) {
	case types.Base:
		return coerceBase(v, t)
	case types.Array:
		arr, ok := v.(Array)
		if !ok {
			return nil, coerceErr(v, ty)
		}
		if t.NonEmpty && len(arr.Items) == 0 {
			return nil, fmt.Errorf("empty array where nonempty %s required", ty)
		}
		items := make([]Value, len(arr.Items))
		for i, item := range arr.Items {
			c, err := Coerce(item, t.Item)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return Array{ItemType: t.Item, Items: items}, nil
	case types.Map:
		m, ok := v.(Map)
		if !ok {
			return nil, coerceErr(v, ty)
		}
		keys := make([]Value, len(m.Keys))
		vals := make([]Value, len(m.Values))
		for i := range m.Keys {
			k, err := Coerce(m.Keys[i], t.Key)
			if err != nil {
				return nil, err
			}
			val, err := Coerce(m.Values[i], t.Value)
			if err != nil {
				return nil, err
			}
			keys[i], vals[i] = k, val
		}
		return Map{KeyType: t.Key, ValueType: t.Value, Keys: keys, Values: vals}, nil
	case types.Pair:
		p, ok := v.(Pair)
		if !ok {
			return nil, coerceErr(v, ty)
		}
		l, err := Coerce(p.Left, t.Left)
		if err != nil {
			return nil, err
		}
		r, err := Coerce(p.Right, t.Right)
		if err != nil {
			return nil, err
		}
		return Pair{Left: l, Right: r}, nil
	}
	return nil, coerceErr(v, ty)
}

func coerceBase(v Value, t types.Base) (Value, error) {
	if types.IsAny(t) {
		return v, nil
	}
	switch x := v.(type) {
	case Boolean:
		if types.IsBoolean(t) {
			return x, nil
		}
		if types.IsString(t) {
			return String_{Value: x.String()}, nil
		}
	case Int:
		if types.IsInt(t) {
			return x, nil
		}
		if types.IsFloat(t) {
			return Float{Value: float64(x.Value)}, nil
		}
		if types.IsString(t) {
			return String_{Value: x.String()}, nil
		}
	case Float:
		if types.IsFloat(t) {
			return x, nil
		}
		if types.IsString(t) {
			return String_{Value: x.String()}, nil
		}
	case String_:
		if types.IsString(t) {
			return x, nil
		}
		if types.IsFile(t) {
			return File{Path: x.Value}, nil
		}
	case File:
		if types.IsFile(t) {
			return x, nil
		}
		if types.IsString(t) {
			return String_{Value: x.Path}, nil
		}
	}
	return nil, coerceErr(v, t)
}

func coerceErr(v Value, ty types.Type) error {
	return fmt.Errorf("cannot coerce %s to %s", v.Type(), ty)
}

// FromJSON converts a JSON-decoded value (from encoding/json with default
// decoding, so numbers are float64) to a Value of the given type.
func FromJSON(ty types.Type, j any) (Value, error) {
	if j == nil {
		if ty.Optional() || types.IsAny(ty) {
			return Null{}, nil
		}
		return nil, &InputError{Msg: fmt.Sprintf("null where non-optional %s required", ty)}
	}
	switch t := ty.(type) {
	case types.Base:
		return fromJSONBase(t, j)
	case types.Array:
		arr, ok := j.([]any)
		if !ok {
			return nil, &InputError{Msg: fmt.Sprintf("expected JSON array for %s", ty)}
		}
		if t.NonEmpty && len(arr) == 0 {
			return nil, &InputError{Msg: fmt.Sprintf("empty array for nonempty %s", ty)}
		}
		items := make([]Value, len(arr))
		for i, it := range arr {
			v, err := FromJSON(t.Item, it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return Array{ItemType: t.Item, Items: items}, nil
	case types.Map:
		m, ok := j.(map[string]any)
		if !ok {
			return nil, &InputError{Msg: fmt.Sprintf("expected JSON object for %s", ty)}
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		mv := Map{KeyType: t.Key, ValueType: t.Value}
		for _, k := range keys {
			kv, err := FromJSON(t.Key, k)
			if err != nil {
				return nil, err
			}
			vv, err := FromJSON(t.Value, m[k])
			if err != nil {
				return nil, err
			}
			mv.Keys = append(mv.Keys, kv)
			mv.Values = append(mv.Values, vv)
		}
		return mv, nil
	case types.Pair:
		m, ok := j.(map[string]any)
		if !ok {
			return nil, &InputError{Msg: fmt.Sprintf("expected JSON object with left/right for %s", ty)}
		}
		l, err := FromJSON(t.Left, m["left"])
		if err != nil {
			return nil, err
		}
		r, err := FromJSON(t.Right, m["right"])
		if err != nil {
			return nil, err
		}
		return Pair{Left: l, Right: r}, nil
	}
	return nil, &InputError{Msg: fmt.Sprintf("unsupported input type %s", ty)}
}

func fromJSONBase(t types.Base, j any) (Value, error) {
	switch x := j.(type) {
	case bool:
		if types.IsBoolean(t) || types.IsAny(t) {
			return Boolean{Value: x}, nil
		}
	case float64:
		switch {
		case types.IsInt(t):
			if x != float64(int64(x)) {
				return nil, &InputError{Msg: fmt.Sprintf("non-integer %v for Int", x)}
			}
			return Int{Value: int64(x)}, nil
		case types.IsFloat(t):
			return Float{Value: x}, nil
		case types.IsAny(t):
			if x == float64(int64(x)) {
				return Int{Value: int64(x)}, nil
			}
			return Float{Value: x}, nil
		}
	case string:
		switch {
		case types.IsString(t) || types.IsAny(t):
			return String_{Value: x}, nil
		case types.IsFile(t):
			return File{Path: x}, nil
		}
	case []any:
		if types.IsAny(t) {
			items := make([]Value, len(x))
			for i, it := range x {
				v, err := FromJSON(types.Any(), it)
				if err != nil {
					return nil, err
				}
				items[i] = v
			}
			return Array{ItemType: types.Any(), Items: items}, nil
		}
	case map[string]any:
		if types.IsAny(t) {
			return FromJSON(types.MapOf(types.String(), types.Any()), x)
		}
	}
	return nil, &InputError{Msg: fmt.Sprintf("JSON value %v does not match %s", j, t)}
}

// InputError reports invalid or missing run inputs.
type InputError struct{ Msg string }

func (e *InputError) Error() string { return e.Msg }

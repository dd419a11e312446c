package eval

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/types"
	"github.com/shahbajlive/flowrun/internal/values"
)

// maxReadFileSize bounds files consumed by the read_* functions.
const maxReadFileSize = 64 << 20

func applyFunc(x *syntax.Apply, env values.Bindings, lib *Stdlib) (values.Value, error) {
	args := make([]values.Value, len(x.Args))
	for i, a := range x.Args {
		// defined() tolerates unbound identifiers; everything else
		// evaluates eagerly (optionals are pre-bound to null, so
		// select_first never sees an unbound name).
		v, err := Eval(a, env, lib)
		if err != nil {
			if x.Func == "defined" {
				args[i] = values.Null{}
				continue
			}
			return nil, err
		}
		args[i] = v
	}

	switch x.Func {
	case "length":
		arr, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		return values.Int{Value: int64(len(arr.Items))}, nil

	case "flatten":
		arr, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		var out []values.Value
		itemType := types.Any()
		for _, item := range arr.Items {
			inner, ok := item.(values.Array)
			if !ok {
				return nil, errAt(x.Pos(), "flatten expects Array[Array[X]], found element %s", item.Type())
			}
			out = append(out, inner.Items...)
		}
		if at, ok := arr.ItemType.(types.Array); ok {
			return values.Array{ItemType: at.Item, Items: out}, nil
		}
		return values.Array{ItemType: itemType, Items: out}, nil

	case "range":
		n, err := argInt(x, args, 0)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errAt(x.Pos(), "range argument must be nonnegative")
		}
		items := make([]values.Value, n)
		for i := range items {
			items[i] = values.Int{Value: int64(i)}
		}
		return values.Array{ItemType: types.Int(), Items: items}, nil

	case "select_first":
		arr, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		for _, item := range arr.Items {
			if !values.IsNull(item) {
				return item, nil
			}
		}
		return nil, errAt(x.Pos(), "select_first: all values are null")

	case "select_all":
		arr, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		var out []values.Value
		for _, item := range arr.Items {
			if !values.IsNull(item) {
				out = append(out, item)
			}
		}
		return values.Array{ItemType: arr.ItemType.WithOptional(false), Items: out}, nil

	case "defined":
		if err := argCount(x, args, 1); err != nil {
			return nil, err
		}
		return values.Boolean{Value: !values.IsNull(args[0])}, nil

	case "zip":
		a, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argArray(x, args, 1)
		if err != nil {
			return nil, err
		}
		if len(a.Items) != len(b.Items) {
			return nil, errAt(x.Pos(), "zip: arrays have different lengths (%d, %d)", len(a.Items), len(b.Items))
		}
		items := make([]values.Value, len(a.Items))
		for i := range items {
			items[i] = values.Pair{Left: a.Items[i], Right: b.Items[i]}
		}
		return values.Array{ItemType: types.PairOf(a.ItemType, b.ItemType), Items: items}, nil

	case "basename":
		s, err := argString(x, args, 0)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(s)
		if len(args) == 2 {
			suffix, err := argString(x, args, 1)
			if err != nil {
				return nil, err
			}
			base = strings.TrimSuffix(base, suffix)
		}
		return values.String_{Value: base}, nil

	case "sub":
		if err := argCount(x, args, 3); err != nil {
			return nil, err
		}
		input, err := argString(x, args, 0)
		if err != nil {
			return nil, err
		}
		pattern, err := argString(x, args, 1)
		if err != nil {
			return nil, err
		}
		replace, err := argString(x, args, 2)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errAt(x.Pos(), "sub: invalid pattern: %v", err)
		}
		return values.String_{Value: re.ReplaceAllString(input, replace)}, nil

	case "sep":
		if err := argCount(x, args, 2); err != nil {
			return nil, err
		}
		sep, err := argString(x, args, 0)
		if err != nil {
			return nil, err
		}
		arr, err := argArray(x, args, 1)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(arr.Items))
		for i, item := range arr.Items {
			parts[i] = item.String()
		}
		return values.String_{Value: strings.Join(parts, sep)}, nil

	case "floor", "ceil", "round":
		f, err := argFloat(x, args, 0)
		if err != nil {
			return nil, err
		}
		switch x.Func {
		case "floor":
			return values.Int{Value: int64(math.Floor(f))}, nil
		case "ceil":
			return values.Int{Value: int64(math.Ceil(f))}, nil
		default:
			return values.Int{Value: int64(math.Round(f))}, nil
		}

	case "size":
		return stdlibSize(x, args, lib)

	case "stdout":
		if lib.Stdout == "" {
			return nil, errAt(x.Pos(), "stdout() is only available in task outputs")
		}
		return values.File{Path: lib.Stdout}, nil

	case "stderr":
		if lib.Stderr == "" {
			return nil, errAt(x.Pos(), "stderr() is only available in task outputs")
		}
		return values.File{Path: lib.Stderr}, nil

	case "read_string":
		data, err := readFileArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		return values.String_{Value: strings.TrimRight(string(data), "\n")}, nil

	case "read_int":
		data, err := readFileArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		n, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if perr != nil {
			return nil, errAt(x.Pos(), "read_int: %v", perr)
		}
		return values.Int{Value: n}, nil

	case "read_float":
		data, err := readFileArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		f, perr := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if perr != nil {
			return nil, errAt(x.Pos(), "read_float: %v", perr)
		}
		return values.Float{Value: f}, nil

	case "read_boolean":
		data, err := readFileArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(string(data))) {
		case "true":
			return values.Boolean{Value: true}, nil
		case "false":
			return values.Boolean{Value: false}, nil
		}
		return nil, errAt(x.Pos(), "read_boolean: file does not contain true or false")

	case "read_lines":
		path, err := filePathArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		return readLines(x, path)

	case "read_json":
		data, err := readFileArg(x, args, lib)
		if err != nil {
			return nil, err
		}
		var j any
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, errAt(x.Pos(), "read_json: %v", err)
		}
		v, err := values.FromJSON(types.Any(), j)
		if err != nil {
			return nil, errAt(x.Pos(), "read_json: %v", err)
		}
		return v, nil

	case "write_lines":
		arr, err := argArray(x, args, 0)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, item := range arr.Items {
			sb.WriteString(item.String())
			sb.WriteByte('\n')
		}
		f, err := os.CreateTemp(lib.WorkDir, "write_lines_*.txt")
		if err != nil {
			return nil, errAt(x.Pos(), "write_lines: %v", err)
		}
		defer f.Close()
		if _, err := f.WriteString(sb.String()); err != nil {
			return nil, errAt(x.Pos(), "write_lines: %v", err)
		}
		return values.File{Path: f.Name()}, nil
	}

	return nil, errAt(x.Pos(), "unknown function %q", x.Func)
}

func stdlibSize(x *syntax.Apply, args []values.Value, lib *Stdlib) (values.Value, error) {
	path, err := filePathArg(x, args, lib)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errAt(x.Pos(), "size: %v", err)
	}
	sz := float64(info.Size())
	if len(args) == 2 {
		unit, err := argString(x, args, 1)
		if err != nil {
			return nil, err
		}
		div, ok := sizeUnits[strings.ToUpper(unit)]
		if !ok {
			return nil, errAt(x.Pos(), "size: unknown unit %q", unit)
		}
		sz /= div
	}
	return values.Float{Value: sz}, nil
}

var sizeUnits = map[string]float64{
	"B":  1,
	"K":  1e3,
	"KB": 1e3,
	"M":  1e6,
	"MB": 1e6,
	"G":  1e9,
	"GB": 1e9,
	"KI": 1 << 10, "KIB": 1 << 10,
	"MI": 1 << 20, "MIB": 1 << 20,
	"GI": 1 << 30, "GIB": 1 << 30,
}

func readLines(x *syntax.Apply, path string) (values.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errAt(x.Pos(), "read_lines: %v", err)
	}
	defer f.Close()
	var items []values.Value
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		items = append(items, values.String_{Value: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		return nil, errAt(x.Pos(), "read_lines: %v", err)
	}
	return values.Array{ItemType: types.String(), Items: items}, nil
}

func (lib *Stdlib) resolve(path string) string {
	if filepath.IsAbs(path) || lib.WorkDir == "" {
		return path
	}
	return filepath.Join(lib.WorkDir, path)
}

func filePathArg(x *syntax.Apply, args []values.Value, lib *Stdlib) (string, error) {
	if len(args) < 1 {
		return "", errAt(x.Pos(), "%s expects a File argument", x.Func)
	}
	switch v := args[0].(type) {
	case values.File:
		return lib.resolve(v.Path), nil
	case values.String_:
		return lib.resolve(v.Value), nil
	}
	return "", errAt(x.Pos(), "%s expects a File argument, found %s", x.Func, args[0].Type())
}

func readFileArg(x *syntax.Apply, args []values.Value, lib *Stdlib) ([]byte, error) {
	path, err := filePathArg(x, args, lib)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errAt(x.Pos(), "%s: %v", x.Func, err)
	}
	if info.Size() > maxReadFileSize {
		return nil, errAt(x.Pos(), "%s: file exceeds %d bytes", x.Func, maxReadFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errAt(x.Pos(), "%s: %v", x.Func, err)
	}
	return data, nil
}

func argCount(x *syntax.Apply, args []values.Value, n int) error {
	if len(args) != n {
		return errAt(x.Pos(), "%s expects %d argument(s), found %d", x.Func, n, len(args))
	}
	return nil
}

func argArray(x *syntax.Apply, args []values.Value, i int) (values.Array, error) {
	if i >= len(args) {
		return values.Array{}, errAt(x.Pos(), "%s: missing argument %d", x.Func, i+1)
	}
	arr, ok := args[i].(values.Array)
	if !ok {
		return values.Array{}, errAt(x.Pos(), "%s: argument %d is %s, not an Array", x.Func, i+1, args[i].Type())
	}
	return arr, nil
}

func argInt(x *syntax.Apply, args []values.Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, errAt(x.Pos(), "%s: missing argument %d", x.Func, i+1)
	}
	n, ok := args[i].(values.Int)
	if !ok {
		return 0, errAt(x.Pos(), "%s: argument %d is %s, not Int", x.Func, i+1, args[i].Type())
	}
	return n.Value, nil
}

func argFloat(x *syntax.Apply, args []values.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, errAt(x.Pos(), "%s: missing argument %d", x.Func, i+1)
	}
	switch n := args[i].(type) {
	case values.Int:
		return float64(n.Value), nil
	case values.Float:
		return n.Value, nil
	}
	return 0, errAt(x.Pos(), "%s: argument %d is %s, not numeric", x.Func, i+1, args[i].Type())
}

func argString(x *syntax.Apply, args []values.Value, i int) (string, error) {
	if i >= len(args) {
		return "", errAt(x.Pos(), "%s: missing argument %d", x.Func, i+1)
	}
	switch v := args[i].(type) {
	case values.String_:
		return v.Value, nil
	case values.File:
		return v.Path, nil
	}
	return "", errAt(x.Pos(), "%s: argument %d is %s, not String", x.Func, i+1, args[i].Type())
}

package values

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shahbajlive/flowrun/internal/types"
)

// Binding is one name/value entry of an environment.
type Binding struct {
	Name  string
	Value Value
}

// Bindings is an ordered name -> value environment. Names may be dotted
// (call.output). The zero value is an empty environment; Bind returns a new
// environment, leaving the receiver untouched.
type Bindings struct {
	items []Binding
}

// Bind returns a copy of b with name bound to v. An existing binding of the
// same name is replaced in place.
func (b Bindings) Bind(name string, v Value) Bindings {
	items := make([]Binding, len(b.items), len(b.items)+1)
	copy(items, b.items)
	for i := range items {
		if items[i].Name == name {
			items[i].Value = v
			return Bindings{items: items}
		}
	}
	return Bindings{items: append(items, Binding{Name: name, Value: v})}
}

// Get returns the value bound to name.
func (b Bindings) Get(name string) (Value, bool) {
	for _, it := range b.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is bound.
func (b Bindings) Has(name string) bool {
	_, ok := b.Get(name)
	return ok
}

// Names returns the bound names in insertion order.
func (b Bindings) Names() []string {
	names := make([]string, len(b.items))
	for i, it := range b.items {
		names[i] = it.Name
	}
	return names
}

// Len returns the number of bindings.
func (b Bindings) Len() int { return len(b.items) }

// All returns the bindings in insertion order.
func (b Bindings) All() []Binding { return b.items }

// Merge returns b with every binding of other applied on top.
func (b Bindings) Merge(other Bindings) Bindings {
	out := b
	for _, it := range other.items {
		out = out.Bind(it.Name, it.Value)
	}
	return out
}

// BindingsFromJSON builds an environment from a Cromwell-style input JSON
// object given the available input declarations of the run target.
//
// Keys may carry a namespace prefix (the workflow name); keys beginning
// with "#" are comments and skipped; a <call>.<subworkflow>.<input> key is
// simplified to <call>.<input> when the full form is unknown. Unknown keys
// fail, and after binding, any name in required that was not bound fails
// with the full missing list.
func BindingsFromJSON(j map[string]any, available map[string]types.Type, required []string, namespace string) (Bindings, error) {
	if namespace != "" && !strings.HasSuffix(namespace, ".") {
		namespace += "."
	}
	var b Bindings
	// Iterate in sorted order for deterministic error reporting.
	keys := make([]string, 0, len(j))
	for k := range j {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.HasPrefix(key, "#") {
			continue
		}
		name := key
		if namespace != "" && strings.HasPrefix(name, namespace) {
			name = name[len(namespace):]
		}
		ty, ok := available[name]
		if !ok {
			// Attempt to simplify <call>.<subworkflow>.<input>.
			parts := strings.Split(name, ".")
			if len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "" {
				simplified := parts[0] + "." + parts[2]
				if ty, ok = available[simplified]; ok {
					name = simplified
				}
			}
		}
		if !ok {
			return Bindings{}, &InputError{Msg: "unknown input/output: " + key}
		}
		v, err := FromJSON(ty, j[key])
		if err != nil {
			return Bindings{}, fmt.Errorf("input %s: %w", key, err)
		}
		b = b.Bind(name, v)
	}
	var missing []string
	for _, name := range required {
		if !b.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Bindings{}, &InputError{Msg: "missing required inputs/outputs: " + strings.Join(missing, ", ")}
	}
	return b, nil
}

// ToJSON converts an environment to a Cromwell-style JSON object, each key
// prefixed with the namespace (typically the workflow name).
func ToJSON(b Bindings, namespace string) map[string]any {
	if namespace != "" && !strings.HasSuffix(namespace, ".") {
		namespace += "."
	}
	out := make(map[string]any, b.Len())
	for _, it := range b.All() {
		out[namespace+it.Name] = it.Value.JSON()
	}
	return out
}

package runtime

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseRuntimeDefaults interprets the --runtime-defaults argument: either an
// inline JSON/YAML object or the path of a file holding one. The resulting
// map overlays task runtime sections for keys they leave unset.
func ParseRuntimeDefaults(arg string) (map[string]any, error) {
	if arg == "" {
		return nil, nil
	}
	text := arg
	trimmed := strings.TrimSpace(arg)
	if !strings.HasPrefix(trimmed, "{") {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read runtime defaults: %w", err)
		}
		text = string(data)
	}
	var out map[string]any
	// YAML is a superset of JSON, so one decoder covers both forms.
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse runtime defaults: %w", err)
	}
	return out, nil
}

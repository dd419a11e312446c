package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirmWriter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  ConfirmOptions
		want  bool
	}{
		{"yes", "y\n", ConfirmOptions{}, true},
		{"yes word", "yes\n", ConfirmOptions{}, true},
		{"uppercase", "Y\n", ConfirmOptions{}, true},
		{"no", "n\n", ConfirmOptions{}, false},
		{"garbage", "maybe\n", ConfirmOptions{}, false},
		{"empty defaults no", "\n", ConfirmOptions{}, false},
		{"empty defaults yes", "\n", ConfirmOptions{Default: true}, true},
		{"explicit no over default", "n\n", ConfirmOptions{Default: true}, false},
		{"eof without newline", "y", ConfirmOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := ConfirmWriter(&out, strings.NewReader(tt.input), "proceed?", tt.opts)
			if got != tt.want {
				t.Errorf("ConfirmWriter(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "proceed?") {
				t.Errorf("prompt missing from %q", out.String())
			}
		})
	}
}

func TestConfirmWriterHints(t *testing.T) {
	var out bytes.Buffer
	ConfirmWriter(&out, strings.NewReader("\n"), "delete?", ConfirmOptions{Destructive: true})
	if !strings.Contains(out.String(), "[y/N]") {
		t.Errorf("destructive hint = %q", out.String())
	}

	out.Reset()
	ConfirmWriter(&out, strings.NewReader("\n"), "keep?", ConfirmOptions{Default: true})
	if !strings.Contains(out.String(), "[Y/n]") {
		t.Errorf("default-yes hint = %q", out.String())
	}
}

// Package output defines the JSON response schemas of the CLI and helpers
// for styled terminal output.
package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// UseColor reports whether styled output should be emitted on stdout.
func UseColor() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Success renders s in the success style when color is enabled.
func Success(s string) string { return render(successStyle, s) }

// Error renders s in the error style when color is enabled.
func Error(s string) string { return render(errorStyle, s) }

// Warn renders s in the warning style when color is enabled.
func Warn(s string) string { return render(warnStyle, s) }

// Dim renders s in the subdued style when color is enabled.
func Dim(s string) string { return render(dimStyle, s) }

// Header renders s bold when color is enabled.
func Header(s string) string { return render(headerStyle, s) }

func render(style lipgloss.Style, s string) string {
	if !UseColor() {
		return s
	}
	return style.Render(s)
}

// Successf prints a styled line to stdout.
func Successf(format string, args ...any) {
	fmt.Println(Success(fmt.Sprintf(format, args...)))
}

// Errorf prints a styled line to stderr.
func Errorf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Error(fmt.Sprintf(format, args...)))
}

package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ConfirmOptions configures the confirm prompt behavior
type ConfirmOptions struct {
	// Destructive styles the prompt as a warning
	Destructive bool
	// Default sets whether Y or N is the default (true = Y, false = N)
	Default bool
}

// Confirm prompts the user for confirmation with styled output.
// Returns true if the user confirmed, false otherwise.
func Confirm(prompt string) bool {
	return ConfirmWriter(os.Stdout, os.Stdin, prompt, ConfirmOptions{})
}

// ConfirmDestructive prompts with warning styling, defaulting to N.
func ConfirmDestructive(prompt string) bool {
	return ConfirmWriter(os.Stdout, os.Stdin, prompt, ConfirmOptions{Destructive: true})
}

// ConfirmWriter prompts using the given writer and reader.
func ConfirmWriter(w io.Writer, r io.Reader, prompt string, opts ConfirmOptions) bool {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
	}

	icon := "?"
	iconStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("147")).Bold(true)
	if opts.Destructive {
		icon = "⚠"
		iconStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	}

	hint := "[y/N]"
	if opts.Default {
		hint = "[Y/n]"
	}

	if useColor {
		hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		fmt.Fprintf(w, "%s %s %s ", iconStyle.Render(icon), prompt, hintStyle.Render(hint))
	} else {
		fmt.Fprintf(w, "%s %s %s ", icon, prompt, hint)
	}

	reader := bufio.NewReader(r)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" {
		return opts.Default
	}
	return answer == "y" || answer == "yes"
}

// Package cli implements the flowrun command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
)

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool { return jsonOutput }

// NewRootCmd builds the flowrun command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowrun",
		Short: "Run workflow documents locally",
		Long: `flowrun executes workflow documents: it typechecks them, resolves the
dependency graph of their calls, runs task commands in containers (or as
local processes), and collects outputs as JSON.

Examples:
  flowrun check pipeline.wdl                # Validate a document
  flowrun inputs pipeline.wdl               # List available inputs
  flowrun run pipeline.wdl -i inputs.json   # Execute
  flowrun runs                              # Past runs
  flowrun serve                             # REST API + event stream`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			events.SetupLogger(verbose, jsonOutput)
		},
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newInputsCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		if IsJSONOutput() {
			output.PrintJSON(output.NewError(err.Error()))
		} else {
			fmt.Fprintln(os.Stderr, output.Error("error: ")+err.Error())
		}
		return 1
	}
	return 0
}

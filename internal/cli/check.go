package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/check"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/syntax"
	"github.com/shahbajlive/flowrun/internal/watcher"
)

func newCheckCmd() *cobra.Command {
	var noQuantCheck bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "check <document>...",
		Short: "Validate workflow documents",
		Long: `Parse and typecheck workflow documents, reporting every issue found.

Exits nonzero when any document has issues.

Examples:
  flowrun check pipeline.wdl
  flowrun check pipeline.wdl tasks.wdl --json
  flowrun check pipeline.wdl --no-quant-check
  flowrun check pipeline.wdl --watch       # Re-check on save`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := check.Options{CheckQuant: !noQuantCheck}
			if watch {
				return runCheckWatch(args, opts)
			}
			failed := 0
			for _, path := range args {
				resp := checkOne(path, opts)
				printCheck(resp)
				if !resp.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed validation", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noQuantCheck, "no-quant-check", false, "Relax static optional/nonempty type quantifier checks")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch the documents and re-check on change")
	return cmd
}

// checkOne validates a single document.
func checkOne(path string, opts check.Options) output.CheckResponse {
	resp := output.CheckResponse{
		TimestampedResponse: output.NewTimestamped(),
		Document:            path,
	}
	doc, err := check.Load(path, opts)
	if err != nil {
		resp.Issues = collectIssues(err)
		return resp
	}
	resp.OK = true
	resp.Version = doc.Version
	return resp
}

// collectIssues flattens a validation failure into reportable issues.
func collectIssues(err error) []output.CheckIssue {
	var list check.Errors
	if errors.As(err, &list) {
		var out []output.CheckIssue
		for _, e := range list {
			out = append(out, issueOf(e))
		}
		return out
	}
	return []output.CheckIssue{issueOf(err)}
}

func issueOf(err error) output.CheckIssue {
	issue := output.CheckIssue{Message: err.Error(), Severity: "error"}
	var synErr *syntax.SyntaxError
	var valErr *check.ValidationError
	switch {
	case errors.As(err, &synErr):
		issue.Pos = synErr.Pos.String()
		issue.Message = synErr.Msg
	case errors.As(err, &valErr):
		issue.Pos = valErr.Pos.String()
		issue.Message = valErr.Msg
	}
	return issue
}

func printCheck(resp output.CheckResponse) {
	if IsJSONOutput() {
		output.PrintJSON(resp)
		return
	}
	if resp.OK {
		fmt.Printf("%s %s (version %s)\n", output.Success("ok"), resp.Document, resp.Version)
		return
	}
	fmt.Printf("%s %s\n", output.Error("failed"), resp.Document)
	for _, issue := range resp.Issues {
		if issue.Pos != "" {
			fmt.Printf("  %s: %s\n", output.Dim(issue.Pos), issue.Message)
		} else {
			fmt.Printf("  %s\n", issue.Message)
		}
	}
}

// runCheckWatch re-validates documents whenever they change, until
// interrupted.
func runCheckWatch(paths []string, opts check.Options) error {
	ctx, cancel := signalContext()
	defer cancel()

	recheck := func(changed []string) {
		for _, path := range changed {
			printCheck(checkOne(path, opts))
		}
	}
	w, err := watcher.New(recheck, watcher.WithErrorHandler(func(err error) {
		output.Errorf("watch: %v", err)
	}))
	if err != nil {
		return err
	}
	defer w.Close()
	for _, path := range paths {
		if err := w.Add(path); err != nil {
			return err
		}
	}

	// Initial pass, then wait for changes.
	for _, path := range paths {
		printCheck(checkOne(path, opts))
	}
	if !IsJSONOutput() {
		fmt.Println(output.Dim("watching for changes, Ctrl+C to stop"))
	}
	<-ctx.Done()
	return nil
}

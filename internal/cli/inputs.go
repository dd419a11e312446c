package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/check"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/syntax"
)

func newInputsCmd() *cobra.Command {
	var target string
	var noQuantCheck bool

	cmd := &cobra.Command{
		Use:   "inputs <document>",
		Short: "List the available inputs of a run target",
		Long: `List the inputs a document's workflow (or task) accepts, with their
types and whether they are required. Names are the keys the run command's
input JSON uses, without the namespace prefix.

Examples:
  flowrun inputs pipeline.wdl
  flowrun inputs pipeline.wdl --target align
  flowrun inputs pipeline.wdl --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := check.Load(args[0], check.Options{CheckQuant: !noQuantCheck})
			if err != nil {
				return err
			}
			list, targetName, err := targetInputs(doc, target)
			if err != nil {
				return err
			}

			resp := output.InputsResponse{
				TimestampedResponse: output.NewTimestamped(),
				Document:            args[0],
				Target:              targetName,
				Inputs:              make([]output.InputEntry, 0, len(list)),
			}
			for _, in := range list {
				resp.Inputs = append(resp.Inputs, output.InputEntry{
					Name:     in.Name,
					Type:     in.Type.String(),
					Required: in.Required,
				})
			}
			if IsJSONOutput() {
				return output.PrintJSON(resp)
			}

			fmt.Println(output.Header(targetName))
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for _, in := range resp.Inputs {
				req := ""
				if in.Required {
					req = "required"
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\n", in.Name, in.Type, req)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Workflow or task to describe (default: the document's workflow)")
	cmd.Flags().BoolVar(&noQuantCheck, "no-quant-check", false, "Relax static optional/nonempty type quantifier checks")
	return cmd
}

// targetInputs resolves the named (or default) target and its input list.
func targetInputs(doc *syntax.Document, target string) ([]check.Input, string, error) {
	if target == "" {
		wf, task, err := doc.DefaultTarget()
		if err != nil {
			return nil, "", err
		}
		if wf != nil {
			return check.WorkflowInputs(doc, wf), wf.Name, nil
		}
		return check.TaskInputs(task), task.Name, nil
	}
	if doc.Workflow != nil && doc.Workflow.Name == target {
		return check.WorkflowInputs(doc, doc.Workflow), target, nil
	}
	if t := doc.Task(target); t != nil {
		return check.TaskInputs(t), target, nil
	}
	return nil, "", fmt.Errorf("no task or workflow named %q in %s", target, doc.URI)
}

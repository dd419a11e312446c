package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/config"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/state"
)

func newRunsCmd() *cobra.Command {
	var limit int
	var pruneArg string
	var yes bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past runs",
		Long: `List past runs recorded in the run database, newest first.

Examples:
  flowrun runs
  flowrun runs --limit 10
  flowrun runs --json
  flowrun runs --prune 720h        # Delete finished runs older than 30 days
  flowrun runs --prune 720h --yes  # Without confirmation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(state.DefaultPath(config.DataDir()))
			if err != nil {
				return err
			}
			defer store.Close()

			if pruneArg != "" {
				return runPrune(store, pruneArg, yes)
			}

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			resp := output.RunsResponse{
				TimestampedResponse: output.NewTimestamped(),
				Runs:                make([]output.RunListItem, 0, len(runs)),
				Count:               len(runs),
			}
			for _, run := range runs {
				resp.Runs = append(resp.Runs, output.RunListItem{
					ID:         run.ID,
					Target:     run.Target,
					Status:     string(run.Status),
					Dir:        run.Dir,
					StartedAt:  run.StartedAt,
					FinishedAt: run.FinishedAt,
					Error:      run.Error,
				})
			}
			if IsJSONOutput() {
				return output.PrintJSON(resp)
			}

			if len(resp.Runs) == 0 {
				fmt.Println(output.Dim("no runs recorded"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tTARGET\tID\tDIR")
			for _, run := range resp.Runs {
				status := run.Status
				switch status {
				case string(state.RunSucceeded):
					status = output.Success(status)
				case string(state.RunFailed):
					status = output.Error(status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					status, run.Target, shortRunID(run.ID), run.Dir)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Max runs to list (0 = all)")
	cmd.Flags().StringVar(&pruneArg, "prune", "", "Delete finished runs older than this duration (e.g. 720h)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the prune confirmation prompt")
	return cmd
}

func runPrune(store *state.Store, pruneArg string, yes bool) error {
	age, err := time.ParseDuration(pruneArg)
	if err != nil {
		return fmt.Errorf("invalid --prune duration: %w", err)
	}
	cutoff := time.Now().Add(-age)
	if !yes && !IsJSONOutput() && isInteractive() {
		prompt := fmt.Sprintf("Delete finished runs started before %s?", cutoff.Local().Format("2006-01-02 15:04"))
		if !output.ConfirmDestructive(prompt) {
			fmt.Println(output.Dim("cancelled"))
			return nil
		}
	}
	n, err := store.PruneRuns(cutoff)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return output.PrintJSON(map[string]any{"pruned": n})
	}
	output.Successf("pruned %d runs", n)
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

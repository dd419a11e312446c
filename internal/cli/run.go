package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/check"
	"github.com/shahbajlive/flowrun/internal/config"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/runtime"
	"github.com/shahbajlive/flowrun/internal/state"
	"github.com/shahbajlive/flowrun/internal/util"
)

func newRunCmd() *cobra.Command {
	var inputsArg string
	var target string
	var runDir string
	var runtimeDefaultsArg string
	var memoryMaxArg string
	var cpuMax int
	var noQuantCheck bool
	var noContainer bool

	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Execute a workflow or task",
		Long: `Execute a workflow document to completion and print its outputs.

Inputs are given Cromwell-style: a JSON object whose keys are
<workflow>.<input> (the namespace prefix is optional). The run directory
holds inputs.json, events.jsonl, per-task attempt directories, and
outputs.json on success.

Examples:
  flowrun run pipeline.wdl -i inputs.json
  flowrun run pipeline.wdl -i '{"main.samples": ["a", "b"]}'
  flowrun run pipeline.wdl --target align -i inputs.json
  flowrun run pipeline.wdl -i inputs.json --no-container
  flowrun run pipeline.wdl -i inputs.json --runtime-defaults '{"docker": "alpine:3"}'
  flowrun run pipeline.wdl -i inputs.json --runtime-cpu-max 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.LoadOrDefault()
			if err != nil {
				return err
			}

			doc, err := check.Load(args[0], check.Options{CheckQuant: !noQuantCheck})
			if err != nil {
				return err
			}

			inputs, err := readInputs(inputsArg)
			if err != nil {
				return err
			}
			runtimeDefaults, err := runtime.ParseRuntimeDefaults(runtimeDefaultsArg)
			if err != nil {
				return err
			}
			var memoryMax int64
			if memoryMaxArg != "" {
				memoryMax, err = util.ParseSize(memoryMaxArg)
				if err != nil {
					return fmt.Errorf("--runtime-memory-max: %w", err)
				}
			}

			store, err := state.Open(state.DefaultPath(config.DataDir()))
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := runtime.Run(ctx, runtime.Options{
				Doc:             doc,
				Target:          target,
				Inputs:          inputs,
				Cfg:             cfg,
				RuntimeDefaults: runtimeDefaults,
				MemoryMax:       memoryMax,
				CPUMax:          cpuMax,
				RunBase:         runDir,
				NoContainer:     noContainer,
				Store:           store,
			})
			if err != nil {
				return err
			}

			resp := output.RunResponse{
				Outputs: result.OutputsJSON,
				Dir:     result.Dir,
				RunID:   result.RunID,
			}
			if !IsJSONOutput() {
				output.Successf("run succeeded: %s", result.Dir)
			}
			return output.PrintJSON(resp)
		},
	}

	cmd.Flags().StringVarP(&inputsArg, "input", "i", "", "Input JSON: a file path, an inline object, or - for stdin")
	cmd.Flags().StringVar(&target, "target", "", "Workflow or task to run (default: the document's workflow)")
	cmd.Flags().StringVar(&runDir, "dir", "", "Base directory for the run directory (default: configured run base)")
	cmd.Flags().StringVar(&runtimeDefaultsArg, "runtime-defaults", "", "JSON/YAML object (or file) overlaying task runtime sections")
	cmd.Flags().StringVar(&memoryMaxArg, "runtime-memory-max", "", "Clamp per-task memory reservations (e.g. 8G)")
	cmd.Flags().IntVar(&cpuMax, "runtime-cpu-max", 0, "Clamp per-task cpu reservations")
	cmd.Flags().BoolVar(&noQuantCheck, "no-quant-check", false, "Relax static optional/nonempty type quantifier checks")
	cmd.Flags().BoolVar(&noContainer, "no-container", false, "Run task commands as local processes instead of containers")
	return cmd
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readInputs loads the -i argument: empty means no inputs, "-" reads
// stdin, a leading "{" is an inline object, anything else is a file path.
func readInputs(arg string) (map[string]any, error) {
	if arg == "" {
		return map[string]any{}, nil
	}
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(strings.TrimSpace(arg), "{"):
		data = []byte(arg)
	default:
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse inputs: %w", err)
	}
	return inputs, nil
}

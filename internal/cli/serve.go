package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shahbajlive/flowrun/internal/config"
	"github.com/shahbajlive/flowrun/internal/events"
	"github.com/shahbajlive/flowrun/internal/output"
	"github.com/shahbajlive/flowrun/internal/serve"
	"github.com/shahbajlive/flowrun/internal/state"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API and event stream",
		Long: `Serve a REST API over the run database plus a websocket stream of
live run events.

Routes:
  GET /healthz               Liveness
  GET /api/runs              Past runs (?limit=N)
  GET /api/runs/{id}         One run
  GET /api/runs/{id}/tasks   A run's task attempts
  GET /ws/events             Live event stream (websocket)

Events from runs started by other flowrun processes are picked up by
tailing their run journals under the configured run base.

Examples:
  flowrun serve
  flowrun serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.LoadOrDefault()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}

			store, err := state.Open(state.DefaultPath(config.DataDir()))
			if err != nil {
				return err
			}
			defer store.Close()

			bus := events.NewBus()
			follower := serve.NewJournalFollower(config.ExpandHome(cfg.RunBase), bus)
			go follower.Run(ctx)

			if !IsJSONOutput() {
				fmt.Printf("%s http://%s\n", output.Success("serving"), addr)
			}
			return serve.New(store, bus, addr).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: configured serve.addr)")
	return cmd
}

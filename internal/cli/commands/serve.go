package commands

import (
	"github.com/leapstack-labs/mapsource/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve source options over HTTP",
		Long: `Start an HTTP server exposing the source options resolver.

Endpoints:
  POST /api/fetch          start a fetch cycle
  GET  /api/state          current fetch state
  GET  /api/options        accepted options (?types=point,polygon&where=...)
  POST /api/source-nodes   create a source node for a picked option
  GET  /api/events         fetch-state stream (server-sent events)

With watching enabled, saving the workspace file reloads it and starts a
new fetch cycle.`,
		Example: `  mapsource serve --port 9000
  mapsource serve --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			srv, err := server.New(server.Config{
				Resolver:  cc.Resolver,
				Workspace: cc.Workspace,
				Port:      cc.Cfg.Server.Port,
				Watch:     cc.Cfg.Server.Watch,
				Logger:    cc.Logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on (default 8766)")
	cmd.Flags().Bool("watch", true, "Reload the workspace when it changes")

	return cmd
}

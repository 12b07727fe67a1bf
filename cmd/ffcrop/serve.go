package main

import (
	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/server"
)

func newServeCmd(global *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept crop runs over HTTP and stream their progress",
		Long: `Starts the job server. Runs are submitted with POST /api/runs and execute
one at a time; GET /api/runs lists them and GET /api/events streams state
changes over a websocket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global, func(cfg *config.Config) {
				if cmd.Flags().Changed("host") {
					cfg.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openJournal(); err != nil {
				return err
			}

			var store server.RunStore
			if a.store != nil {
				store = a.store
			}

			srv := server.New(a.log, a.pipeline, store, a.cfg.Server)
			a.pipeline.OnTransition(srv.Transition)

			notice(cmd, noticeInfo, "Job server listening on http://%s", srv.Addr())
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")

	return cmd
}

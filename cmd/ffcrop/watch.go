package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/watch"
)

func newWatchCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Crop every video dropped into a directory",
		Long: `Watches a directory and crops each new video once it has stopped growing.
Outputs carrying the configured suffix and ffcrop scratch files are ignored.
Files are processed one at a time until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate flags before watching anything
			if _, err := flags.options(""); err != nil {
				return err
			}

			a, err := newApp(global, flags.configOverride)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openJournal(); err != nil {
				return err
			}

			handler := func(ctx context.Context, path string) error {
				opts, _ := flags.options(path)
				res, err := a.pipeline.Run(ctx, opts)
				a.record(ctx, res)
				printResult(cmd, res)
				return err
			}

			w, err := watch.New(a.log, args[0], a.cfg.Watch, a.cfg.Output.Suffix, handler)
			if err != nil {
				return err
			}

			notice(cmd, noticeInfo, "Watching %s (ctrl-c to stop)", args[0])
			return w.Run(cmd.Context())
		},
	}

	flags.register(cmd)

	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// errAborted marks a command whose run already reported its own failure
var errAborted = errors.New("run aborted")

var (
	noticeOK   = color.New(color.FgGreen, color.Bold)
	noticeInfo = color.New(color.FgCyan)
	noticeWarn = color.New(color.FgYellow)
	noticeErr  = color.New(color.FgRed, color.Bold)
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ffcrop",
		Short: "Detect and remove black borders from videos with FFmpeg",
		Long: `ffcrop runs an FFmpeg cropdetect pass over a video, derives the crop
geometry and re-encodes the video without its letterbox or pillarbox bars.

Examples:
  ffcrop detect movie.mp4 --scan quick
  ffcrop crop movie.mp4
  ffcrop crop movie.mp4 --strategy accelerated --dry-run
  ffcrop watch /srv/incoming
  ffcrop serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML or JSON config file (env FFCROP_CONFIG)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newCropCmd(flags),
		newDetectCmd(flags),
		newProbeCmd(flags),
		newWatchCmd(flags),
		newHistoryCmd(flags),
		newServeCmd(flags),
	)

	return root
}

// execute runs root and maps the outcome to a process exit status:
// 0 when the command completed, 1 otherwise.
func execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !errors.Is(err, errAborted) {
		noticeErr.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return 1
}

func notice(cmd *cobra.Command, c *color.Color, format string, args ...interface{}) {
	c.Fprintln(cmd.OutOrStdout(), fmt.Sprintf(format, args...))
}

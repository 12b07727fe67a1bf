package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/cropdetect"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

func newDetectCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "detect <video>",
		Short: "Run the cropdetect pass and print the detected crop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			mode, err := cropdetect.ParseScanMode(flags.scan)
			if err != nil {
				return err
			}

			a, err := newApp(global, flags.configOverride)
			if err != nil {
				return err
			}
			defer a.close()

			scratch := pipeline.NewScratch(a.cfg.Detect.ScratchDir, input)
			defer scratch.Remove()

			outcome, err := a.detector.Detect(cmd.Context(), input, scratch.Path, mode)
			if err != nil {
				return err
			}

			if !outcome.Detected {
				notice(cmd, noticeInfo, "No black borders detected in %s", filepath.Base(input))
				return nil
			}

			box := outcome.Box
			notice(cmd, noticeOK, "%s", box.Filter)
			fmt.Fprintf(cmd.OutOrStdout(), "x1=%d y1=%d x2=%d y2=%d\n", box.X1, box.Y1, box.X2, box.Y2)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.scan, "scan", string(cropdetect.ScanBounded), "diagnostic scan: full, bounded or quick")
	cmd.Flags().StringVar(&flags.retention, "retention", "", "directive retention: last or mode (default from config)")

	return cmd
}

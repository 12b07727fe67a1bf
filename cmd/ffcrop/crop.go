package main

import (
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

type runFlags struct {
	strategy  string
	scan      string
	retention string
	output    string
	dryRun    bool
	overwrite bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.strategy, "strategy", string(pipeline.StrategySoftware), "crop strategy: software or accelerated")
	cmd.Flags().StringVar(&f.scan, "scan", string(cropdetect.ScanBounded), "diagnostic scan: full, bounded or quick")
	cmd.Flags().StringVar(&f.retention, "retention", "", "directive retention: last or mode (default from config)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "detect and resolve only, print the crop invocation")
	cmd.Flags().BoolVarP(&f.overwrite, "overwrite", "f", false, "replace the output file if it already exists")
}

// configOverride applies the flags that live in configuration
func (f *runFlags) configOverride(cfg *config.Config) {
	if f.retention != "" {
		cfg.Detect.Retention = f.retention
	}
}

// options converts the flags into pipeline options for input
func (f *runFlags) options(input string) (pipeline.Options, error) {
	strategy, err := pipeline.ParseStrategy(f.strategy)
	if err != nil {
		return pipeline.Options{}, err
	}
	scan, err := cropdetect.ParseScanMode(f.scan)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Input:     input,
		Output:    f.output,
		Strategy:  strategy,
		Scan:      scan,
		DryRun:    f.dryRun,
		Overwrite: f.overwrite,
	}, nil
}

func newCropCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "crop <video>",
		Short: "Remove the black borders of a video",
		Long: `Runs a cropdetect pass and, if borders were found, writes a cropped copy
next to the input (or to --output).

The software strategy crops with FFmpeg's crop filter. The accelerated strategy
crops in the NVIDIA decoder and needs the frame size, which is probed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
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

			res, err := a.pipeline.Run(cmd.Context(), opts)
			a.record(cmd.Context(), res)
			printResult(cmd, res)
			if err != nil {
				return errAborted
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output path (default <stem><suffix>.<ext> beside the input)")

	return cmd
}

// printResult reports how a run ended
func printResult(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()

	if res.State == pipeline.StateAborted {
		noticeErr.Fprintf(out, "✗ %s aborted: %v\n", res.Input, res.Err)
		if hint, ok := cErrors.GetDetails(res.Err)["hint"]; ok {
			noticeWarn.Fprintf(out, "  hint: %v\n", hint)
		}
		if tail, ok := cErrors.GetDetails(res.Err)["stderr"].(string); ok && tail != "" {
			writeIndented(out, tail)
		}
		return
	}

	if !res.Outcome.Detected {
		notice(cmd, noticeInfo, "No black borders detected in %s", res.Input)
		return
	}

	notice(cmd, noticeInfo, "Borders detected: %s", res.Outcome.Box.Filter)
	if res.Dimensions != nil && res.Margins != nil {
		notice(cmd, noticeInfo, "Frame %s, margins %s (top x bottom x left x right)", res.Dimensions, res.Margins.CropArg())
	}
	if res.Clamped {
		notice(cmd, noticeWarn, "Crop box exceeded the frame; negative margins were clamped to zero")
	}

	if res.DryRun {
		notice(cmd, noticeWarn, "Dry run: ffmpeg %s", strings.Join(res.Args, " "))
		return
	}

	notice(cmd, noticeOK, "✓ Cropped %s -> %s (%s)", res.Input, res.Output, res.Duration.Round(time.Millisecond))
}

func writeIndented(w io.Writer, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		io.WriteString(w, "    "+line+"\n")
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/cropdetect"
)

func newProbeCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <video>",
		Short: "Print the frame size of a video as WIDTHxHEIGHT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := a.runner.ProbeDimensions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dims, err := cropdetect.ParseDimensions(raw)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), dims.String())
			return nil
		},
	}
}

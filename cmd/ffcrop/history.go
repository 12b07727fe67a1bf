package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mantonx/ffcrop/internal/journal"
)

func newHistoryCmd(global *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer a.close()

			if !a.cfg.Journal.Enabled {
				notice(cmd, noticeWarn, "The journal is disabled")
				return nil
			}
			if err := a.openJournal(); err != nil {
				return err
			}

			runs, err := a.store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				notice(cmd, noticeInfo, "No runs recorded yet")
				return nil
			}

			printHistory(cmd, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func printHistory(cmd *cobra.Command, runs []journal.Run) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tSTRATEGY\tCROP\tINPUT")
	for _, run := range runs {
		crop := run.Filter
		if !run.Detected {
			crop = "-"
		}
		if run.Margins != "" {
			crop += " [" + run.Margins + "]"
		}
		state := run.State
		if run.DryRun {
			state += " (dry run)"
		}
		if run.ErrorType != "" {
			state += " " + run.ErrorType
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime), state, run.Strategy, crop, run.Input)
	}
	tw.Flush()
}

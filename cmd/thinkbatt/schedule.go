package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/client"
	"github.com/charlie0129/thinkbatt/pkg/daemon"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		GroupID: gAdvanced,
		Short:   "Show when the daemon re-applies the charge thresholds",
		Long: `Show the REAPPLY_THRESHOLDS_CRON schedule of the running daemon and its next run.

Edit the configuration file and reload the daemon to change the schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := newClient().GetSchedule()
			if err != nil {
				return err
			}
			printSchedule(cmd.OutOrStdout(), sched)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "skip",
		Short: "Skip the next threshold re-application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := newClient().SkipSchedule()
			if errors.Is(err, client.ErrNotFound) {
				cmd.Println("Threshold re-application is not scheduled.")
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Println("Next threshold re-application skipped.")
			printSchedule(cmd.OutOrStdout(), sched)
			return nil
		},
	})

	return cmd
}

func printSchedule(w io.Writer, sched *daemon.ScheduleResponse) {
	if sched.NextRun == nil {
		fmt.Fprintln(w, "Threshold re-application is not scheduled.")
		return
	}
	fmt.Fprintf(w, "Schedule: %s\n", bold("%s", sched.Cron))
	fmt.Fprintf(w, "Next run: %s\n", sched.NextRun.Local().Format(time.DateTime))
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/daemon"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

// errOutcome marks a command whose result was already printed.
var errOutcome = errors.New("operation did not succeed")

func NewSetChargeCommand() *cobra.Command {
	persist := false
	remote := false
	verbose := false

	cmd := &cobra.Command{
		Use:     "setcharge START STOP [BAT]",
		GroupID: gBasic,
		Short:   "Set charge thresholds",
		Long: `Set the start and stop charge thresholds of a battery.

START and STOP are percentages, or "default" for the vendor default. BAT is a
battery id such as BAT0 and defaults to the main battery.

ThinkPads accept START from 2 to 96 and STOP from 6 to 100, with STOP at least
4 above START. LG laptops only have a stop threshold of 80 or 100: START is
ignored.

Use --persist to also store the values in the configuration file.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := optionalArg(args, 2)
			if id == "" {
				id = battery.DefaultID
			}

			var res threshold.Result
			if remote {
				r, err := newClient().SetThresholds(id, daemon.ThresholdRequest{
					Start:   args[0],
					Stop:    args[1],
					Persist: persist,
				})
				if err != nil {
					return err
				}
				res = *r
			} else {
				r, err := setChargeLocal(id, args[0], args[1], persist)
				if err != nil {
					return err
				}
				res = r
			}

			printResult(cmd.OutOrStdout(), res, verbose)
			if res.Outcome.Failed() {
				return errOutcome
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "Store the thresholds in the configuration file")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running daemon instead of writing the hardware")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the result of every register")

	return cmd
}

func setChargeLocal(id, start, stop string, persist bool) (threshold.Result, error) {
	conf, err := loadConfig()
	if err != nil {
		return threshold.Result{}, err
	}
	b, err := detectBackend(conf)
	if err != nil {
		return threshold.Result{}, err
	}
	bat, err := resolveBattery(b, id)
	if err != nil {
		return threshold.Result{}, err
	}

	res := threshold.New(b).Write(bat, threshold.ParseRequest(start), threshold.ParseRequest(stop), threshold.Interactive)

	if persist && res.Outcome == threshold.Success {
		conf.SetChargeThreshold(battery.Start, bat.ID, start)
		conf.SetChargeThreshold(battery.Stop, bat.ID, stop)
		if err := conf.Save(); err != nil {
			return res, fmt.Errorf("thresholds applied but not saved: %w", err)
		}
		logrus.Infof("thresholds of %s saved to %s", bat.ID, configPath)
	}
	return res, nil
}

func printResult(w io.Writer, res threshold.Result, verbose bool) {
	prefix := res.Battery + ": "
	if res.Battery == "" {
		prefix = ""
	}

	switch {
	case res.Outcome == threshold.NotConfigured:
		if verbose {
			fmt.Fprintf(w, "%snot configured\n", prefix)
		}
		return
	case res.Outcome == threshold.Success:
		if res.Changed() == 0 {
			fmt.Fprintf(w, "%sthresholds unchanged %s\n", prefix, pairText(res))
		} else {
			fmt.Fprintf(w, "%sthresholds set %s\n", prefix, pairText(res))
		}
	case res.Outcome.Failed():
		msg := res.Outcome.String()
		if res.Message != "" {
			msg = res.Message
		}
		fmt.Fprintf(w, "%s%s\n", prefix, color.RedString("%s", msg))
		if res.LegalRange != "" {
			fmt.Fprintf(w, "  legal range: %s\n", res.LegalRange)
		}
	default:
		fmt.Fprintf(w, "%s%s\n", prefix, res.Outcome)
	}

	if !verbose && res.Outcome != threshold.WriteError && res.Outcome != threshold.DiscardedByFirmware {
		return
	}
	for _, r := range res.Registers {
		if r.Status == threshold.NotApplicable {
			continue
		}
		line := fmt.Sprintf("  %s: %d -> %d (%s)", r.Kind, r.Old, r.New, r.Status)
		if r.Error != "" {
			line += ": " + r.Error
		}
		if r.Status == threshold.Failed || r.Status == threshold.Discarded {
			line = color.RedString("%s", line)
		}
		fmt.Fprintln(w, line)
	}
}

func pairText(res threshold.Result) string {
	if r, ok := res.Register(battery.Start); ok && r.Status != threshold.NotApplicable {
		return fmt.Sprintf("(start %d%%, stop %d%%)", res.Requested.Start, res.Requested.Stop)
	}
	return fmt.Sprintf("(stop %d%%)", res.Requested.Stop)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/events"
	"github.com/charlie0129/thinkbatt/pkg/flock"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

func NewDischargeCommand() *cobra.Command {
	remote := false

	cmd := &cobra.Command{
		Use:     "discharge [BAT]",
		GroupID: gAdvanced,
		Short:   "Discharge the battery while on AC power",
		Long: `Force the battery to discharge until it is empty, even when AC power is connected.

Only ThinkPads with tp_smapi support this. Press Ctrl+C to stop discharging.
The charge level must not be above the stop threshold minus 4.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := optionalArg(args, 0)
			if remote {
				v, err := dischargeRemote(cmd.Context(), cmd.OutOrStdout(), id)
				if err != nil {
					return err
				}
				return dischargeExit(v)
			}

			_, v, err := dischargeLocal(cmd.Context(), cmd.OutOrStdout(), id)
			if err != nil {
				return err
			}
			return dischargeExit(v)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Let the running daemon discharge the battery")

	return cmd
}

func NewRecalibrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "recalibrate [BAT]",
		GroupID: gAdvanced,
		Short:   "Discharge the battery, then charge it to full",
		Long: `Recalibrate the battery gauge: discharge the battery until empty, then restore the
default charge thresholds so it charges to full.

Only ThinkPads with tp_smapi support this. Keep AC power connected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, v, err := dischargeLocal(cmd.Context(), cmd.OutOrStdout(), optionalArg(args, 0))
			if err != nil {
				return err
			}
			if v.State != discharge.Done {
				return dischargeExit(v)
			}

			bat, err := resolveBattery(b, v.Battery)
			if err != nil {
				return err
			}
			res := threshold.New(b).Write(bat, threshold.Default(), threshold.Default(), threshold.Interactive)
			printResult(cmd.OutOrStdout(), res, false)
			if res.Outcome.Failed() {
				return errOutcome
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Battery is charging to full. Keep AC power connected.")
			return nil
		},
	}
}

// signalContext cancels on SIGINT and SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func dischargeLocal(parent context.Context, w io.Writer, id string) (battery.Backend, discharge.View, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, discharge.View{}, err
	}
	b, err := detectBackend(conf)
	if err != nil {
		return nil, discharge.View{}, err
	}
	bat, err := resolveBattery(b, id)
	if err != nil {
		return b, discharge.View{}, err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	c := discharge.New(b, flock.New(lockPath))
	c.OnTransition = func(v discharge.View) {
		logrus.WithFields(logrus.Fields{
			"battery": v.Battery,
			"state":   v.State,
		}).Debug("discharge state changed")
	}
	c.OnTick = func(v discharge.View, t battery.Telemetry) {
		fmt.Fprintf(w, "%s: discharging, %s, %s\n", v.Battery, bold("%s", unit(t.ChargePercent, "%", 1)), powerText(t.PowerMW))
	}

	fmt.Fprintf(w, "%s: starting forced discharge, press Ctrl+C to stop\n", bat.ID)
	v := c.Run(ctx, bat).View()
	printView(w, v)
	return b, v, nil
}

func dischargeRemote(parent context.Context, w io.Writer, id string) (discharge.View, error) {
	if id == "" {
		id = battery.DefaultID
	}

	ctx, stop := signalContext(parent)
	defer stop()

	// The stream outlives the signal so the final state is still received.
	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()

	c := newClient()
	evs, err := c.SubscribeEvents(streamCtx)
	if err != nil {
		return discharge.View{}, err
	}

	v, err := c.StartDischarge(id)
	if err != nil {
		if v != nil {
			printView(w, *v)
			return *v, nil
		}
		return discharge.View{}, err
	}
	fmt.Fprintf(w, "%s: forced discharge started by the daemon, press Ctrl+C to stop\n", v.Battery)

	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			if err := c.CancelDischarge(); err != nil {
				logrus.WithError(err).Warn("failed to cancel discharge")
			}
		case ev, ok := <-evs:
			if !ok {
				final, err := c.GetDischarge()
				if err != nil {
					return discharge.View{}, err
				}
				printView(w, *final)
				return *final, nil
			}
			if ev.Name != events.DischargeState {
				continue
			}
			p, err := events.DecodeAs[events.DischargeStateEvent](ev)
			if err != nil {
				logrus.WithError(err).Debug("failed to decode event")
				continue
			}
			var state discharge.State
			if err := state.UnmarshalText([]byte(p.State)); err != nil {
				continue
			}
			logrus.WithFields(logrus.Fields{"battery": p.Battery, "state": state}).Debug("discharge state changed")
			if state.Terminal() {
				final, err := c.GetDischarge()
				if err != nil {
					return discharge.View{}, err
				}
				printView(w, *final)
				return *final, nil
			}
		}
	}
}

func printView(w io.Writer, v discharge.View) {
	msg := v.Outcome.String()
	if v.Message != "" {
		msg = v.Message
	}

	switch {
	case v.Outcome == discharge.Success:
		fmt.Fprintf(w, "%s: %s\n", v.Battery, color.GreenString("battery discharged"))
	case v.Outcome.Failed():
		fmt.Fprintf(w, "%s: %s\n", v.Battery, color.RedString("%s", msg))
	default:
		fmt.Fprintf(w, "%s: %s\n", v.Battery, color.YellowString("%s", msg))
	}
}

// dischargeExit maps the outcome of a session to the command result.
// Cancellation and AC interruption are not errors.
func dischargeExit(v discharge.View) error {
	if v.Outcome.Failed() {
		return errOutcome
	}
	return nil
}

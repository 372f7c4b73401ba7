package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/status"
)

func NewStatusCommand() *cobra.Command {
	asJSON := false
	remote := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Show battery status and charge thresholds",
		Long: `Show driver status, telemetry, charge thresholds and discharge support of every battery.

By default the hardware is read directly. With --remote, the running daemon is asked instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snaps, err := fetchSnapshots(remote)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snaps)
			}

			printStatus(cmd.OutOrStdout(), snaps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running daemon instead of reading the hardware")

	return cmd
}

func fetchSnapshots(remote bool) ([]status.Snapshot, error) {
	if remote {
		snaps, err := newClient().GetStatus()
		if err != nil {
			return nil, fmt.Errorf("failed to get status from daemon: %w", err)
		}
		return snaps, nil
	}

	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	b, err := detectBackend(conf)
	if err != nil {
		return nil, err
	}
	return status.Collect(b), nil
}

func printStatus(w io.Writer, snaps []status.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No batteries found.")
		return
	}

	first := snaps[0]
	fmt.Fprintln(w, bold("Driver:"))
	fmt.Fprintf(w, "  Plugin: %s\n", bold("%s", first.Driver))
	fmt.Fprintf(w, "  Status: %s\n", driverStatusText(first.DriverStatus))
	fmt.Fprintf(w, "  Threshold control: %s\n", methodText(first.Capabilities.ThresholdMethod))
	fmt.Fprintf(w, "  Forced discharge: %s\n", methodText(first.Capabilities.DischargeMethod))

	for _, s := range snaps {
		fmt.Fprintln(w)
		title := "Battery " + s.Battery.ID
		if s.Main {
			title += " (main)"
		}
		fmt.Fprintln(w, bold("%s:", title))

		t := s.Telemetry
		fmt.Fprintf(w, "  State: %s\n", stateText(t.State))
		fmt.Fprintf(w, "  Charge: %s\n", bold("%s", unit(t.ChargePercent, "%", 1)))
		fmt.Fprintf(w, "  Power: %s\n", powerText(t.PowerMW))
		fmt.Fprintf(w, "  Voltage: %s\n", unit(t.VoltageMV, " V", 1000))
		fmt.Fprintf(w, "  Remaining: %s\n", unit(t.RemainingMWh, " Wh", 1000))
		fmt.Fprintf(w, "  Last full: %s\n", unit(t.LastFullMWh, " Wh", 1000))
		if t.CycleCount >= 0 {
			fmt.Fprintf(w, "  Cycle count: %d\n", t.CycleCount)
		}
		if model := strings.TrimSpace(t.Manufacturer + " " + t.Model); model != "" {
			fmt.Fprintf(w, "  Model: %s\n", model)
		}
		if s.System != nil {
			if h := s.System.Health(); h >= 0 {
				fmt.Fprintf(w, "  Health: %s\n", bold("%d%%", h))
			}
		}
		fmt.Fprintf(w, "  AC connected: %s\n", bool2Text(t.ACConnected))

		switch {
		case s.Thresholds != nil:
			if s.Capabilities.StartRange.Applicable() {
				fmt.Fprintf(w, "  Start threshold: %s\n", bold("%d%%", s.Thresholds.Start))
			}
			fmt.Fprintf(w, "  Stop threshold: %s\n", bold("%d%%", s.Thresholds.Stop))
		case s.ThresholdError != "":
			fmt.Fprintf(w, "  Thresholds: %s\n", color.RedString("not available (%s)", s.ThresholdError))
		default:
			fmt.Fprintln(w, "  Thresholds: not available")
		}

		if s.DischargeSupported {
			fmt.Fprintf(w, "  Forced discharge active: %s\n", bool2Text(s.Discharging))
		}
	}
}

func driverStatusText(s battery.DriverStatus) string {
	if s == battery.StatusSupported {
		return color.New(color.Bold, color.FgGreen).Sprint(s.String())
	}
	return color.New(color.Bold, color.FgYellow).Sprint(s.String())
}

func methodText(m battery.Method) string {
	if m == battery.MethodNone || m == "" {
		return color.RedString("not available")
	}
	return bold("%s", m)
}

func stateText(state string) string {
	switch state {
	case "charging":
		return color.GreenString(state)
	case "discharging":
		return color.RedString(state)
	case "":
		return "unknown"
	}
	return state
}

// powerText formats a signed power reading. The vendor driver reports
// discharging as negative, so only -1 is unknown.
func powerText(mw int) string {
	if mw == -1 {
		return "unknown"
	}
	return fmt.Sprintf("%.2f W", float64(mw)/1000)
}

// unit formats a raw value divided by scale, or "unknown" when v is negative.
func unit(v int, suffix string, scale int) string {
	if v < 0 {
		return "unknown"
	}
	if scale == 1 {
		return fmt.Sprintf("%d%s", v, suffix)
	}
	return fmt.Sprintf("%.2f%s", float64(v)/float64(scale), suffix)
}

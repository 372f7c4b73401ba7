package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/daemon"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/status"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

func init() {
	color.NoColor = true
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name    string
		res     threshold.Result
		verbose bool
		want    string
	}{
		{
			name: "set",
			res: threshold.Result{
				Battery:   "BAT0",
				Outcome:   threshold.Success,
				Requested: threshold.Pair{Start: 75, Stop: 80},
				Registers: []threshold.Register{
					{Kind: battery.Start, Old: 96, New: 75, Status: threshold.Written},
					{Kind: battery.Stop, Old: 100, New: 80, Status: threshold.Written},
				},
			},
			want: "BAT0: thresholds set (start 75%, stop 80%)\n",
		},
		{
			name: "stop only",
			res: threshold.Result{
				Battery:   "BAT0",
				Outcome:   threshold.Success,
				Requested: threshold.Pair{Stop: 80},
				Registers: []threshold.Register{
					{Kind: battery.Start, Status: threshold.NotApplicable},
					{Kind: battery.Stop, Old: 80, New: 80, Status: threshold.Unchanged},
				},
			},
			want: "BAT0: thresholds unchanged (stop 80%)\n",
		},
		{
			name: "validation failure",
			res: threshold.Result{
				Battery:    "BAT0",
				Outcome:    threshold.StartOutOfRange,
				Message:    "start threshold 1 out of range",
				LegalRange: "2..96",
			},
			want: "BAT0: start threshold 1 out of range\n  legal range: 2..96\n",
		},
		{
			name: "not configured is quiet",
			res:  threshold.Result{Battery: "BAT1", Outcome: threshold.NotConfigured},
			want: "",
		},
		{
			name: "write error lists registers",
			res: threshold.Result{
				Battery: "BAT0",
				Outcome: threshold.WriteError,
				Registers: []threshold.Register{
					{Kind: battery.Start, Old: 96, New: 75, Status: threshold.Written},
					{Kind: battery.Stop, Old: 100, New: 80, Status: threshold.Failed, Error: "EIO"},
				},
			},
			want: "BAT0: write error\n  start: 96 -> 75 (written)\n  stop: 100 -> 80 (failed): EIO\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res, tt.verbose)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintStatus(t *testing.T) {
	tel := battery.NewTelemetry()
	tel.State = "discharging"
	tel.ChargePercent = 57
	tel.PowerMW = -8500

	snaps := []status.Snapshot{{
		Battery:      battery.Battery{ID: "BAT0"},
		Main:         true,
		Driver:       "tpsmapi",
		DriverStatus: battery.StatusSupported,
		Capabilities: battery.Capabilities{
			ThresholdMethod: battery.MethodVendor,
			DischargeMethod: battery.MethodVendor,
			StartRange:      battery.Span(2, 96),
			StopRange:       battery.Span(6, 100),
		},
		Telemetry:          tel,
		Thresholds:         &threshold.Pair{Start: 75, Stop: 80},
		DischargeSupported: true,
	}}

	var buf bytes.Buffer
	printStatus(&buf, snaps)
	out := buf.String()

	assert.Contains(t, out, "Plugin: tpsmapi")
	assert.Contains(t, out, "Status: supported")
	assert.Contains(t, out, "Battery BAT0 (main):")
	assert.Contains(t, out, "Charge: 57%")
	assert.Contains(t, out, "Power: -8.50 W")
	assert.Contains(t, out, "Voltage: unknown")
	assert.Contains(t, out, "Start threshold: 75%")
	assert.Contains(t, out, "Stop threshold: 80%")
	assert.Contains(t, out, "Forced discharge active: ✘")

	buf.Reset()
	snaps[0].Thresholds = nil
	snaps[0].ThresholdError = "permission denied"
	printStatus(&buf, snaps)
	assert.Contains(t, buf.String(), "Thresholds: not available (permission denied)")

	buf.Reset()
	printStatus(&buf, nil)
	assert.Equal(t, "No batteries found.\n", buf.String())
}

func TestDischargeExit(t *testing.T) {
	for _, o := range []discharge.Outcome{discharge.Success, discharge.OutcomeCancelled, discharge.OutcomeInterruptedByAC} {
		assert.NoError(t, dischargeExit(discharge.View{Outcome: o}), o.String())
	}
	for _, o := range []discharge.Outcome{discharge.ChargeLevelTooHigh, discharge.HardwareMalfunction, discharge.OutcomeNotEmptied} {
		assert.ErrorIs(t, dischargeExit(discharge.View{Outcome: o}), errOutcome, o.String())
	}
}

func TestPrintSchedule(t *testing.T) {
	next := time.Date(2026, 10, 18, 12, 0, 0, 0, time.Local)
	tests := []struct {
		name  string
		sched daemon.ScheduleResponse
		want  string
	}{
		{
			name: "not scheduled",
			want: "Threshold re-application is not scheduled.\n",
		},
		{
			name:  "scheduled",
			sched: daemon.ScheduleResponse{Cron: "@every 1h", NextRun: &next, Running: true},
			want:  "Schedule: @every 1h\nNext run: 2026-10-18 12:00:00\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSchedule(&buf, &tt.sched)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"status", "setcharge", "apply", "discharge", "recalibrate", "schedule", "daemon", "install", "uninstall", "version"} {
		c, _, err := cmd.Find([]string{name})
		if assert.NoError(t, err, name) {
			assert.Equal(t, name, c.Name())
		}
	}
}

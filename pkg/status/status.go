// Package status collects read-only per-battery snapshots for rendering.
package status

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/powerinfo"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

// Snapshot describes one battery at one point in time.
type Snapshot struct {
	Battery      battery.Battery      `json:"battery"`
	Main         bool                 `json:"main"`
	Driver       string               `json:"driver"`
	DriverStatus battery.DriverStatus `json:"driverStatus"`
	Capabilities battery.Capabilities `json:"capabilities"`
	Telemetry    battery.Telemetry    `json:"telemetry"`
	// Thresholds is nil when they are not available.
	Thresholds     *threshold.Pair `json:"thresholds,omitempty"`
	ThresholdError string          `json:"thresholdError,omitempty"`

	DischargeSupported bool `json:"dischargeSupported"`
	Discharging        bool `json:"discharging"`

	// System holds figures from the platform battery library, when they can
	// be matched to this battery.
	System *powerinfo.Battery `json:"system,omitempty"`
}

// systemBatteries is a test seam.
var systemBatteries = powerinfo.Batteries

// Collect returns a snapshot of every detected battery. Unreadable values
// are reported in the snapshot, never as an error.
func Collect(b battery.Backend) []Snapshot {
	caps := b.Capabilities()
	ctrl := threshold.New(b)
	bats := b.Registry().All()

	system, err := systemBatteries()
	if err != nil {
		logrus.WithError(err).Debug("system battery figures unavailable")
	}
	// Both sides enumerate power_supply batteries by name, so the order
	// matches whenever the count does.
	if len(system) != len(bats) {
		system = nil
	}

	ret := make([]Snapshot, 0, len(bats))
	for i, bat := range bats {
		s := Snapshot{
			Battery:            bat,
			Main:               bat.Main(),
			Driver:             b.Name(),
			DriverStatus:       b.Status(),
			Capabilities:       caps,
			DischargeSupported: caps.CanDischarge(),
		}

		t, err := b.Telemetry(bat)
		if err != nil {
			logrus.WithError(err).WithField("battery", bat.ID).Warn("failed to read telemetry")
			t = battery.NewTelemetry()
		}
		s.Telemetry = t

		if caps.CanWriteThresholds() {
			p, err := ctrl.Read(bat)
			if err != nil {
				s.ThresholdError = err.Error()
			} else {
				s.Thresholds = &p
			}
		}

		if s.DischargeSupported {
			active, err := b.ReadDischarge(bat)
			if err != nil && !errors.Is(err, battery.ErrUnsupported) {
				logrus.WithError(err).WithField("battery", bat.ID).Debug("failed to read discharge flag")
			}
			s.Discharging = err == nil && active
		}

		if system != nil {
			sys := system[i]
			s.System = &sys
		}

		ret = append(ret, s)
	}

	return ret
}

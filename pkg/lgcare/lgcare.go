// Package lgcare drives LG laptops through the lg-laptop ACPI platform
// driver. Its only control is battery_care_limit, a stop threshold that is
// either 80 or 100 and applies to the whole machine.
package lgcare

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/natacpi"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
)

const (
	CareLimitPath = "/sys/devices/platform/lg-laptop/battery_care_limit"
	dmiVendorPath = "/sys/class/dmi/id/sys_vendor"
)

// Options configure Probe.
type Options struct {
	FS     sysfile.FS
	Native *natacpi.Reader
	// Enabled is false when the configuration disables native ACPI probing.
	Enabled bool
}

// Backend is the lg-laptop back end.
type Backend struct {
	fs     sysfile.FS
	native *natacpi.Reader
	status battery.DriverStatus
	caps   battery.Capabilities
	reg    *battery.Registry
}

var _ battery.Backend = &Backend{}

// Match reports whether the machine is an LG laptop.
func Match(fs sysfile.FS) bool {
	vendor, err := fs.Read(dmiVendorPath)
	return err == nil && strings.HasPrefix(vendor, "LG Electronics")
}

// Probe detects the lg-laptop back end.
func Probe(opts Options) (*Backend, error) {
	if !Match(opts.FS) {
		return nil, battery.ErrNoMatch
	}

	probes, err := opts.Native.Batteries()
	if err != nil {
		logrus.WithError(err).Warn("failed to enumerate batteries through power_supply")
	}
	if len(probes) == 0 {
		return nil, battery.ErrNoBatteries
	}

	b := &Backend{
		fs:     opts.FS,
		native: opts.Native,
		caps:   natacpi.TelemetryOnly("lg"),
	}
	b.caps.DefaultStop = 100
	b.caps.StopRange = battery.OneOf(80, 100)

	switch {
	case !opts.Enabled:
		b.status = battery.StatusDisabledByConfig
	default:
		v, err := sysfile.ReadInt(opts.FS, CareLimitPath)
		switch {
		case err != nil:
			b.status = battery.StatusNoKernelSupport
			logrus.WithError(err).Debug("battery_care_limit not readable")
		case v == 0:
			b.status = battery.StatusHardwareUnsupported
		default:
			b.status = battery.StatusSupported
			b.caps.ThresholdMethod = battery.MethodNatACPI
		}
	}

	b.reg = battery.NewRegistry(probes, b.layout)
	logrus.WithFields(logrus.Fields{
		"driver":    "lg-laptop",
		"status":    b.status,
		"batteries": b.reg.Len(),
	}).Debug("probe finished")

	return b, nil
}

func (b *Backend) layout(p battery.Probe) battery.Battery {
	bat := natacpi.Layout(p)
	if b.caps.CanWriteThresholds() {
		bat.StopThresholdPath = CareLimitPath
	}
	return bat
}

func (b *Backend) Name() string                       { return "lgcare" }
func (b *Backend) Status() battery.DriverStatus       { return b.status }
func (b *Backend) Capabilities() battery.Capabilities { return b.caps }
func (b *Backend) Registry() *battery.Registry        { return b.reg }

// VerifyWrites is true: the firmware accepts any value and silently keeps the
// old one when it does not like it.
func (b *Backend) VerifyWrites() bool { return true }

func (b *Backend) ReadThreshold(bat battery.Battery, k battery.Kind) (int, error) {
	if k != battery.Stop || bat.StopThresholdPath == "" {
		return 0, battery.ErrUnsupported
	}
	return sysfile.ReadInt(b.fs, bat.StopThresholdPath)
}

func (b *Backend) WriteThreshold(bat battery.Battery, k battery.Kind, value int) error {
	if k != battery.Stop || bat.StopThresholdPath == "" {
		return battery.ErrUnsupported
	}
	logrus.WithField("val", value).Trace("writing battery_care_limit")
	return sysfile.WriteInt(b.fs, bat.StopThresholdPath, value)
}

func (b *Backend) ReadCharge(battery.Battery) (int, error) {
	return 0, battery.ErrUnsupported
}

func (b *Backend) ACConnected() (bool, error) {
	return b.native.ACOnline()
}

func (b *Backend) ReadDischarge(battery.Battery) (bool, error) {
	return false, battery.ErrUnsupported
}

func (b *Backend) WriteDischarge(battery.Battery, bool) error {
	return battery.ErrUnsupported
}

func (b *Backend) Telemetry(bat battery.Battery) (battery.Telemetry, error) {
	return b.native.Telemetry(bat.ID)
}

// Package tpsmapi drives legacy ThinkPads through the out-of-tree tp_smapi
// kernel module, which exposes one directory per battery slot below
// /sys/devices/platform/smapi.
package tpsmapi

import (
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/kmod"
	"github.com/charlie0129/thinkbatt/pkg/natacpi"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
)

const (
	ModuleName = "tp_smapi"
	DataDir    = "/sys/devices/platform/smapi"

	dmiVendorPath  = "/sys/class/dmi/id/sys_vendor"
	dmiVersionPath = "/sys/class/dmi/id/product_version"

	startFile     = "start_charge_thresh"
	stopFile      = "stop_charge_thresh"
	dischargeFile = "force_discharge"
	installedFile = "installed"
	chargeFile    = "remaining_percent"
	acFile        = "ac_connected"
)

var slotPattern = regexp.MustCompile(`^BAT[0-9]+$`)

// Capabilities returned before (and without) a usable module: telemetry
// through the native path, no control.
func defaultCapabilities() battery.Capabilities {
	c := natacpi.TelemetryOnly("thinkpad-legacy")
	c.DefaultStart = 96
	c.DefaultStop = 100
	c.StartRange = battery.Span(2, 96)
	c.StopRange = battery.Span(6, 100)
	c.MinGap = 4
	return c
}

// Options configure Probe.
type Options struct {
	FS      sysfile.FS
	Native  *natacpi.Reader
	Modules kmod.Loader
	// Enabled is false when the configuration disables the module driver.
	Enabled bool
}

// Backend is the tp_smapi back end.
type Backend struct {
	fs     sysfile.FS
	native *natacpi.Reader
	status battery.DriverStatus
	caps   battery.Capabilities
	reg    *battery.Registry
}

var _ battery.Backend = &Backend{}

// Match reports whether the machine is a ThinkPad.
func Match(fs sysfile.FS) bool {
	vendor, err := fs.Read(dmiVendorPath)
	if err != nil || !strings.EqualFold(vendor, "LENOVO") {
		return false
	}
	version, err := fs.Read(dmiVersionPath)
	return err == nil && strings.Contains(version, "ThinkPad")
}

// Probe detects the tp_smapi back end. It returns battery.ErrNoMatch on
// non-ThinkPads and battery.ErrNoBatteries when neither tp_smapi nor the
// native path report any battery.
func Probe(opts Options) (*Backend, error) {
	if !Match(opts.FS) {
		return nil, battery.ErrNoMatch
	}

	b := &Backend{
		fs:     opts.FS,
		native: opts.Native,
		status: battery.StatusUnknown,
		caps:   defaultCapabilities(),
	}
	log := logrus.WithField("driver", ModuleName)

	var probes []battery.Probe
	switch {
	case !opts.Enabled:
		b.status = battery.StatusDisabledByConfig
		log.Debug("disabled by configuration")
	default:
		loadErr := opts.Modules.Load(ModuleName)
		if !opts.FS.Exists(DataDir) {
			if opts.Modules.Installed(ModuleName) {
				b.status = battery.StatusModuleLoadError
				log.WithError(loadErr).Warn("kernel module installed but failed to load")
			} else {
				b.status = battery.StatusModuleNotInstalled
				log.Debug("kernel module not installed")
			}
			break
		}
		b.status = battery.StatusHardwareUnsupported
		probes = b.probeSlots()
	}

	if len(probes) == 0 {
		var err error
		probes, err = opts.Native.Batteries()
		if err != nil {
			log.WithError(err).Warn("failed to enumerate batteries through power_supply")
		}
		if len(probes) == 0 {
			return nil, battery.ErrNoBatteries
		}
	}

	b.reg = battery.NewRegistry(probes, b.layout)
	log.WithFields(logrus.Fields{
		"status":    b.status,
		"batteries": b.reg.Len(),
	}).Debug("probe finished")

	return b, nil
}

// probeSlots enumerates installed smapi slots and decides the capabilities
// from the first one.
func (b *Backend) probeSlots() []battery.Probe {
	names, err := b.fs.List(DataDir)
	if err != nil {
		logrus.WithError(err).Warn("failed to list tp_smapi slots")
		return nil
	}

	var probes []battery.Probe
	for _, name := range names {
		if !slotPattern.MatchString(name) {
			continue
		}
		installed, err := b.fs.Read(path.Join(DataDir, name, installedFile))
		if err != nil || installed != "1" {
			continue
		}
		probes = append(probes, battery.Probe{
			ID:     name,
			Index:  natacpi.IndexOf(name),
			Source: battery.MethodVendor,
		})

		if len(probes) > 1 {
			continue
		}

		if !b.controlsReadable(name) {
			b.status = battery.StatusHardwareUnsupported
			continue
		}
		b.status = battery.StatusSupported
		b.caps.ReadMethod = battery.MethodVendor
		b.caps.ThresholdMethod = battery.MethodVendor
		b.caps.DischargeMethod = battery.MethodVendor
	}

	return probes
}

// controlsReadable checks the three control attributes of a slot. The module
// loads on unsupported models too, it just fails every access.
func (b *Backend) controlsReadable(slot string) bool {
	for _, f := range []string{startFile, stopFile, dischargeFile} {
		if _, err := b.fs.Read(path.Join(DataDir, slot, f)); err != nil {
			logrus.WithError(err).WithField("battery", slot).Info("tp_smapi control not readable, thresholds unavailable")
			return false
		}
	}
	return true
}

func (b *Backend) layout(p battery.Probe) battery.Battery {
	if p.Source != battery.MethodVendor || b.status != battery.StatusSupported {
		return natacpi.Layout(p)
	}
	dir := path.Join(DataDir, p.ID)
	return battery.Battery{
		ID:                 p.ID,
		Index:              p.Index,
		TelemetryPath:      dir,
		StartThresholdPath: path.Join(dir, startFile),
		StopThresholdPath:  path.Join(dir, stopFile),
		DischargeFlagPath:  path.Join(dir, dischargeFile),
	}
}

func (b *Backend) Name() string                       { return "tpsmapi" }
func (b *Backend) Status() battery.DriverStatus       { return b.status }
func (b *Backend) Capabilities() battery.Capabilities { return b.caps }
func (b *Backend) Registry() *battery.Registry        { return b.reg }

// VerifyWrites is false: tp_smapi reports rejected values on write.
func (b *Backend) VerifyWrites() bool { return false }

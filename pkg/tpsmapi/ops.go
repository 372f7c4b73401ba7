package tpsmapi

import (
	"path"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
)

func (b *Backend) ReadThreshold(bat battery.Battery, k battery.Kind) (int, error) {
	p := bat.ThresholdPath(k)
	if !b.caps.CanWriteThresholds() || p == "" {
		return 0, battery.ErrUnsupported
	}
	return sysfile.ReadInt(b.fs, p)
}

func (b *Backend) WriteThreshold(bat battery.Battery, k battery.Kind, value int) error {
	p := bat.ThresholdPath(k)
	if !b.caps.CanWriteThresholds() || p == "" {
		return battery.ErrUnsupported
	}
	logrus.WithFields(logrus.Fields{
		"battery":  bat.ID,
		"register": k,
		"val":      value,
	}).Trace("WriteThreshold called")

	return sysfile.WriteInt(b.fs, p, value)
}

// ReadCharge only uses remaining_percent. The native capacity may lag or be
// missing entirely during a forced discharge, so it is never substituted.
func (b *Backend) ReadCharge(bat battery.Battery) (int, error) {
	if b.caps.ReadMethod != battery.MethodVendor || bat.DischargeFlagPath == "" {
		return 0, battery.ErrUnsupported
	}
	return sysfile.ReadInt(b.fs, path.Join(bat.TelemetryPath, chargeFile))
}

func (b *Backend) ACConnected() (bool, error) {
	if b.caps.ReadMethod == battery.MethodVendor {
		if v, err := b.fs.Read(path.Join(DataDir, acFile)); err == nil {
			return v == "1", nil
		}
	}
	return b.native.ACOnline()
}

func (b *Backend) ReadDischarge(bat battery.Battery) (bool, error) {
	if !b.caps.CanDischarge() || bat.DischargeFlagPath == "" {
		return false, battery.ErrUnsupported
	}
	v, err := b.fs.Read(bat.DischargeFlagPath)
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (b *Backend) WriteDischarge(bat battery.Battery, enable bool) error {
	if !b.caps.CanDischarge() || bat.DischargeFlagPath == "" {
		return battery.ErrUnsupported
	}
	logrus.WithFields(logrus.Fields{
		"battery": bat.ID,
		"enable":  enable,
	}).Trace("WriteDischarge called")

	v := "0"
	if enable {
		v = "1"
	}
	return b.fs.Write(bat.DischargeFlagPath, v)
}

// Telemetry reads the tp_smapi battery directory, or the native
// power_supply attributes when the module is not usable.
func (b *Backend) Telemetry(bat battery.Battery) (battery.Telemetry, error) {
	if b.caps.ReadMethod != battery.MethodVendor || bat.DischargeFlagPath == "" {
		return b.native.Telemetry(bat.ID)
	}

	t := battery.NewTelemetry()
	dir := bat.TelemetryPath

	state, err := b.fs.Read(path.Join(dir, "state"))
	if err != nil {
		return t, err
	}
	t.State = state

	readInt := func(name string) int {
		v, err := sysfile.ReadInt(b.fs, path.Join(dir, name))
		if err != nil {
			return -1
		}
		return v
	}
	t.ChargePercent = readInt(chargeFile)
	t.VoltageMV = readInt("voltage")
	t.PowerMW = readInt("power_now")
	t.RemainingMWh = readInt("remaining_capacity")
	t.LastFullMWh = readInt("last_full_capacity")
	t.CycleCount = readInt("cycle_count")
	t.Manufacturer, _ = b.fs.Read(path.Join(dir, "manufacturer"))
	t.Model, _ = b.fs.Read(path.Join(dir, "model"))

	if ac, err := b.ACConnected(); err == nil {
		t.ACConnected = ac
	}

	return t, nil
}

package tpsmapi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/natacpi"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
)

type fakeLoader struct {
	installed bool
	// onLoad simulates the module creating its data directory.
	onLoad func()
	loads  int
}

func (l *fakeLoader) Load(string) error {
	l.loads++
	if l.onLoad != nil {
		l.onLoad()
		return nil
	}
	return errors.New("modprobe: FATAL: Module tp_smapi not found")
}

func (l *fakeLoader) Installed(string) bool { return l.installed }

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newThinkPad(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/sys_vendor"), "LENOVO\n")
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/product_version"), "ThinkPad X220\n")
	return root
}

func addNativeBattery(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, "sys/class/power_supply", id)
	writeTestFile(t, filepath.Join(dir, "type"), "Battery\n")
	writeTestFile(t, filepath.Join(dir, "present"), "1\n")
	writeTestFile(t, filepath.Join(dir, "capacity"), "77\n")
}

func addSlot(t *testing.T, root, id string, installed bool, controls bool) {
	t.Helper()
	dir := filepath.Join(root, "sys/devices/platform/smapi", id)
	v := "0"
	if installed {
		v = "1"
	}
	writeTestFile(t, filepath.Join(dir, "installed"), v+"\n")
	writeTestFile(t, filepath.Join(dir, "remaining_percent"), "55\n")
	writeTestFile(t, filepath.Join(dir, "state"), "idle\n")
	if controls {
		writeTestFile(t, filepath.Join(dir, "start_charge_thresh"), "96\n")
		writeTestFile(t, filepath.Join(dir, "stop_charge_thresh"), "100\n")
		writeTestFile(t, filepath.Join(dir, "force_discharge"), "0\n")
	}
}

func options(root string, loader *fakeLoader, enabled bool) Options {
	return Options{
		FS:      sysfile.New(root),
		Native:  natacpi.NewReader(root),
		Modules: loader,
		Enabled: enabled,
	}
}

func TestProbeNoMatch(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/sys_vendor"), "LG Electronics\n")

	if _, err := Probe(options(root, &fakeLoader{}, true)); !errors.Is(err, battery.ErrNoMatch) {
		t.Fatalf("Probe() error = %v, want ErrNoMatch", err)
	}
}

func TestProbeModuleNotInstalled(t *testing.T) {
	root := newThinkPad(t)
	addNativeBattery(t, root, "BAT0")

	b, err := Probe(options(root, &fakeLoader{installed: false}, true))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if b.Status() != battery.StatusModuleNotInstalled {
		t.Fatalf("Status() = %v", b.Status())
	}
	caps := b.Capabilities()
	if caps.ReadMethod != battery.MethodNatACPI || caps.CanWriteThresholds() || caps.CanDischarge() {
		t.Fatalf("Capabilities() = %+v, want telemetry-only", caps)
	}
	if b.Registry().Len() != 1 {
		t.Fatalf("fallback registry has %d batteries", b.Registry().Len())
	}
	bat, _ := b.Registry().Resolve(battery.DefaultID)
	if bat.TelemetryPath != "/sys/class/power_supply/BAT0" {
		t.Fatalf("TelemetryPath = %q", bat.TelemetryPath)
	}
	tm, err := b.Telemetry(bat)
	if err != nil || tm.ChargePercent != 77 {
		t.Fatalf("Telemetry() = %+v, %v", tm, err)
	}
}

func TestProbeModuleNotInstalledNoBatteries(t *testing.T) {
	root := newThinkPad(t)
	if err := os.MkdirAll(filepath.Join(root, "sys/class/power_supply"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Probe(options(root, &fakeLoader{}, true)); !errors.Is(err, battery.ErrNoBatteries) {
		t.Fatalf("Probe() error = %v, want ErrNoBatteries", err)
	}
}

func TestProbeModuleLoadError(t *testing.T) {
	root := newThinkPad(t)
	addNativeBattery(t, root, "BAT0")

	b, err := Probe(options(root, &fakeLoader{installed: true}, true))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if b.Status() != battery.StatusModuleLoadError {
		t.Fatalf("Status() = %v", b.Status())
	}
}

func TestProbeDisabledByConfig(t *testing.T) {
	root := newThinkPad(t)
	addNativeBattery(t, root, "BAT0")
	loader := &fakeLoader{installed: true}

	b, err := Probe(options(root, loader, false))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if b.Status() != battery.StatusDisabledByConfig {
		t.Fatalf("Status() = %v", b.Status())
	}
	if loader.loads != 0 {
		t.Fatalf("module load attempted %d times while disabled", loader.loads)
	}
	if b.Registry().Len() != 1 {
		t.Fatalf("telemetry-only batteries must still be enumerated")
	}
}

func TestProbeSupported(t *testing.T) {
	root := newThinkPad(t)
	loader := &fakeLoader{onLoad: func() {
		addSlot(t, root, "BAT0", true, true)
		addSlot(t, root, "BAT1", true, false)
		addSlot(t, root, "BAT2", false, true)
		writeTestFile(t, filepath.Join(root, "sys/devices/platform/smapi/ac_connected"), "1\n")
	}}

	b, err := Probe(options(root, loader, true))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if b.Status() != battery.StatusSupported {
		t.Fatalf("Status() = %v", b.Status())
	}
	caps := b.Capabilities()
	if caps.ThresholdMethod != battery.MethodVendor || caps.DischargeMethod != battery.MethodVendor {
		t.Fatalf("Capabilities() = %+v", caps)
	}
	if b.Registry().Len() != 2 {
		t.Fatalf("registry has %d batteries, want the 2 installed slots", b.Registry().Len())
	}

	bat, ok := b.Registry().Resolve("BAT0")
	if !ok || bat.StartThresholdPath != "/sys/devices/platform/smapi/BAT0/start_charge_thresh" {
		t.Fatalf("Resolve(BAT0) = %+v, %v", bat, ok)
	}

	if err := b.WriteThreshold(bat, battery.Start, 40); err != nil {
		t.Fatalf("WriteThreshold() error = %v", err)
	}
	v, err := b.ReadThreshold(bat, battery.Start)
	if err != nil || v != 40 {
		t.Fatalf("ReadThreshold() = %d, %v", v, err)
	}

	if err := b.WriteDischarge(bat, true); err != nil {
		t.Fatalf("WriteDischarge() error = %v", err)
	}
	on, err := b.ReadDischarge(bat)
	if err != nil || !on {
		t.Fatalf("ReadDischarge() = %v, %v", on, err)
	}

	charge, err := b.ReadCharge(bat)
	if err != nil || charge != 55 {
		t.Fatalf("ReadCharge() = %d, %v", charge, err)
	}
	ac, err := b.ACConnected()
	if err != nil || !ac {
		t.Fatalf("ACConnected() = %v, %v", ac, err)
	}
	writeTestFile(t, filepath.Join(root, "sys/devices/platform/smapi/BAT0/power_now"), "-12345\n")
	tm, err := b.Telemetry(bat)
	if err != nil || tm.State != "idle" || tm.ChargePercent != 55 {
		t.Fatalf("Telemetry() = %+v, %v", tm, err)
	}
	if tm.PowerMW != -12345 || tm.VoltageMV != -1 {
		t.Errorf("Telemetry() power %d, voltage %d, want -12345, -1", tm.PowerMW, tm.VoltageMV)
	}
}

func TestProbeFirstSlotControlsUnreadable(t *testing.T) {
	root := newThinkPad(t)
	loader := &fakeLoader{onLoad: func() {
		addSlot(t, root, "BAT0", true, false)
	}}

	b, err := Probe(options(root, loader, true))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if b.Status() == battery.StatusSupported {
		t.Fatalf("Status() = supported although controls are unreadable")
	}
	if b.Capabilities().CanWriteThresholds() || b.Capabilities().CanDischarge() {
		t.Fatalf("capabilities must stay at defaults")
	}
	bat, _ := b.Registry().Resolve(battery.DefaultID)
	if _, err := b.ReadThreshold(bat, battery.Stop); !errors.Is(err, battery.ErrUnsupported) {
		t.Fatalf("ReadThreshold() error = %v, want ErrUnsupported", err)
	}
	if _, err := b.ReadCharge(bat); !errors.Is(err, battery.ErrUnsupported) {
		t.Fatalf("ReadCharge() error = %v, want ErrUnsupported", err)
	}
}

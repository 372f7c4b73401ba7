package lgcare

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/natacpi"
	"github.com/charlie0129/thinkbatt/pkg/sysfile"
)

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newLG(t *testing.T, careLimit string) string {
	t.Helper()
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/sys_vendor"), "LG Electronics\n")
	writeTestFile(t, filepath.Join(root, "sys/class/power_supply/BAT0/type"), "Battery\n")
	writeTestFile(t, filepath.Join(root, "sys/class/power_supply/BAT0/capacity"), "64\n")
	if careLimit != "" {
		writeTestFile(t, filepath.Join(root, "sys/devices/platform/lg-laptop/battery_care_limit"), careLimit+"\n")
	}
	return root
}

func probe(root string, enabled bool) (*Backend, error) {
	return Probe(Options{
		FS:      sysfile.New(root),
		Native:  natacpi.NewReader(root),
		Enabled: enabled,
	})
}

func TestProbeStatus(t *testing.T) {
	tests := []struct {
		name      string
		careLimit string
		enabled   bool
		want      battery.DriverStatus
		canWrite  bool
	}{
		{"supported", "100", true, battery.StatusSupported, true},
		{"inert", "0", true, battery.StatusHardwareUnsupported, false},
		{"missing driver", "", true, battery.StatusNoKernelSupport, false},
		{"disabled", "100", false, battery.StatusDisabledByConfig, false},
		{"disabled and missing", "", false, battery.StatusDisabledByConfig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := probe(newLG(t, tt.careLimit), tt.enabled)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if b.Status() != tt.want {
				t.Errorf("Status() = %v, want %v", b.Status(), tt.want)
			}
			if b.Capabilities().CanWriteThresholds() != tt.canWrite {
				t.Errorf("CanWriteThresholds() = %v, want %v", b.Capabilities().CanWriteThresholds(), tt.canWrite)
			}
			if b.Capabilities().CanDischarge() {
				t.Errorf("lg-laptop must never report discharge support")
			}
		})
	}
}

func TestProbeNoMatch(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/sys_vendor"), "LENOVO\n")

	if _, err := probe(root, true); !errors.Is(err, battery.ErrNoMatch) {
		t.Fatalf("Probe() error = %v, want ErrNoMatch", err)
	}
}

func TestProbeNoBatteries(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "sys/class/dmi/id/sys_vendor"), "LG Electronics\n")
	writeTestFile(t, filepath.Join(root, "sys/class/power_supply/AC/type"), "Mains\n")

	if _, err := probe(root, true); !errors.Is(err, battery.ErrNoBatteries) {
		t.Fatalf("Probe() error = %v, want ErrNoBatteries", err)
	}
}

func TestCareLimitOperations(t *testing.T) {
	b, err := probe(newLG(t, "100"), true)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	bat, _ := b.Registry().Resolve(battery.DefaultID)

	if _, ok := b.Capabilities().LegalRange(battery.Start); ok {
		t.Fatalf("start register must not be applicable")
	}
	if _, err := b.ReadThreshold(bat, battery.Start); !errors.Is(err, battery.ErrUnsupported) {
		t.Fatalf("ReadThreshold(start) error = %v", err)
	}

	if err := b.WriteThreshold(bat, battery.Stop, 80); err != nil {
		t.Fatalf("WriteThreshold() error = %v", err)
	}
	v, err := b.ReadThreshold(bat, battery.Stop)
	if err != nil || v != 80 {
		t.Fatalf("ReadThreshold(stop) = %d, %v", v, err)
	}

	if err := b.WriteDischarge(bat, true); !errors.Is(err, battery.ErrUnsupported) {
		t.Fatalf("WriteDischarge() error = %v, want ErrUnsupported", err)
	}
	if _, err := b.ReadDischarge(bat); !errors.Is(err, battery.ErrUnsupported) {
		t.Fatalf("ReadDischarge() error = %v, want ErrUnsupported", err)
	}
	if !b.VerifyWrites() {
		t.Fatalf("care limit writes must be verified")
	}
}

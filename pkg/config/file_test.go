package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

const sample = `# charge thresholds
START_CHARGE_THRESH_BAT0=75
STOP_CHARGE_THRESH_BAT0=80
START_CHARGE_THRESH_BAT1="default"
STOP_CHARGE_THRESH_BAT1 = "default"

NATACPI_ENABLE=0
TPSMAPI_ENABLE=true
REAPPLY_THRESHOLDS_CRON="@every 1h"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "thinkbatt.conf")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	f, err := NewFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	tests := []struct {
		kind   battery.Kind
		id     string
		want   string
		wantOK bool
	}{
		{battery.Start, "BAT0", "75", true},
		{battery.Stop, "BAT0", "80", true},
		{battery.Start, "BAT1", "default", true},
		{battery.Stop, "BAT1", "default", true},
		{battery.Start, "BAT2", "", false},
	}
	for _, tt := range tests {
		got, ok := f.ChargeThreshold(tt.kind, tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ChargeThreshold(%v, %s) = %q, %v, want %q, %v", tt.kind, tt.id, got, ok, tt.want, tt.wantOK)
		}
	}

	if f.NatACPIEnabled() {
		t.Errorf("NatACPIEnabled() = true, want false")
	}
	if !f.TPSmapiEnabled() {
		t.Errorf("TPSmapiEnabled() = false, want true")
	}
	if !f.RestoreThresholdsOnResume() {
		t.Errorf("RestoreThresholdsOnResume() must default to true")
	}
	if got := f.ReapplyThresholdsCron(); got != "@every 1h" {
		t.Errorf("ReapplyThresholdsCron() = %q", got)
	}
}

func TestLoadMissingAndEmpty(t *testing.T) {
	for name, path := range map[string]string{
		"missing": filepath.Join(t.TempDir(), "nope.conf"),
		"empty":   writeConfig(t, "\n# nothing here\n"),
	} {
		t.Run(name, func(t *testing.T) {
			f, err := NewFile(path)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if _, ok := f.ChargeThreshold(battery.Stop, "BAT0"); ok {
				t.Errorf("threshold must not be configured")
			}
			if !f.NatACPIEnabled() || !f.TPSmapiEnabled() {
				t.Errorf("drivers must be enabled by default")
			}
		})
	}
}

func TestLoadBareDefault(t *testing.T) {
	f, err := NewFile(writeConfig(t, "START_CHARGE_THRESH_BAT0=default\nSTOP_CHARGE_THRESH_BAT0 = DEFAULT # full\nREAPPLY_THRESHOLDS_CRON=\"default\"\n"))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	for _, k := range []battery.Kind{battery.Start, battery.Stop} {
		if got, ok := f.ChargeThreshold(k, "BAT0"); !ok || got != "default" {
			t.Errorf("ChargeThreshold(%v, BAT0) = %q, %v, want \"default\", true", k, got, ok)
		}
	}
	if got := f.ReapplyThresholdsCron(); got != "default" {
		t.Errorf("ReapplyThresholdsCron() = %q", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	for name, contents := range map[string]string{
		"syntax": "START_CHARGE_THRESH_BAT0=eighty\n",
		"table":  "[BAT0]\nstart=1\n",
		"array":  "STOP_CHARGE_THRESH_BAT0=[80]\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewFile(writeConfig(t, contents)); err == nil {
				t.Fatalf("NewFile() must fail")
			}
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("STOP_CHARGE_THRESH_BAT0", "60")
	t.Setenv("NATACPI_ENABLE", "1")

	f, err := NewFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if got, _ := f.ChargeThreshold(battery.Stop, "BAT0"); got != "60" {
		t.Errorf("ChargeThreshold(stop, BAT0) = %q, want 60", got)
	}
	if !f.NatACPIEnabled() {
		t.Errorf("NatACPIEnabled() = false, want true from environment")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "thinkbatt.conf")
	f := NewFileFromValues(nil, p)
	f.SetChargeThreshold(battery.Start, "BAT0", "70")
	f.SetChargeThreshold(battery.Stop, "BAT0", "default")
	f.SetChargeThreshold(battery.Stop, "BAT1", "90")
	f.SetChargeThreshold(battery.Stop, "BAT1", "")

	if err := f.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "# thinkbatt configuration\nSTART_CHARGE_THRESH_BAT0=70\nSTOP_CHARGE_THRESH_BAT0=\"default\"\n"
	if string(b) != want {
		t.Errorf("saved file = %q, want %q", string(b), want)
	}

	g, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if got, _ := g.ChargeThreshold(battery.Start, "BAT0"); got != "70" {
		t.Errorf("reloaded start = %q", got)
	}
	if _, ok := g.ChargeThreshold(battery.Stop, "BAT1"); ok {
		t.Errorf("removed key must stay removed")
	}
}

// Package natacpi reads batteries and AC adapters through the kernel's native
// power_supply class. It is the telemetry fallback for every vendor and the
// generic telemetry-only back end when no vendor applies.
package natacpi

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/procfs/sysfs"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// PowerSupplyDir is where the power_supply class lives.
const PowerSupplyDir = "/sys/class/power_supply"

// Reader reads the power_supply class below a filesystem root.
type Reader struct {
	root string
}

// NewReader returns a Reader for the sysfs tree below root ("" for the real
// one).
func NewReader(root string) *Reader {
	return &Reader{root: root}
}

func (r *Reader) class() (sysfs.PowerSupplyClass, error) {
	fs, err := sysfs.NewFS(filepath.Join(r.root, "/sys"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open sysfs")
	}

	psc, err := fs.PowerSupplyClass()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sysfs.PowerSupplyClass{}, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to read power_supply class")
	}

	return psc, nil
}

// Batteries lists present batteries (BAT*) sorted by name.
func (r *Reader) Batteries() ([]battery.Probe, error) {
	psc, err := r.class()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(psc))
	for name, ps := range psc {
		if !strings.HasPrefix(name, "BAT") {
			continue
		}
		if ps.Type != "" && ps.Type != "Battery" {
			continue
		}
		if ps.Present != nil && *ps.Present == 0 {
			logrus.WithField("battery", name).Debug("battery slot empty")
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	probes := make([]battery.Probe, 0, len(names))
	for _, name := range names {
		probes = append(probes, battery.Probe{
			ID:     name,
			Index:  IndexOf(name),
			Source: battery.MethodNatACPI,
		})
	}

	return probes, nil
}

// Telemetry reads the power_supply attributes of battery id.
func (r *Reader) Telemetry(id string) (battery.Telemetry, error) {
	t := battery.NewTelemetry()

	psc, err := r.class()
	if err != nil {
		return t, err
	}
	ps, ok := psc[id]
	if !ok {
		return t, pkgerrors.Errorf("battery %s not found in %s", id, PowerSupplyDir)
	}

	t.State = strings.ToLower(ps.Status)
	t.Manufacturer = ps.Manufacturer
	t.Model = ps.ModelName
	t.ChargePercent = intOr(ps.Capacity, 1)
	t.VoltageMV = intOr(ps.VoltageNow, 1000)
	t.PowerMW = intOr(ps.PowerNow, 1000)
	t.RemainingMWh = intOr(ps.EnergyNow, 1000)
	t.LastFullMWh = intOr(ps.EnergyFull, 1000)
	t.CycleCount = intOr(ps.CycleCount, 1)

	if ac, err := acOnline(psc); err == nil {
		t.ACConnected = ac
	}

	return t, nil
}

// Charge returns the capacity attribute of battery id.
func (r *Reader) Charge(id string) (int, error) {
	t, err := r.Telemetry(id)
	if err != nil {
		return 0, err
	}
	if t.ChargePercent < 0 {
		return 0, pkgerrors.Errorf("battery %s does not report its capacity", id)
	}
	return t.ChargePercent, nil
}

// ACOnline reports whether any mains supply is online.
func (r *Reader) ACOnline() (bool, error) {
	psc, err := r.class()
	if err != nil {
		return false, err
	}
	return acOnline(psc)
}

func acOnline(psc sysfs.PowerSupplyClass) (bool, error) {
	found := false
	for _, ps := range psc {
		if ps.Type != "Mains" {
			continue
		}
		found = true
		if ps.Online != nil && *ps.Online == 1 {
			return true, nil
		}
	}
	if !found {
		return false, pkgerrors.New("no mains power supply found")
	}
	return false, nil
}

// IndexOf derives the battery ordinal from its name, e.g. BAT1 → 1.
func IndexOf(name string) int {
	i, err := strconv.Atoi(strings.TrimLeft(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0
	}
	return i
}

func intOr(v *int64, div int64) int {
	if v == nil {
		return -1
	}
	return int(*v / div)
}

package battery

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by Backend operations that have no meaning
	// for the active vendor.
	ErrUnsupported = errors.New("operation not supported by this hardware")

	// ErrNoMatch means a vendor probe does not apply to this machine.
	// Selection moves on to the next vendor.
	ErrNoMatch = errors.New("hardware does not match")

	// ErrNoBatteries means a vendor probe applies but found no battery at
	// all. Selection stops.
	ErrNoBatteries = errors.New("no batteries found")
)

// DriverStatus is the outcome of capability probing.
type DriverStatus int

const (
	StatusUnknown DriverStatus = iota
	StatusSupported
	StatusDisabledByConfig
	StatusModuleLoadError
	StatusModuleNotInstalled
	StatusHardwareUnsupported
	StatusNoKernelSupport
)

var driverStatusNames = map[DriverStatus]string{
	StatusUnknown:             "unknown",
	StatusSupported:           "supported",
	StatusDisabledByConfig:    "disabled by configuration",
	StatusModuleLoadError:     "kernel module load error",
	StatusModuleNotInstalled:  "kernel module not installed",
	StatusHardwareUnsupported: "hardware unsupported",
	StatusNoKernelSupport:     "no kernel support",
}

func (s DriverStatus) String() string {
	if n, ok := driverStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("DriverStatus(%d)", int(s))
}

func (s DriverStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DriverStatus) UnmarshalText(b []byte) error {
	for k, v := range driverStatusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown driver status %q", string(b))
}

// Method names the path family that services an operation.
type Method string

const (
	MethodNone    Method = "none"
	MethodNatACPI Method = "natacpi"
	MethodVendor  Method = "vendor"
)

// Kind selects one of the two threshold registers.
type Kind int

const (
	Start Kind = iota
	Stop
)

func (k Kind) String() string {
	if k == Start {
		return "start"
	}
	return "stop"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "start":
		*k = Start
	case "stop":
		*k = Stop
	default:
		return fmt.Errorf("unknown threshold kind %q", string(b))
	}
	return nil
}

// Battery is one physical battery. Optional paths are empty when the
// corresponding control is not available.
type Battery struct {
	ID                 string `json:"id"`
	Index              int    `json:"index"`
	TelemetryPath      string `json:"telemetryPath"`
	StartThresholdPath string `json:"startThresholdPath,omitempty"`
	StopThresholdPath  string `json:"stopThresholdPath,omitempty"`
	DischargeFlagPath  string `json:"dischargeFlagPath,omitempty"`
}

// Main reports whether b is the main (not auxiliary) battery.
func (b Battery) Main() bool {
	return b.Index == 0
}

// ThresholdPath returns the path of the given register.
func (b Battery) ThresholdPath(k Kind) string {
	if k == Start {
		return b.StartThresholdPath
	}
	return b.StopThresholdPath
}

// Probe is a raw detection record, before paths are resolved.
type Probe struct {
	ID    string
	Index int
	// Source is the path family the battery was found through.
	Source Method
}

// Telemetry is a point-in-time battery reading. Unknown numeric values are -1.
type Telemetry struct {
	State         string `json:"state"`
	ChargePercent int    `json:"chargePercent"`
	VoltageMV     int    `json:"voltageMV"`
	PowerMW       int    `json:"powerMW"`
	RemainingMWh  int    `json:"remainingMWh"`
	LastFullMWh   int    `json:"lastFullMWh"`
	CycleCount    int    `json:"cycleCount"`
	Manufacturer  string `json:"manufacturer,omitempty"`
	Model         string `json:"model,omitempty"`
	ACConnected   bool   `json:"acConnected"`
}

// NewTelemetry returns a Telemetry with every numeric value unknown.
func NewTelemetry() Telemetry {
	return Telemetry{
		ChargePercent: -1,
		VoltageMV:     -1,
		PowerMW:       -1,
		RemainingMWh:  -1,
		LastFullMWh:   -1,
		CycleCount:    -1,
	}
}

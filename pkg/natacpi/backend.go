package natacpi

import (
	"path"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// Backend is the telemetry-only back end used when no vendor applies.
type Backend struct {
	reader *Reader
	reg    *battery.Registry
	status battery.DriverStatus
}

var _ battery.Backend = &Backend{}

// Layout resolves a probe to its power_supply paths, without any controls.
func Layout(p battery.Probe) battery.Battery {
	return battery.Battery{
		ID:            p.ID,
		Index:         p.Index,
		TelemetryPath: path.Join(PowerSupplyDir, p.ID),
	}
}

// Probe enumerates batteries through the power_supply class. It fails with
// battery.ErrNoBatteries when there are none.
func Probe(reader *Reader) (*Backend, error) {
	probes, err := reader.Batteries()
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, battery.ErrNoBatteries
	}

	return &Backend{
		reader: reader,
		reg:    battery.NewRegistry(probes, Layout),
		status: battery.StatusUnknown,
	}, nil
}

// TelemetryOnly returns the capabilities of a back end that can only read.
func TelemetryOnly(vendor string) battery.Capabilities {
	return battery.Capabilities{
		Vendor:          vendor,
		ReadMethod:      battery.MethodNatACPI,
		ThresholdMethod: battery.MethodNone,
		DischargeMethod: battery.MethodNone,
	}
}

func (b *Backend) Name() string                       { return "natacpi" }
func (b *Backend) Status() battery.DriverStatus       { return b.status }
func (b *Backend) Capabilities() battery.Capabilities { return TelemetryOnly("generic") }
func (b *Backend) Registry() *battery.Registry        { return b.reg }
func (b *Backend) VerifyWrites() bool                 { return false }

func (b *Backend) ReadThreshold(battery.Battery, battery.Kind) (int, error) {
	return 0, battery.ErrUnsupported
}

func (b *Backend) WriteThreshold(battery.Battery, battery.Kind, int) error {
	return battery.ErrUnsupported
}

// ReadCharge is unsupported: there is no discharge control on this path.
func (b *Backend) ReadCharge(battery.Battery) (int, error) {
	return 0, battery.ErrUnsupported
}

func (b *Backend) ACConnected() (bool, error) {
	return b.reader.ACOnline()
}

func (b *Backend) ReadDischarge(battery.Battery) (bool, error) {
	return false, battery.ErrUnsupported
}

func (b *Backend) WriteDischarge(battery.Battery, bool) error {
	return battery.ErrUnsupported
}

func (b *Backend) Telemetry(bat battery.Battery) (battery.Telemetry, error) {
	return b.reader.Telemetry(bat.ID)
}

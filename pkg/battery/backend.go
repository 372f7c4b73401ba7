package battery

// Backend is implemented once per vendor family and selected at detection
// time. Operations without meaning for the vendor return ErrUnsupported.
type Backend interface {
	// Name is a short identifier, e.g. "tpsmapi".
	Name() string
	Status() DriverStatus
	Capabilities() Capabilities
	Registry() *Registry

	// ReadThreshold reads the currently effective value from hardware.
	ReadThreshold(b Battery, k Kind) (int, error)
	WriteThreshold(b Battery, k Kind, value int) error
	// VerifyWrites reports whether the hardware may silently discard a
	// threshold write, so the value has to be read back.
	VerifyWrites() bool

	// ReadCharge returns the state of charge through the path that also
	// controls discharge.
	ReadCharge(b Battery) (int, error)
	ACConnected() (bool, error)
	ReadDischarge(b Battery) (bool, error)
	WriteDischarge(b Battery, enable bool) error

	Telemetry(b Battery) (Telemetry, error)
}

// Package batterytest provides an in-memory battery.Backend for tests.
package batterytest

import (
	"sync"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// Write records one hardware write performed on a Fake.
type Write struct {
	Battery string
	Target  string // "start", "stop" or "discharge"
	Value   int
}

// Fake is a battery.Backend backed by plain fields. Hooks are called with the
// fake's lock held and must only touch fields, never call Fake methods.
type Fake struct {
	mu sync.Mutex

	Caps         battery.Capabilities
	DriverStatus battery.DriverStatus
	Reg          *battery.Registry
	Verify       bool

	Thresholds  map[string]map[battery.Kind]int
	Charge      map[string]int
	AC          bool
	Discharging map[string]bool

	// Discard makes the register accept writes without retaining them.
	Discard map[battery.Kind]bool
	// ReadErr and WriteErr fail the matching operation ("start", "stop",
	// "charge", "discharge", "ac").
	ReadErr  map[string]error
	WriteErr map[string]error

	// DischargeRead, when set, decides the discharge flag on every read.
	// n counts reads starting at 1.
	DischargeRead func(f *Fake, b battery.Battery, n int) bool
	// DischargeErr, when set, may fail a discharge flag read. n counts reads
	// starting at 1, failed ones included.
	DischargeErr func(n int) error
	// AfterWrite observes the thresholds after each successful threshold write.
	AfterWrite func(f *Fake, b battery.Battery)

	Writes         []Write
	dischargeReads int
}

var _ battery.Backend = &Fake{}

// New returns a Fake for the given batteries with vendor A style
// capabilities: start 2..96, stop 6..100, gap 4, everything via the vendor.
func New(ids ...string) *Fake {
	probes := make([]battery.Probe, 0, len(ids))
	for i, id := range ids {
		probes = append(probes, battery.Probe{ID: id, Index: i, Source: battery.MethodVendor})
	}

	f := &Fake{
		Caps: battery.Capabilities{
			Vendor:          "fake",
			ReadMethod:      battery.MethodVendor,
			ThresholdMethod: battery.MethodVendor,
			DischargeMethod: battery.MethodVendor,
			DefaultStart:    96,
			DefaultStop:     100,
			StartRange:      battery.Span(2, 96),
			StopRange:       battery.Span(6, 100),
			MinGap:          4,
		},
		DriverStatus: battery.StatusSupported,
		Reg: battery.NewRegistry(probes, func(p battery.Probe) battery.Battery {
			return battery.Battery{
				ID:                 p.ID,
				Index:              p.Index,
				TelemetryPath:      "/fake/" + p.ID,
				StartThresholdPath: "/fake/" + p.ID + "/start",
				StopThresholdPath:  "/fake/" + p.ID + "/stop",
				DischargeFlagPath:  "/fake/" + p.ID + "/discharge",
			}
		}),
		Thresholds:  map[string]map[battery.Kind]int{},
		Charge:      map[string]int{},
		Discharging: map[string]bool{},
		Discard:     map[battery.Kind]bool{},
		ReadErr:     map[string]error{},
		WriteErr:    map[string]error{},
	}
	for _, id := range ids {
		f.Thresholds[id] = map[battery.Kind]int{battery.Start: 96, battery.Stop: 100}
	}

	return f
}

// SetThresholds sets the effective thresholds of a battery.
func (f *Fake) SetThresholds(id string, start, stop int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Thresholds[id] = map[battery.Kind]int{battery.Start: start, battery.Stop: stop}
}

// Threshold returns the effective threshold of a battery.
func (f *Fake) Threshold(id string, k battery.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Thresholds[id][k]
}

// WriteLog returns a copy of all recorded writes.
func (f *Fake) WriteLog() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.Writes...)
}

// DischargeActive returns the current discharge flag of a battery.
func (f *Fake) DischargeActive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Discharging[id]
}

func (f *Fake) Name() string                       { return "fake" }
func (f *Fake) Status() battery.DriverStatus       { return f.DriverStatus }
func (f *Fake) Capabilities() battery.Capabilities { return f.Caps }
func (f *Fake) Registry() *battery.Registry        { return f.Reg }
func (f *Fake) VerifyWrites() bool                 { return f.Verify }

func (f *Fake) ReadThreshold(b battery.Battery, k battery.Kind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErr[k.String()]; err != nil {
		return 0, err
	}
	if _, ok := f.Caps.LegalRange(k); !ok {
		return 0, battery.ErrUnsupported
	}
	return f.Thresholds[b.ID][k], nil
}

func (f *Fake) WriteThreshold(b battery.Battery, k battery.Kind, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErr[k.String()]; err != nil {
		return err
	}
	f.Writes = append(f.Writes, Write{Battery: b.ID, Target: k.String(), Value: value})
	if f.Discard[k] {
		return nil
	}
	if f.Thresholds[b.ID] == nil {
		f.Thresholds[b.ID] = map[battery.Kind]int{}
	}
	f.Thresholds[b.ID][k] = value
	if f.AfterWrite != nil {
		f.AfterWrite(f, b)
	}
	return nil
}

func (f *Fake) ReadCharge(b battery.Battery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErr["charge"]; err != nil {
		return 0, err
	}
	return f.Charge[b.ID], nil
}

func (f *Fake) ACConnected() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErr["ac"]; err != nil {
		return false, err
	}
	return f.AC, nil
}

func (f *Fake) ReadDischarge(b battery.Battery) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Caps.CanDischarge() {
		return false, battery.ErrUnsupported
	}
	if err := f.ReadErr["discharge"]; err != nil {
		return false, err
	}
	f.dischargeReads++
	if f.DischargeErr != nil {
		if err := f.DischargeErr(f.dischargeReads); err != nil {
			return false, err
		}
	}
	if f.DischargeRead != nil {
		f.Discharging[b.ID] = f.DischargeRead(f, b, f.dischargeReads)
	}
	return f.Discharging[b.ID], nil
}

func (f *Fake) WriteDischarge(b battery.Battery, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Caps.CanDischarge() {
		return battery.ErrUnsupported
	}
	if err := f.WriteErr["discharge"]; err != nil {
		return err
	}
	v := 0
	if enable {
		v = 1
	}
	f.Writes = append(f.Writes, Write{Battery: b.ID, Target: "discharge", Value: v})
	f.Discharging[b.ID] = enable
	return nil
}

func (f *Fake) Telemetry(b battery.Battery) (battery.Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := battery.NewTelemetry()
	t.ChargePercent = f.Charge[b.ID]
	t.ACConnected = f.AC
	t.State = "idle"
	if f.Discharging[b.ID] {
		t.State = "discharging"
	}
	return t, nil
}

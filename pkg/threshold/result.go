package threshold

import (
	"fmt"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// Source tells where a request comes from.
type Source int

const (
	// Interactive requests come from a user and are always applied.
	Interactive Source = iota
	// FromConfig requests come from the configuration file. A battery
	// without any key is not configured, which is not an error.
	FromConfig
)

func (s Source) String() string {
	if s == FromConfig {
		return "config"
	}
	return "interactive"
}

// Outcome is the overall result of a threshold write. Outcomes from
// DiscardedByFirmware on are ordered by severity.
type Outcome int

const (
	Success Outcome = iota
	NotConfigured
	Unsupported
	StartOutOfRange
	StopOutOfRange
	GapViolated
	ReadError
	DiscardedByFirmware
	WriteError
)

var outcomeNames = map[Outcome]string{
	Success:             "success",
	NotConfigured:       "not configured",
	Unsupported:         "unsupported",
	StartOutOfRange:     "start threshold out of range",
	StopOutOfRange:      "stop threshold out of range",
	GapViolated:         "threshold gap violated",
	ReadError:           "read error",
	DiscardedByFirmware: "discarded by firmware",
	WriteError:          "write error",
}

func (o Outcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	for k, v := range outcomeNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(b))
}

// Failed reports whether o should be treated as an error by callers.
func (o Outcome) Failed() bool {
	return o != Success && o != NotConfigured
}

// RegisterStatus is what happened to one register.
type RegisterStatus int

const (
	// Unchanged means the register already held the requested value.
	Unchanged RegisterStatus = iota
	Written
	// NotApplicable means the vendor has no such register.
	NotApplicable
	// Discarded means the write succeeded but the hardware kept another
	// value.
	Discarded
	Failed
)

var registerStatusNames = map[RegisterStatus]string{
	Unchanged:     "no change",
	Written:       "written",
	NotApplicable: "not applicable",
	Discarded:     "discarded",
	Failed:        "failed",
}

func (s RegisterStatus) String() string {
	if n, ok := registerStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RegisterStatus(%d)", int(s))
}

func (s RegisterStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RegisterStatus) UnmarshalText(b []byte) error {
	for k, v := range registerStatusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown register status %q", string(b))
}

// Pair is a validated pair of thresholds. Start is zero when the vendor has
// no start register.
type Pair struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// Register reports one register of a write.
type Register struct {
	Kind   battery.Kind   `json:"kind"`
	Old    int            `json:"old"`
	New    int            `json:"new"`
	Status RegisterStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// Result is the full report of a threshold write.
type Result struct {
	Battery   string  `json:"battery"`
	Source    string  `json:"source"`
	Outcome   Outcome `json:"outcome"`
	Requested Pair    `json:"requested"`
	Previous  Pair    `json:"previous"`
	// Registers are listed in write order.
	Registers []Register `json:"registers,omitempty"`
	// LegalRange is the legal range text shown on validation failures.
	LegalRange string `json:"legalRange,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Order returns the registers in the order they were written.
func (r Result) Order() []battery.Kind {
	o := make([]battery.Kind, 0, len(r.Registers))
	for _, reg := range r.Registers {
		if reg.Status != NotApplicable {
			o = append(o, reg.Kind)
		}
	}
	return o
}

// Changed counts the registers that were written successfully.
func (r Result) Changed() int {
	n := 0
	for _, reg := range r.Registers {
		if reg.Status == Written {
			n++
		}
	}
	return n
}

// Register returns the report of the given register.
func (r Result) Register(k battery.Kind) (Register, bool) {
	for _, reg := range r.Registers {
		if reg.Kind == k {
			return reg, true
		}
	}
	return Register{}, false
}

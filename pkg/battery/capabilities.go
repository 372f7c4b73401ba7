package battery

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive integer range or a discrete set of legal values.
// The zero Range means "not applicable".
type Range struct {
	Min    int   `json:"min,omitempty"`
	Max    int   `json:"max,omitempty"`
	Values []int `json:"values,omitempty"`
}

// Span returns the inclusive range [lo, hi].
func Span(lo, hi int) Range {
	return Range{Min: lo, Max: hi}
}

// OneOf returns a range consisting of the given discrete values.
func OneOf(values ...int) Range {
	return Range{Values: append([]int(nil), values...)}
}

// Applicable reports whether r constrains anything.
func (r Range) Applicable() bool {
	return len(r.Values) > 0 || r.Max > 0
}

// Contains reports whether v is legal.
func (r Range) Contains(v int) bool {
	if len(r.Values) > 0 {
		for _, x := range r.Values {
			if x == v {
				return true
			}
		}
		return false
	}
	return v >= r.Min && v <= r.Max
}

// String renders the range the way users are told about it, e.g. "2..96" or
// "80, 100".
func (r Range) String() string {
	if !r.Applicable() {
		return "n/a"
	}
	if len(r.Values) > 0 {
		s := make([]string, 0, len(r.Values))
		for _, v := range r.Values {
			s = append(s, strconv.Itoa(v))
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// Capabilities is produced once by detection and never modified.
type Capabilities struct {
	Vendor          string `json:"vendor"`
	ReadMethod      Method `json:"readMethod"`
	ThresholdMethod Method `json:"thresholdMethod"`
	DischargeMethod Method `json:"dischargeMethod"`
	DefaultStart    int    `json:"defaultStart,omitempty"`
	DefaultStop     int    `json:"defaultStop,omitempty"`
	StartRange      Range  `json:"startRange"`
	StopRange       Range  `json:"stopRange"`
	// MinGap is the minimum stop - start. Zero when not applicable.
	MinGap int `json:"minGap,omitempty"`
}

// LegalRange returns the legal range of the given register and whether the
// register exists at all.
func (c Capabilities) LegalRange(k Kind) (Range, bool) {
	r := c.StopRange
	if k == Start {
		r = c.StartRange
	}
	return r, r.Applicable()
}

// Default returns the vendor default of the given register.
func (c Capabilities) Default(k Kind) int {
	if k == Start {
		return c.DefaultStart
	}
	return c.DefaultStop
}

// CanWriteThresholds reports whether thresholds can be changed.
func (c Capabilities) CanWriteThresholds() bool {
	return c.ThresholdMethod != "" && c.ThresholdMethod != MethodNone
}

// CanDischarge reports whether forced discharge is available.
func (c Capabilities) CanDischarge() bool {
	return c.DischargeMethod != "" && c.DischargeMethod != MethodNone
}

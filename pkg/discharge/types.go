package discharge

import (
	"fmt"
	"time"
)

// State is the state of a discharge session.
type State int

const (
	Idle State = iota
	Requested
	Starting
	FailedToStart
	Running
	Cancelled
	InterruptedByAC
	NotEmptied
	Done
)

var stateNames = map[State]string{
	Idle:            "idle",
	Requested:       "requested",
	Starting:        "starting",
	FailedToStart:   "failed to start",
	Running:         "running",
	Cancelled:       "cancelled",
	InterruptedByAC: "interrupted by AC",
	NotEmptied:      "not emptied",
	Done:            "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for k, v := range stateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown discharge state %q", string(b))
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case FailedToStart, Cancelled, InterruptedByAC, NotEmptied, Done:
		return true
	}
	return false
}

// Outcome classifies how a session ended.
type Outcome int

const (
	// Pending means the session has not ended yet.
	Pending Outcome = iota
	Success
	Unsupported
	AlreadyRunning
	StopThresholdTooLow
	ChargeLevelTooHigh
	ChargeUnknown
	ReadError
	HardwareMalfunction
	OutcomeCancelled
	OutcomeInterruptedByAC
	OutcomeNotEmptied
)

var outcomeNames = map[Outcome]string{
	Pending:                "pending",
	Success:                "success",
	Unsupported:            "unsupported",
	AlreadyRunning:         "already running",
	StopThresholdTooLow:    "stop threshold too low",
	ChargeLevelTooHigh:     "charge level too high",
	ChargeUnknown:          "charge level unknown",
	ReadError:              "read error",
	HardwareMalfunction:    "hardware malfunction",
	OutcomeCancelled:       "cancelled",
	OutcomeInterruptedByAC: "interrupted by AC",
	OutcomeNotEmptied:      "not emptied",
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
	return fmt.Errorf("unknown discharge outcome %q", string(b))
}

// Failed reports whether o is an error. A cancelled session and one ended by
// plugging in AC are not.
func (o Outcome) Failed() bool {
	switch o {
	case Pending, Success, OutcomeCancelled, OutcomeInterruptedByAC:
		return false
	}
	return true
}

// View is a snapshot of a session.
type View struct {
	Battery   string    `json:"battery"`
	State     State     `json:"state"`
	Outcome   Outcome   `json:"outcome"`
	Charge    int       `json:"charge"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

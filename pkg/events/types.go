package events

import "encoding/json"

// Event name constants
const (
	DischargeState    = "discharge.state"
	ThresholdsApplied = "thresholds.applied"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// DischargeStateEvent is the typed payload for discharge.state.
type DischargeStateEvent struct {
	Battery string `json:"battery"`
	State   string `json:"state"`
	Outcome string `json:"outcome"`
	Charge  int    `json:"charge"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// ThresholdsAppliedEvent is the typed payload for thresholds.applied.
type ThresholdsAppliedEvent struct {
	Battery string `json:"battery"`
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
	Start   int    `json:"start"`
	Stop    int    `json:"stop"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.DischargeStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Battery, payload.State)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

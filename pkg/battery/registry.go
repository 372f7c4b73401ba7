package battery

// DefaultID resolves to the first detected battery.
const DefaultID = "DEFAULT"

// Layout turns a raw probe record into a Battery with concrete paths.
type Layout func(p Probe) Battery

// Registry holds the detected batteries in detection order.
type Registry struct {
	batteries []Battery
}

// NewRegistry resolves every probe through layout, keeping the order.
func NewRegistry(probes []Probe, layout Layout) *Registry {
	r := &Registry{batteries: make([]Battery, 0, len(probes))}
	for _, p := range probes {
		r.batteries = append(r.batteries, layout(p))
	}
	return r
}

// Resolve returns the battery with the given id. DefaultID yields the first
// battery. A missing id is reported through ok, not as an error.
func (r *Registry) Resolve(id string) (b Battery, ok bool) {
	if r == nil || len(r.batteries) == 0 {
		return Battery{}, false
	}
	if id == DefaultID || id == "" {
		return r.batteries[0], true
	}
	for _, b := range r.batteries {
		if b.ID == id {
			return b, true
		}
	}
	return Battery{}, false
}

// All returns a copy of all batteries.
func (r *Registry) All() []Battery {
	if r == nil {
		return nil
	}
	return append([]Battery(nil), r.batteries...)
}

// Len returns the number of batteries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.batteries)
}

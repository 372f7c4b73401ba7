// Package powerinfo reads system-wide battery figures through the
// platform battery library. They complement the per-driver telemetry with
// design capacity and energy rate.
package powerinfo

// Battery is a minimal system view of one battery.
// Units:
// - Design, Full, Current: mWh
// - ChargeRate: mW (negative when discharging)
// - DesignVoltage: Volts
type Battery struct {
	State         string  `json:"State"`
	Current       int     `json:"Current"`
	Full          int     `json:"Full"`
	Design        int     `json:"Design"`
	ChargeRate    int     `json:"ChargeRate"`
	DesignVoltage float64 `json:"DesignVoltage"`
}

// Health returns the full capacity relative to the design capacity in
// percent, or -1 if unknown.
func (b Battery) Health() int {
	if b.Design <= 0 || b.Full <= 0 {
		return -1
	}
	return b.Full * 100 / b.Design
}

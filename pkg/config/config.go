package config

import "github.com/charlie0129/thinkbatt/pkg/battery"

// Keys understood in the configuration file and the environment.
const (
	KeyStartThreshPrefix         = "START_CHARGE_THRESH_"
	KeyStopThreshPrefix          = "STOP_CHARGE_THRESH_"
	KeyNatACPIEnable             = "NATACPI_ENABLE"
	KeyTPSmapiEnable             = "TPSMAPI_ENABLE"
	KeyRestoreThresholdsOnResume = "RESTORE_THRESHOLDS_ON_RESUME"
	KeyReapplyThresholdsCron     = "REAPPLY_THRESHOLDS_CRON"
	KeyAllowNonRootAccess        = "ALLOW_NON_ROOT_ACCESS"
)

type Config interface {
	// ChargeThreshold returns the raw configured threshold of a battery and
	// whether it is configured at all.
	ChargeThreshold(k battery.Kind, id string) (string, bool)
	NatACPIEnabled() bool
	TPSmapiEnabled() bool
	RestoreThresholdsOnResume() bool
	ReapplyThresholdsCron() string
	AllowNonRootAccess() bool

	SetChargeThreshold(k battery.Kind, id string, value string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// ThresholdKey returns the configuration key of a battery's threshold.
func ThresholdKey(k battery.Kind, id string) string {
	if k == battery.Start {
		return KeyStartThreshPrefix + id
	}
	return KeyStopThreshPrefix + id
}

package threshold

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// ConfigSource provides configured threshold values per battery id.
type ConfigSource interface {
	// ChargeThreshold returns the raw configured value and whether the key
	// exists.
	ChargeThreshold(k battery.Kind, id string) (string, bool)
}

// Requests reads the configured requests of a battery. Missing keys are
// unset.
func Requests(cfg ConfigSource, id string) (start, stop Request) {
	if v, ok := cfg.ChargeThreshold(battery.Start, id); ok {
		start = ParseRequest(v)
	}
	if v, ok := cfg.ChargeThreshold(battery.Stop, id); ok {
		stop = ParseRequest(v)
	}
	return start, stop
}

// ApplyConfig applies the configured thresholds to every detected battery.
// Keys naming batteries that were not detected are never looked at.
func (c *Controller) ApplyConfig(cfg ConfigSource) []Result {
	var results []Result
	for _, bat := range c.backend.Registry().All() {
		start, stop := Requests(cfg, bat.ID)
		res := c.Write(bat, start, stop, FromConfig)
		results = append(results, res)
	}

	logrus.WithField("batteries", len(results)).Debug("configured thresholds processed")
	return results
}

// Worst returns the most severe failing outcome of results, or Success.
func Worst(results []Result) Outcome {
	worst := Success
	for _, r := range results {
		if r.Outcome.Failed() && r.Outcome > worst {
			worst = r.Outcome
		}
	}
	return worst
}

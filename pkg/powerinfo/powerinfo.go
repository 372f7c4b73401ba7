package powerinfo

import (
	"strings"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// getAll is a test seam.
var getAll = battery.GetAll

// Batteries returns every battery the platform library knows about, in its
// enumeration order. A partial failure is logged and the readable batteries
// are returned.
func Batteries() ([]Battery, error) {
	bats, err := getAll()
	if err != nil && len(bats) == 0 {
		return nil, pkgerrors.Wrap(err, "failed to read batteries")
	}
	if err != nil {
		logrus.WithError(err).Debug("some batteries could not be read")
	}

	ret := make([]Battery, 0, len(bats))
	for _, bat := range bats {
		if bat == nil {
			continue
		}
		b := Battery{
			State:         strings.ToLower(bat.State.String()),
			Current:       int(bat.Current),
			Full:          int(bat.Full),
			Design:        int(bat.Design),
			ChargeRate:    int(bat.ChargeRate),
			DesignVoltage: bat.DesignVoltage,
		}
		if b.State == "discharging" {
			b.ChargeRate = -b.ChargeRate
		}
		ret = append(ret, b)
	}

	return ret, nil
}

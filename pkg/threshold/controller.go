// Package threshold validates and applies charge thresholds.
package threshold

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
)

// Controller applies thresholds through a back end.
type Controller struct {
	backend battery.Backend
}

// New returns a Controller for b.
func New(b battery.Backend) *Controller {
	return &Controller{backend: b}
}

// Validate checks a request against the capabilities without touching the
// hardware. On failure the returned Result carries the outcome and the legal
// range text. ok is true when the pair may be written.
func (c *Controller) Validate(start, stop Request, src Source) (p Pair, res Result, ok bool) {
	caps := c.backend.Capabilities()
	res = Result{Source: src.String()}

	if src == FromConfig && !start.IsSet() && !stop.IsSet() {
		res.Outcome = NotConfigured
		return p, res, false
	}
	if !caps.CanWriteThresholds() {
		res.Outcome = Unsupported
		res.Message = "charge thresholds are not supported on this hardware"
		return p, res, false
	}

	startRange, hasStart := caps.LegalRange(battery.Start)
	stopRange, _ := caps.LegalRange(battery.Stop)

	if hasStart {
		v, valid := start.resolve(caps.DefaultStart)
		if !valid || !startRange.Contains(v) {
			res.Outcome = StartOutOfRange
			res.LegalRange = startRange.String()
			res.Message = fmt.Sprintf("start threshold %s is out of range, legal values: %s", start, startRange)
			return p, res, false
		}
		p.Start = v
	}

	v, valid := stop.resolve(caps.DefaultStop)
	if !valid || !stopRange.Contains(v) {
		res.Outcome = StopOutOfRange
		res.LegalRange = stopRange.String()
		res.Message = fmt.Sprintf("stop threshold %s is out of range, legal values: %s", stop, stopRange)
		return p, res, false
	}
	p.Stop = v

	if hasStart && p.Start+caps.MinGap > p.Stop {
		res.Outcome = GapViolated
		res.LegalRange = fmt.Sprintf("stop >= start + %d", caps.MinGap)
		res.Message = fmt.Sprintf("stop threshold %d must be at least start threshold %d + %d", p.Stop, p.Start, caps.MinGap)
		return p, res, false
	}

	res.Requested = p
	return p, res, true
}

// Write validates and applies a threshold pair to bat.
//
// Registers already holding the requested value are not written. When the
// new start would conflict with the old stop, the stop register is written
// first so the hardware never sees start + gap > stop. Both writes are
// attempted even if the first one fails.
func (c *Controller) Write(bat battery.Battery, start, stop Request, src Source) Result {
	log := logrus.WithFields(logrus.Fields{
		"battery": bat.ID,
		"source":  src,
	})

	p, res, ok := c.Validate(start, stop, src)
	res.Battery = bat.ID
	if !ok {
		if res.Outcome == NotConfigured {
			log.Debug("thresholds not configured")
		} else {
			log.WithField("outcome", res.Outcome).Warn(res.Message)
		}
		return res
	}

	caps := c.backend.Capabilities()
	_, hasStart := caps.LegalRange(battery.Start)

	old := Pair{}
	var err error
	if hasStart {
		if old.Start, err = c.backend.ReadThreshold(bat, battery.Start); err != nil {
			return readFailed(res, log, battery.Start, err)
		}
	}
	if old.Stop, err = c.backend.ReadThreshold(bat, battery.Stop); err != nil {
		return readFailed(res, log, battery.Stop, err)
	}
	res.Previous = old

	order := []battery.Kind{battery.Start, battery.Stop}
	if p.Start+caps.MinGap > old.Stop {
		order = []battery.Kind{battery.Stop, battery.Start}
	}

	res.Outcome = Success
	for _, k := range order {
		if k == battery.Start && !hasStart {
			res.Registers = append(res.Registers, Register{Kind: k, Status: NotApplicable})
			continue
		}
		reg := c.apply(bat, k, pick(old, k), pick(p, k))
		res.Registers = append(res.Registers, reg)
		log.WithFields(logrus.Fields{
			"register": k,
			"old":      reg.Old,
			"new":      reg.New,
			"status":   reg.Status,
		}).Debug("threshold register processed")

		switch {
		case reg.Status == Failed:
			res.Outcome = WriteError
		case reg.Status == Discarded && res.Outcome < DiscardedByFirmware:
			res.Outcome = DiscardedByFirmware
		}
	}

	if res.Outcome == Success {
		log.WithFields(logrus.Fields{
			"start":   p.Start,
			"stop":    p.Stop,
			"changed": res.Changed(),
		}).Info("charge thresholds applied")
	} else {
		res.Message = fmt.Sprintf("failed to apply charge thresholds: %s", res.Outcome)
		log.WithField("outcome", res.Outcome).Error(res.Message)
	}

	return res
}

func (c *Controller) apply(bat battery.Battery, k battery.Kind, old, v int) Register {
	reg := Register{Kind: k, Old: old, New: v, Status: Unchanged}
	if old == v {
		return reg
	}

	if err := c.backend.WriteThreshold(bat, k, v); err != nil {
		reg.Status = Failed
		reg.Error = err.Error()
		return reg
	}

	reg.Status = Written
	if !c.backend.VerifyWrites() {
		return reg
	}

	got, err := c.backend.ReadThreshold(bat, k)
	switch {
	case err != nil:
		reg.Status = Discarded
		reg.Error = err.Error()
	case got != v:
		reg.Status = Discarded
		reg.Error = fmt.Sprintf("hardware kept %d", got)
	}

	return reg
}

// Read returns the currently effective thresholds of bat. Start is zero when
// the vendor has no start register.
func (c *Controller) Read(bat battery.Battery) (Pair, error) {
	var p Pair
	var err error
	if _, ok := c.backend.Capabilities().LegalRange(battery.Start); ok {
		if p.Start, err = c.backend.ReadThreshold(bat, battery.Start); err != nil {
			return p, err
		}
	}
	p.Stop, err = c.backend.ReadThreshold(bat, battery.Stop)
	return p, err
}

func readFailed(res Result, log *logrus.Entry, k battery.Kind, err error) Result {
	res.Outcome = ReadError
	if errors.Is(err, battery.ErrUnsupported) {
		res.Outcome = Unsupported
	}
	res.Message = fmt.Sprintf("failed to read current %s threshold: %v", k, err)
	log.WithError(err).Error(res.Message)
	return res
}

func pick(p Pair, k battery.Kind) int {
	if k == battery.Start {
		return p.Start
	}
	return p.Stop
}

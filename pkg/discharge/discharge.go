// Package discharge runs forced discharge sessions: the battery is drained
// to empty on AC power, with at most one session on the whole system.
package discharge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/flock"
)

const (
	// MinStopThreshold is the lowest stop threshold a session may start with.
	MinStopThreshold = 6
	// EmptyCharge is the charge level at which a battery counts as empty.
	EmptyCharge = 1

	DefaultStartAttempts = 15
	DefaultStartInterval = time.Second
	DefaultPollInterval  = 5 * time.Second
	// DefaultMaxReadErrors consecutive unreadable polls end a running session.
	DefaultMaxReadErrors = 12
)

// Locker is the system-wide session lock.
type Locker interface {
	// TryLock fails with flock.ErrLocked when the lock is held elsewhere.
	TryLock() error
	Unlock() error
}

var _ Locker = &flock.Lock{}

// Controller creates and runs discharge sessions.
type Controller struct {
	Backend battery.Backend
	Lock    Locker

	StartAttempts int
	StartInterval time.Duration
	PollInterval  time.Duration
	MaxReadErrors int

	// OnTransition observes every state change.
	OnTransition func(View)
	// OnTick observes live telemetry on every poll while running.
	OnTick func(View, battery.Telemetry)
}

// New returns a Controller with the hardware timings.
func New(b battery.Backend, lock Locker) *Controller {
	return &Controller{
		Backend:       b,
		Lock:          lock,
		StartAttempts: DefaultStartAttempts,
		StartInterval: DefaultStartInterval,
		PollInterval:  DefaultPollInterval,
		MaxReadErrors: DefaultMaxReadErrors,
	}
}

// Session is one discharge attempt.
type Session struct {
	c       *Controller
	battery battery.Battery
	locked  bool
	done    chan struct{}

	mu        sync.Mutex
	view      View
	cancel    context.CancelFunc
	cancelled bool
}

func (c *Controller) newSession(bat battery.Battery) *Session {
	now := time.Now()
	return &Session{
		c:       c,
		battery: bat,
		done:    make(chan struct{}),
		view: View{
			Battery:   bat.ID,
			State:     Idle,
			Charge:    -1,
			StartedAt: now,
			UpdatedAt: now,
		},
	}
}

// Prepare acquires the lock and checks the preconditions without touching
// the hardware. A rejected session is already finished: its View carries the
// reason and Run must not be called. An accepted session holds the lock until
// Run returns.
func (c *Controller) Prepare(bat battery.Battery) (s *Session, ok bool) {
	s = c.newSession(bat)
	log := logrus.WithField("battery", bat.ID)

	if !c.Backend.Capabilities().CanDischarge() {
		s.reject(Unsupported, "forced discharge is not supported on this hardware")
		return s, false
	}

	if err := c.Lock.TryLock(); err != nil {
		if errors.Is(err, flock.ErrLocked) {
			s.reject(AlreadyRunning, "a discharge is already in progress")
		} else {
			s.reject(ReadError, fmt.Sprintf("failed to acquire discharge lock: %v", err))
		}
		return s, false
	}
	s.locked = true
	s.transition(Requested, Pending, "")

	stop, err := c.Backend.ReadThreshold(bat, battery.Stop)
	if err != nil {
		s.reject(ReadError, fmt.Sprintf("failed to read stop threshold: %v", err))
		return s, false
	}
	if stop < MinStopThreshold {
		s.reject(StopThresholdTooLow, fmt.Sprintf("stop threshold %d is below %d", stop, MinStopThreshold))
		return s, false
	}

	charge, err := c.Backend.ReadCharge(bat)
	if err != nil {
		log.WithError(err).Warn("charge level not readable through the discharge path")
		s.reject(ChargeUnknown, "charge level unknown")
		return s, false
	}
	s.setCharge(charge)
	if limit := stop - c.Backend.Capabilities().MinGap; charge > limit {
		s.reject(ChargeLevelTooHigh, fmt.Sprintf("charge level %d%% is above %d%% (stop threshold minus gap)", charge, limit))
		return s, false
	}

	return s, true
}

// Run prepares and runs a session to completion.
func (c *Controller) Run(ctx context.Context, bat battery.Battery) *Session {
	s, ok := c.Prepare(bat)
	if ok {
		s.Run(ctx)
	}
	return s
}

// Run drives an accepted session until it ends or ctx is cancelled. A
// cancelled session resets the discharge flag. The lock is released on every
// path.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	if s.cancelled {
		cancel()
	}
	s.mu.Unlock()

	defer s.close()
	defer cancel()
	defer s.release()

	s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	c := s.c
	bat := s.battery
	log := logrus.WithField("battery", bat.ID)

	if err := c.Backend.WriteDischarge(bat, true); err != nil {
		log.WithError(err).Error("failed to enable forced discharge")
		s.transition(FailedToStart, HardwareMalfunction, fmt.Sprintf("failed to enable forced discharge: %v", err))
		return
	}
	s.transition(Starting, Pending, "")

	started := false
	for i := 0; i < c.StartAttempts; i++ {
		active, err := c.Backend.ReadDischarge(bat)
		if err == nil && active {
			started = true
			break
		}
		if !sleep(ctx, c.StartInterval) {
			s.abort()
			return
		}
	}
	if !started {
		s.disable(log)
		s.transition(FailedToStart, HardwareMalfunction, "battery did not start discharging")
		return
	}
	s.transition(Running, Pending, "")

	readErrors := 0
	for {
		if !sleep(ctx, c.PollInterval) {
			s.abort()
			return
		}

		active, err := c.Backend.ReadDischarge(bat)
		if err != nil {
			readErrors++
			log.WithError(err).WithField("attempt", readErrors).Warn("failed to read discharge flag")
			if readErrors >= c.MaxReadErrors {
				s.disable(log)
				s.transition(NotEmptied, HardwareMalfunction, fmt.Sprintf("discharge flag unreadable: %v", err))
				return
			}
			continue
		}
		readErrors = 0
		if !active {
			break
		}

		t, err := c.Backend.Telemetry(bat)
		if err != nil {
			log.WithError(err).Debug("failed to read telemetry")
			continue
		}
		if t.ChargePercent >= 0 {
			s.setCharge(t.ChargePercent)
		}
		if c.OnTick != nil {
			c.OnTick(s.View(), t)
		}
	}

	s.finish(log)
}

// finish classifies the end of a session whose discharge flag went inactive.
func (s *Session) finish(log *logrus.Entry) {
	c := s.c
	charge, err := c.Backend.ReadCharge(s.battery)
	if err != nil {
		log.WithError(err).Warn("failed to read final charge level")
		s.transition(NotEmptied, ChargeUnknown, "discharge stopped, final charge level unknown")
		return
	}
	s.setCharge(charge)

	if charge <= EmptyCharge {
		s.transition(Done, Success, "")
		return
	}

	ac, err := c.Backend.ACConnected()
	if err != nil {
		log.WithError(err).Warn("failed to read AC state")
	}
	if err == nil && ac {
		s.transition(InterruptedByAC, OutcomeInterruptedByAC, fmt.Sprintf("discharge interrupted by AC at %d%%", charge))
		return
	}
	s.transition(NotEmptied, OutcomeNotEmptied, fmt.Sprintf("discharge stopped by firmware at %d%%", charge))
}

// abort handles cancellation: the flag is reset before anything else.
func (s *Session) abort() {
	log := logrus.WithField("battery", s.battery.ID)
	s.disable(log)
	s.transition(Cancelled, OutcomeCancelled, "discharge cancelled")
}

func (s *Session) disable(log *logrus.Entry) {
	if err := s.c.Backend.WriteDischarge(s.battery, false); err != nil {
		log.WithError(err).Error("failed to disable forced discharge")
	}
}

func (s *Session) release() {
	if !s.locked {
		return
	}
	s.locked = false
	if err := s.c.Lock.Unlock(); err != nil {
		logrus.WithError(err).Warn("failed to release discharge lock")
	}
}

func (s *Session) reject(o Outcome, msg string) {
	s.release()
	logrus.WithFields(logrus.Fields{
		"battery": s.battery.ID,
		"outcome": o,
	}).Warn(msg)

	s.mu.Lock()
	s.view.Outcome = o
	s.view.Message = msg
	s.view.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.close()
}

func (s *Session) transition(to State, o Outcome, msg string) {
	s.mu.Lock()
	s.view.State = to
	s.view.Outcome = o
	s.view.Message = msg
	s.view.UpdatedAt = time.Now()
	v := s.view
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"battery": v.Battery,
		"state":   v.State,
		"charge":  v.Charge,
	}).Info("discharge state changed")

	if s.c.OnTransition != nil {
		s.c.OnTransition(v)
	}
}

func (s *Session) setCharge(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Charge = v
	s.view.UpdatedAt = time.Now()
}

func (s *Session) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Cancel asks a running session to stop. It returns immediately; wait on
// Done for the flag reset.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the session has ended and the lock is released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Battery returns the battery of the session.
func (s *Session) Battery() battery.Battery {
	return s.battery
}

func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

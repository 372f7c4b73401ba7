package daemon

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	logindManager   = "org.freedesktop.login1.Manager"
	prepareForSleep = logindManager + ".PrepareForSleep"
)

// ResumeMonitor listens for systemd-logind PrepareForSleep signals and
// reports every wake up. Some firmware resets charge thresholds across
// suspend, so the daemon re-applies them.
type ResumeMonitor struct {
	conn *dbus.Conn
	done chan struct{}
	wake chan struct{}
}

// NewResumeMonitor connects to the system bus.
func NewResumeMonitor() (*ResumeMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, err
	}

	m := &ResumeMonitor{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
	go m.listen()
	return m, nil
}

// Wake returns a channel that receives a value each time the system wakes up.
func (m *ResumeMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *ResumeMonitor) Close() {
	close(m.done)
}

func (m *ResumeMonitor) listen() {
	ch := make(chan *dbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			if woke, ok := isWakeSignal(sig); ok {
				if !woke {
					logrus.Debug("system going to sleep")
					continue
				}
				logrus.Info("system woke up")
				select {
				case m.wake <- struct{}{}:
				default:
				}
			}
		case <-m.done:
			return
		}
	}
}

// isWakeSignal decodes a PrepareForSleep signal. ok is false for any other
// signal.
func isWakeSignal(sig *dbus.Signal) (woke bool, ok bool) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) < 1 {
		return false, false
	}
	active, isBool := sig.Body[0].(bool)
	if !isBool {
		return false, false
	}
	return !active, true
}

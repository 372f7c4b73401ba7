// Package daemon serves the battery controls over HTTP on a unix socket and
// keeps the configured thresholds applied.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/config"
	"github.com/charlie0129/thinkbatt/pkg/detect"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/events"
	"github.com/charlie0129/thinkbatt/pkg/flock"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

// ErrDischargeRunning is returned when a task must not run during a
// discharge session.
var ErrDischargeRunning = errors.New("a discharge session is running")

// Options configure Run.
type Options struct {
	ConfigPath   string
	SocketPath   string
	LockPath     string
	AllowNonRoot bool
	// Root is prepended to every sysfs path. Empty for the real system.
	Root string
}

// Daemon owns the selected back end and at most one discharge session.
type Daemon struct {
	conf       config.Config
	backend    battery.Backend
	attempts   []detect.Attempt
	thresholds *threshold.Controller
	discharger *discharge.Controller
	hub        *events.EventHub
	scheduler  *Scheduler

	mu      sync.Mutex
	session *discharge.Session
}

// New returns a Daemon for an already detected back end.
func New(conf config.Config, res *detect.Result, lock discharge.Locker) *Daemon {
	d := &Daemon{
		conf:       conf,
		backend:    res.Backend,
		attempts:   res.Attempts,
		thresholds: threshold.New(res.Backend),
		discharger: discharge.New(res.Backend, lock),
		hub:        events.NewEventHub(),
	}
	d.discharger.OnTransition = d.publishDischarge
	d.scheduler = NewScheduler(
		func() error {
			d.ApplyConfig("schedule")
			return nil
		},
		func() error {
			if d.dischargeRunning() {
				return ErrDischargeRunning
			}
			return nil
		},
		func(err error) { logrus.WithError(err).Warn("scheduled threshold re-application") },
	)
	return d
}

// Hub returns the event hub of the daemon.
func (d *Daemon) Hub() *events.EventHub {
	return d.hub
}

func (d *Daemon) publishDischarge(v discharge.View) {
	d.hub.Publish(events.DischargeState, events.DischargeStateEvent{
		Battery: v.Battery,
		State:   v.State.String(),
		Outcome: v.Outcome.String(),
		Charge:  v.Charge,
		Message: v.Message,
		Ts:      v.UpdatedAt.Unix(),
	})
}

func (d *Daemon) publishThresholds(res threshold.Result) {
	d.hub.Publish(events.ThresholdsApplied, events.ThresholdsAppliedEvent{
		Battery: res.Battery,
		Source:  res.Source,
		Outcome: res.Outcome.String(),
		Start:   res.Requested.Start,
		Stop:    res.Requested.Stop,
		Ts:      time.Now().Unix(),
	})
}

// ApplyConfig applies the configured thresholds to every battery.
func (d *Daemon) ApplyConfig(reason string) []threshold.Result {
	logrus.WithField("reason", reason).Info("applying configured charge thresholds")

	results := d.thresholds.ApplyConfig(d.conf)
	for _, res := range results {
		if res.Outcome != threshold.NotConfigured {
			d.publishThresholds(res)
		}
	}
	return results
}

// StartDischarge prepares a session on bat and runs it in the background.
// A rejected session is returned with ok false.
func (d *Daemon) StartDischarge(bat battery.Battery) (s *discharge.Session, ok bool) {
	s, ok = d.discharger.Prepare(bat)
	if !ok {
		return s, false
	}

	d.mu.Lock()
	d.session = s
	d.mu.Unlock()

	go s.Run(context.Background())
	return s, true
}

// Session returns the current or last discharge session, if any.
func (d *Daemon) Session() *discharge.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// dischargeRunning reports whether a session is still in progress.
func (d *Daemon) dischargeRunning() bool {
	s := d.Session()
	if s == nil {
		return false
	}
	select {
	case <-s.Done():
		return false
	default:
		return true
	}
}

// StopDischarge cancels a running session and waits until the flag is reset
// or the timeout expires.
func (d *Daemon) StopDischarge(timeout time.Duration) {
	s := d.Session()
	if s == nil {
		return
	}
	s.Cancel()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		logrus.Warn("discharge session did not stop in time")
	}
}

// Run detects the hardware and serves until SIGINT or SIGTERM.
func Run(opts Options) error {
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to parse config during startup: %w", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	res, err := detect.Detect(detect.Options{
		Root:           opts.Root,
		TPSmapiEnabled: conf.TPSmapiEnabled(),
		NatACPIEnabled: conf.NatACPIEnabled(),
	})
	if err != nil {
		return fmt.Errorf("failed to detect battery hardware: %w", err)
	}

	d := New(conf, res, flock.New(opts.LockPath))
	d.ApplyConfig("startup")

	if err := d.scheduler.Schedule(conf.ReapplyThresholdsCron()); err != nil {
		logrus.WithError(err).Error("threshold re-application schedule disabled")
	}
	d.scheduler.Start()
	defer d.scheduler.Stop()

	var wake <-chan struct{}
	monitor, err := NewResumeMonitor()
	if err != nil {
		logrus.WithError(err).Warn("failed to listen to logind, thresholds will not be restored on resume")
	} else {
		defer monitor.Close()
		wake = monitor.Wake()
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
			if err := d.scheduler.Schedule(conf.ReapplyThresholdsCron()); err != nil {
				logrus.WithError(err).Error("threshold re-application schedule disabled")
			}
			d.ApplyConfig("reload")
		}
	}()

	go func() {
		for range wake {
			if !conf.RestoreThresholdsOnResume() {
				continue
			}
			d.ApplyConfig("resume")
		}
	}()

	srv := &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A stale socket from a crashed daemon blocks Listen.
	if err := os.Remove(opts.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", opts.SocketPath, err)
	}
	l, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return err
	}
	defer os.Remove(opts.SocketPath)

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.SocketPath)
		err = os.Chmod(opts.SocketPath, 0777)
		if err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErr:
		logrus.WithError(err).Error("http server failed")
	}

	logrus.Info("stopping discharge session")
	d.StopDischarge(10 * time.Second)

	// Event streams never go idle on their own.
	d.hub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}

// Router returns the HTTP API.
func (d *Daemon) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", d.getStatus)
	router.GET("/capabilities", d.getCapabilities)
	router.PUT("/batteries/:id/thresholds", d.setThresholds)
	router.POST("/batteries/:id/discharge", d.startDischarge)
	router.GET("/discharge", d.getDischarge)
	router.DELETE("/discharge", d.cancelDischarge)
	router.GET("/schedule", d.getSchedule)
	router.POST("/schedule/skip", d.skipSchedule)
	router.GET("/events", d.streamEvents)
	router.GET("/version", getVersion)

	return router
}

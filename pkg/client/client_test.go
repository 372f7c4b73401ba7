package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/battery/batterytest"
	"github.com/charlie0129/thinkbatt/pkg/config"
	"github.com/charlie0129/thinkbatt/pkg/daemon"
	"github.com/charlie0129/thinkbatt/pkg/detect"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/events"
	"github.com/charlie0129/thinkbatt/pkg/flock"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

func serve(t *testing.T) (*Client, *batterytest.Fake) {
	t.Helper()

	dir := t.TempDir()
	f := batterytest.New("BAT0")
	f.Charge["BAT0"] = 40

	d := daemon.New(
		config.NewFileFromValues(nil, filepath.Join(dir, "thinkbatt.conf")),
		&detect.Result{Backend: f},
		flock.New(filepath.Join(dir, "discharge.lock")),
	)

	socket := filepath.Join(dir, "d.sock")
	l, err := net.Listen("unix", socket)
	require.NoError(t, err)

	srv := &http.Server{Handler: d.Router(), ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() {
		d.StopDischarge(5 * time.Second)
		_ = srv.Close()
	})

	return NewClient(socket), f
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetStatus()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDaemonNotRunning), "got %v", err)
}

func TestStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "stale.sock")
	l, err := net.Listen("unix", socket)
	require.NoError(t, err)
	// Leave the socket file behind like a crashed daemon does.
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, l.Close())

	_, err = NewClient(socket).GetVersion()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDaemonNotRunning), "got %v", err)
}

func TestSocketPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses socket permissions")
	}

	c, _ := serve(t)
	require.NoError(t, os.Chmod(c.socketPath, 0))

	_, err := c.GetStatus()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied), "got %v", err)
}

func TestStatusAndCapabilities(t *testing.T) {
	c, f := serve(t)
	f.SetThresholds("BAT0", 60, 80)

	snaps, err := c.GetStatus()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "BAT0", snaps[0].Battery.ID)
	assert.Equal(t, 40, snaps[0].Telemetry.ChargePercent)
	require.NotNil(t, snaps[0].Thresholds)
	assert.Equal(t, 80, snaps[0].Thresholds.Stop)

	caps, err := c.GetCapabilities()
	require.NoError(t, err)
	assert.Equal(t, "fake", caps.Driver)
	assert.Equal(t, battery.Span(6, 100), caps.Capabilities.StopRange)

	v, err := c.GetVersion()
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestSetThresholds(t *testing.T) {
	c, f := serve(t)

	res, err := c.SetThresholds("DEFAULT", daemon.ThresholdRequest{Start: "75", Stop: "80"})
	require.NoError(t, err)
	assert.Equal(t, threshold.Success, res.Outcome)
	assert.Equal(t, 75, f.Threshold("BAT0", battery.Start))

	res, err = c.SetThresholds("BAT0", daemon.ThresholdRequest{Start: "1", Stop: "80"})
	require.NoError(t, err)
	assert.Equal(t, threshold.StartOutOfRange, res.Outcome)

	_, err = c.SetThresholds("BAT7", daemon.ThresholdRequest{Start: "75", Stop: "80"})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestDischarge(t *testing.T) {
	c, f := serve(t)
	f.DischargeRead = func(*batterytest.Fake, battery.Battery, int) bool { return true }

	_, err := c.GetDischarge()
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	v, err := c.StartDischarge("BAT0")
	require.NoError(t, err)
	assert.Equal(t, "BAT0", v.Battery)

	v, err = c.StartDischarge("BAT0")
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
	require.NotNil(t, v)
	assert.Equal(t, discharge.AlreadyRunning, v.Outcome)

	require.NoError(t, c.CancelDischarge())

	require.Eventually(t, func() bool {
		v, err := c.GetDischarge()
		return err == nil && v.State.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	v, err = c.GetDischarge()
	require.NoError(t, err)
	assert.Equal(t, discharge.Cancelled, v.State)
	assert.False(t, f.DischargeActive("BAT0"))
}

func TestSchedule(t *testing.T) {
	c, _ := serve(t)

	sched, err := c.GetSchedule()
	require.NoError(t, err)
	assert.Nil(t, sched.NextRun)

	_, err = c.SkipSchedule()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscribeEvents(t *testing.T) {
	c, _ := serve(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	_, err = c.SetThresholds("BAT0", daemon.ThresholdRequest{Start: "50", Stop: "60"})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, events.ThresholdsApplied, ev.Name)
		p, err := events.DecodeAs[events.ThresholdsAppliedEvent](ev)
		require.NoError(t, err)
		assert.Equal(t, "BAT0", p.Battery)
		assert.Equal(t, 60, p.Stop)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range ch {
	}
}

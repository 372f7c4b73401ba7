package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/battery"
	"github.com/charlie0129/thinkbatt/pkg/detect"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/status"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
	"github.com/charlie0129/thinkbatt/pkg/version"
)

// ThresholdRequest is the body of PUT /batteries/:id/thresholds. Values are
// integers, "default" or empty.
type ThresholdRequest struct {
	Start string `json:"start"`
	Stop  string `json:"stop"`
	// Persist stores the values in the configuration file on success.
	Persist bool `json:"persist,omitempty"`
}

// CapabilitiesResponse is the body of GET /capabilities.
type CapabilitiesResponse struct {
	Driver       string               `json:"driver"`
	DriverStatus battery.DriverStatus `json:"driverStatus"`
	Capabilities battery.Capabilities `json:"capabilities"`
	Batteries    []battery.Battery    `json:"batteries"`
	Attempts     []detect.Attempt     `json:"attempts"`
}

// ScheduleResponse is the body of GET /schedule. NextRun is nil when no
// re-application is scheduled.
type ScheduleResponse struct {
	Cron    string     `json:"cron"`
	NextRun *time.Time `json:"nextRun"`
	Running bool       `json:"running"`
}

func (d *Daemon) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, status.Collect(d.backend))
}

func (d *Daemon) getCapabilities(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, CapabilitiesResponse{
		Driver:       d.backend.Name(),
		DriverStatus: d.backend.Status(),
		Capabilities: d.backend.Capabilities(),
		Batteries:    d.backend.Registry().All(),
		Attempts:     d.attempts,
	})
}

func (d *Daemon) resolve(c *gin.Context) (battery.Battery, bool) {
	id := c.Param("id")
	bat, ok := d.backend.Registry().Resolve(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, fmt.Errorf("battery %s not found", id))
	}
	return bat, ok
}

func (d *Daemon) setThresholds(c *gin.Context) {
	bat, ok := d.resolve(c)
	if !ok {
		return
	}

	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	res := d.thresholds.Write(bat, threshold.ParseRequest(req.Start), threshold.ParseRequest(req.Stop), threshold.Interactive)
	d.publishThresholds(res)

	if req.Persist && res.Outcome == threshold.Success {
		d.conf.SetChargeThreshold(battery.Start, bat.ID, req.Start)
		d.conf.SetChargeThreshold(battery.Stop, bat.ID, req.Stop)
		if err := d.conf.Save(); err != nil {
			logrus.Errorf("saveConfig failed: %v", err)
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		logrus.WithField("battery", bat.ID).Info("charge thresholds saved to configuration")
	}

	c.IndentedJSON(http.StatusOK, res)
}

func (d *Daemon) startDischarge(c *gin.Context) {
	bat, ok := d.resolve(c)
	if !ok {
		return
	}

	s, ok := d.StartDischarge(bat)
	v := s.View()
	if ok {
		c.IndentedJSON(http.StatusAccepted, v)
		return
	}

	code := http.StatusUnprocessableEntity
	switch v.Outcome {
	case discharge.AlreadyRunning:
		code = http.StatusConflict
	case discharge.Unsupported:
		code = http.StatusNotImplemented
	}
	c.IndentedJSON(code, v)
	_ = c.Error(errors.New(v.Message))
}

func (d *Daemon) getDischarge(c *gin.Context) {
	s := d.Session()
	if s == nil {
		abortWithError(c, http.StatusNotFound, errors.New("no discharge session"))
		return
	}
	c.IndentedJSON(http.StatusOK, s.View())
}

func (d *Daemon) cancelDischarge(c *gin.Context) {
	if !d.dischargeRunning() {
		abortWithError(c, http.StatusNotFound, errors.New("no discharge session running"))
		return
	}
	s := d.Session()
	s.Cancel()
	c.IndentedJSON(http.StatusAccepted, s.View())
}

func (d *Daemon) schedule() ScheduleResponse {
	nextRun, running := d.scheduler.Status()
	resp := ScheduleResponse{
		Cron:    d.conf.ReapplyThresholdsCron(),
		Running: running,
	}
	if !nextRun.IsZero() {
		resp.NextRun = &nextRun
	}
	return resp
}

func (d *Daemon) getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.schedule())
}

func (d *Daemon) skipSchedule(c *gin.Context) {
	if err := d.scheduler.Skip(); err != nil {
		abortWithError(c, http.StatusNotFound, err)
		return
	}
	resp := d.schedule()
	if resp.NextRun != nil {
		logrus.Infof("next threshold re-application skipped, now at %s", resp.NextRun.Format(time.DateTime))
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Content-Type", "text/event-stream")
	// Send headers now so clients know the subscription is in place.
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

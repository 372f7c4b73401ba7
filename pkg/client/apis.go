package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/thinkbatt/pkg/daemon"
	"github.com/charlie0129/thinkbatt/pkg/discharge"
	"github.com/charlie0129/thinkbatt/pkg/events"
	"github.com/charlie0129/thinkbatt/pkg/status"
	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

func (c *Client) GetStatus() ([]status.Snapshot, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var snaps []status.Snapshot
	if err := json.Unmarshal([]byte(ret), &snaps); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return snaps, nil
}

func (c *Client) GetCapabilities() (*daemon.CapabilitiesResponse, error) {
	ret, err := c.Get("/capabilities")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get capabilities")
	}

	var caps daemon.CapabilitiesResponse
	if err := json.Unmarshal([]byte(ret), &caps); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal capabilities")
	}
	return &caps, nil
}

// SetThresholds asks the daemon to write the thresholds of a battery. A
// rejected request is not an error: check the outcome of the result.
func (c *Client) SetThresholds(id string, req daemon.ThresholdRequest) (*threshold.Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to marshal threshold request")
	}

	ret, err := c.Put("/batteries/"+id+"/thresholds", string(data))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set thresholds of %s", id)
	}

	var res threshold.Result
	if err := json.Unmarshal([]byte(ret), &res); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal threshold result")
	}
	return &res, nil
}

// StartDischarge starts a discharge session in the daemon. When the daemon
// rejects the session, the returned view carries the reason along with the
// error.
func (c *Client) StartDischarge(id string) (*discharge.View, error) {
	ret, err := c.Post("/batteries/"+id+"/discharge", "")
	var statusErr *StatusError
	if err != nil && !errors.As(err, &statusErr) {
		return nil, pkgerrors.Wrapf(err, "failed to start discharge of %s", id)
	}

	var v discharge.View
	if jsonErr := json.Unmarshal([]byte(ret), &v); jsonErr != nil {
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to start discharge of %s", id)
		}
		return nil, pkgerrors.Wrapf(jsonErr, "failed to unmarshal discharge session")
	}
	if err != nil {
		return &v, pkgerrors.Wrapf(err, "discharge of %s rejected", id)
	}
	return &v, nil
}

func (c *Client) GetDischarge() (*discharge.View, error) {
	ret, err := c.Get("/discharge")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get discharge session")
	}

	var v discharge.View
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal discharge session")
	}
	return &v, nil
}

func (c *Client) CancelDischarge() error {
	_, err := c.Delete("/discharge")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to cancel discharge")
	}
	return nil
}

func (c *Client) GetSchedule() (*daemon.ScheduleResponse, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}

	var sched daemon.ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &sched); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &sched, nil
}

// SkipSchedule skips the next threshold re-application and returns the
// updated schedule.
func (c *Client) SkipSchedule() (*daemon.ScheduleResponse, error) {
	ret, err := c.Post("/schedule/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip schedule")
	}

	var sched daemon.ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &sched); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &sched, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// SubscribeEvents streams daemon events until ctx is done or the connection
// drops. The returned channel is closed in both cases.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	resp, err := c.do(ctx, http.MethodGet, "/events", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to subscribe to events")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var name string
		var data []string
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if name == "" && len(data) == 0 {
					continue
				}
				ev := events.Event{Name: name, Data: json.RawMessage(strings.Join(data, "\n"))}
				name, data = "", nil
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream closed")
		}
	}()

	return ch, nil
}

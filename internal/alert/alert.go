package alert

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebsyring/critic/internal/models"
)

// Event describes one alert decision, produced when a monitor crosses its
// failure threshold or a sustained outage passes its realert interval.
type Event struct {
	ProjectID        string              `json:"project_id"`
	Slug             string              `json:"slug"`
	URL              string              `json:"url"`
	State            models.MonitorState `json:"state"`
	ConsecutiveFails int                 `json:"consecutive_fails"`
	At               time.Time           `json:"at"`
}

// Dispatcher delivers an alert event to a monitor's configured channels.
// Dispatch is fire-and-forget from the scheduler's point of view: errors
// are logged by the caller and never roll back a committed transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, channels []string, ev Event) error
}

// LogDispatcher writes alert events to the log. It is the fallback when
// no alert transport is configured.
type LogDispatcher struct {
	Log *logrus.Logger
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(_ context.Context, channels []string, ev Event) error {
	d.Log.WithFields(logrus.Fields{
		"project_id":        ev.ProjectID,
		"slug":              ev.Slug,
		"url":               ev.URL,
		"state":             ev.State,
		"consecutive_fails": ev.ConsecutiveFails,
		"channels":          channels,
	}).Warn("monitor alert")
	return nil
}

package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NATSDispatcher publishes alert events to NATS, one message per
// configured channel. Channels map to subjects under the configured
// prefix, so a monitor with channels ["ops", "oncall"] and prefix
// "critic.alerts" publishes to critic.alerts.ops and critic.alerts.oncall.
type NATSDispatcher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSDispatcher creates a dispatcher around an established NATS
// connection.
func NewNATSDispatcher(nc *nats.Conn, prefix string) *NATSDispatcher {
	return &NATSDispatcher{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
	}
}

// Dispatch implements Dispatcher. Publishing is best-effort per channel;
// the first publish error is returned after all channels were attempted.
func (d *NATSDispatcher) Dispatch(_ context.Context, channels []string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to encode alert event")
	}
	var firstErr error
	for _, channel := range channels {
		if err := d.nc.Publish(d.subject(channel), payload); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to publish alert to channel %q", channel)
		}
	}
	return firstErr
}

func (d *NATSDispatcher) subject(channel string) string {
	if d.prefix == "" {
		return channel
	}
	return fmt.Sprintf("%s.%s", d.prefix, channel)
}

package timeutil

import (
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTimestamp is returned when a zero or sub-minute timestamp
// reaches a function that requires a minute-granular one.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Now returns the current time normalized to UTC. Every timestamp that
// enters the scheduling pipeline goes through here or through
// ValidMinuteStamp, so stored times are always UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// RoundToMinute strips seconds and sub-second precision from t. When the
// second value is 55 or above the result rounds up to the next minute: a
// timer that fires slightly early should consider itself "at" the coming
// minute rather than under-fire, while an on-time invocation rounds down
// and errs toward checking slightly more often, never less.
func RoundToMinute(t time.Time) time.Time {
	t = t.UTC()
	rounded := t.Truncate(time.Minute)
	if t.Second() >= 55 {
		rounded = rounded.Add(time.Minute)
	}
	return rounded
}

// ValidMinuteStamp reports whether t is usable as a persisted due time:
// non-zero and no more precise than minutes. Sub-minute precision is never
// silently coerced.
func ValidMinuteStamp(t time.Time) error {
	if t.IsZero() {
		return errors.Wrap(ErrInvalidTimestamp, "timestamp is zero")
	}
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return errors.Wrapf(ErrInvalidTimestamp, "timestamp %s has sub-minute precision", t.Format(time.RFC3339Nano))
	}
	return nil
}

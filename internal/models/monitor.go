package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/calebsyring/critic/internal/timeutil"
	"github.com/calebsyring/critic/internal/urlutil"
)

// MonitorState is the closed set of health states a monitor can be in.
type MonitorState string

const (
	StateNew    MonitorState = "new"
	StateUp     MonitorState = "up"
	StateDown   MonitorState = "down"
	StatePaused MonitorState = "paused"
)

// Valid reports whether s is one of the known states.
func (s MonitorState) Valid() bool {
	switch s {
	case StateNew, StateUp, StateDown, StatePaused:
		return true
	}
	return false
}

// DuePartition is the constant partition sentinel shared by every monitor.
// Funneling all monitors into one partition turns the due scan into a
// single range query ordered by next_due_at.
const DuePartition = "DUE_MONITOR"

const (
	// MinFrequency is the smallest allowed check cadence.
	MinFrequency = time.Minute

	// MinRealertInterval is the floor for re-notification on sustained
	// outages.
	MinRealertInterval = 15 * time.Minute
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Assertions are optional response checks layered on top of basic
// reachability. A zero StatusCode and empty BodyContains mean "any
// response passes".
type Assertions struct {
	// StatusCode, when non-zero, must equal the observed HTTP status.
	StatusCode int `yaml:"status_code"`

	// BodyContains, when non-empty, must appear in the response body as a
	// case-sensitive substring. Forces the probe to use GET, since HEAD
	// responses carry no body.
	BodyContains string `yaml:"body_contains"`
}

// Monitor is one configured HTTP endpoint checked on a recurring cadence,
// unique per (project, slug). Its scheduling fields are mutated only by
// the check scheduler, through a conditional update on NextDueAt.
type Monitor struct {
	ProjectID string
	Slug      string

	URL     string
	Timeout time.Duration

	Frequency time.Duration
	// NextDueAt is minute-granular and monotonically non-decreasing
	// across successful updates.
	NextDueAt time.Time

	State            MonitorState
	ConsecutiveFails int

	FailuresBeforeAlerting int
	AlertChannels          []string
	RealertInterval        time.Duration
	// LastAlertedAt records when an alert last fired for this monitor.
	// Nil until the first alert.
	LastAlertedAt *time.Time

	Assertions Assertions
}

// Key returns the composite identity used to partition the check log:
// project id and slug separated by a slash.
func (m *Monitor) Key() string {
	return m.ProjectID + "/" + m.Slug
}

// Validate checks the monitor's identity, target, cadence and alerting
// configuration. Every monitor is validated before it reaches the store,
// so downstream code treats a malformed monitor as a programming error.
func (m *Monitor) Validate() error {
	if _, err := uuid.Parse(m.ProjectID); err != nil {
		return errors.Wrapf(err, "invalid project id %q", m.ProjectID)
	}
	if len(m.Slug) == 0 || len(m.Slug) > 200 || !slugPattern.MatchString(m.Slug) {
		return errors.Errorf("invalid slug %q", m.Slug)
	}
	if err := urlutil.Validate(m.URL); err != nil {
		return err
	}
	if m.Timeout <= 0 {
		return errors.Errorf("monitor %s: timeout must be positive", m.Key())
	}
	if m.Frequency < MinFrequency {
		return errors.Errorf("monitor %s: frequency must be at least %s", m.Key(), MinFrequency)
	}
	if m.Frequency%time.Minute != 0 {
		// Due times are minute-granular; a fractional-minute cadence would
		// drift next_due_at off the minute boundary after one advance.
		return errors.Errorf("monitor %s: frequency must be a whole number of minutes", m.Key())
	}
	if err := timeutil.ValidMinuteStamp(m.NextDueAt); err != nil {
		return errors.Wrapf(err, "monitor %s: next due time", m.Key())
	}
	if !m.State.Valid() {
		return errors.Errorf("monitor %s: unknown state %q", m.Key(), m.State)
	}
	if m.ConsecutiveFails < 0 {
		return errors.Errorf("monitor %s: consecutive fails must not be negative", m.Key())
	}
	if m.FailuresBeforeAlerting < 1 {
		return errors.Errorf("monitor %s: failures before alerting must be at least 1", m.Key())
	}
	if m.RealertInterval < MinRealertInterval {
		return errors.Errorf("monitor %s: realert interval must be at least %s", m.Key(), MinRealertInterval)
	}
	return nil
}

// New creates a monitor with the defaults a freshly registered endpoint
// gets: state new, no failures, due at the current minute.
func New(projectID, slug, rawURL string) Monitor {
	return Monitor{
		ProjectID:              projectID,
		Slug:                   slug,
		URL:                    rawURL,
		Timeout:                5 * time.Second,
		Frequency:              time.Minute,
		NextDueAt:              timeutil.RoundToMinute(timeutil.Now()),
		State:                  StateNew,
		ConsecutiveFails:       0,
		FailuresBeforeAlerting: 1,
		RealertInterval:        time.Hour,
	}
}

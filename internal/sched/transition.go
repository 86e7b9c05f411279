package sched

import (
	"time"

	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/probe"
	"github.com/calebsyring/critic/internal/timeutil"
)

// Decision is the computed transition for one monitor's due cycle.
type Decision struct {
	State            models.MonitorState
	ConsecutiveFails int
	Alert            bool
	NextDueAt        time.Time
	LastAlertedAt    *time.Time
}

// Transition computes the new monitor state from a check outcome. Pure
// decision logic, no I/O.
//
// Recovery is asymmetric on purpose: one success flips a monitor back to
// up immediately, while the transition to down is gated behind
// failures_before_alerting so a flapping endpoint does not spam alerts.
func Transition(m models.Monitor, out probe.Outcome, now time.Time) Decision {
	d := Decision{
		State:            m.State,
		ConsecutiveFails: m.ConsecutiveFails,
		LastAlertedAt:    m.LastAlertedAt,
		NextDueAt:        nextDue(m, now),
	}

	// Paused monitors never probe; only their due time advances, so
	// unpausing does not trigger a catch-up storm.
	if m.State == models.StatePaused {
		return d
	}

	if out.AssertionPassed {
		d.State = models.StateUp
		d.ConsecutiveFails = 0
		return d
	}

	d.ConsecutiveFails = m.ConsecutiveFails + 1
	if d.ConsecutiveFails < m.FailuresBeforeAlerting {
		// Below threshold the displayed state does not flip yet.
		return d
	}

	d.State = models.StateDown
	if m.State != models.StateDown {
		d.Alert = true
	} else if m.LastAlertedAt == nil || now.Sub(*m.LastAlertedAt) >= m.RealertInterval {
		// Sustained outage: re-notify once per realert interval.
		d.Alert = true
	}
	if d.Alert {
		alertedAt := now
		d.LastAlertedAt = &alertedAt
	}
	return d
}

// nextDue advances the due time by exactly one frequency from the
// previous due time, never from now, so cadence does not drift. A
// scheduler that fell more than one full cycle behind drops the backlog
// and resumes from the current minute instead of rapid-firing catch-up
// checks.
func nextDue(m models.Monitor, now time.Time) time.Time {
	next := m.NextDueAt.Add(m.Frequency)
	if !next.After(now) {
		next = timeutil.RoundToMinute(now).Add(m.Frequency)
	}
	return next
}

package sched

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/calebsyring/critic/internal/alert"
	"github.com/calebsyring/critic/internal/metrics"
	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/probe"
	"github.com/calebsyring/critic/internal/storage"
	"github.com/calebsyring/critic/internal/timeutil"
)

// DefaultConcurrency is the worker pool width used when none is
// configured.
const DefaultConcurrency = 8

// ProcessedMonitor is one monitor that was successfully updated during a
// tick, returned for observability and testing.
type ProcessedMonitor struct {
	// Monitor is the post-transition snapshot.
	Monitor models.Monitor

	// Outcome is the probe result. Zero for paused monitors, which are
	// never probed.
	Outcome probe.Outcome

	// Alerted reports whether an alert event was dispatched this cycle.
	Alerted bool
}

// Scheduler runs one scheduling tick at a time: scan the due set, probe
// each monitor under a bounded worker pool, apply the state machine,
// persist via conditional update and append a check log entry.
//
// The scheduler holds no state between ticks and tolerates overlapping
// invocations: the next_due_at precondition on the write guarantees
// at-most-one successful transition per due cycle, so there is no global
// mutex and no double alerting when ticks race.
type Scheduler struct {
	store       storage.Storer
	prober      probe.Prober
	dispatcher  alert.Dispatcher
	concurrency int
	log         *logrus.Logger
}

// NewScheduler creates a Scheduler. Concurrency values below 1 fall back
// to DefaultConcurrency.
func NewScheduler(store storage.Storer, prober probe.Prober, dispatcher alert.Dispatcher, concurrency int, log *logrus.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		store:       store,
		prober:      prober,
		dispatcher:  dispatcher,
		concurrency: concurrency,
		log:         log,
	}
}

// RunDueChecks executes one tick as of the given instant. A zero asOf
// means "now". A failed due scan aborts the tick; per-monitor failures
// are isolated and only drop that monitor from the returned set.
func (s *Scheduler) RunDueChecks(ctx context.Context, asOf time.Time) ([]ProcessedMonitor, error) {
	if asOf.IsZero() {
		asOf = timeutil.Now()
	}
	asOf = asOf.UTC()

	due, err := s.store.QueryDue(ctx, timeutil.RoundToMinute(asOf))
	if err != nil {
		metrics.TicksTotal.WithLabelValues("scan_failed").Inc()
		return nil, errors.Wrap(err, "due scan failed")
	}
	metrics.TicksTotal.WithLabelValues("ok").Inc()
	if len(due) == 0 {
		return nil, nil
	}

	workers := s.concurrency
	if len(due) < workers {
		workers = len(due)
	}

	var (
		mu        sync.Mutex
		processed []ProcessedMonitor
		wg        sync.WaitGroup
	)
	jobs := make(chan models.Monitor)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for m := range jobs {
				pm, ok := s.process(ctx, m, asOf)
				if ok {
					mu.Lock()
					processed = append(processed, pm)
					mu.Unlock()
				}
			}
		}()
	}
	for _, m := range due {
		jobs <- m
	}
	close(jobs)
	wg.Wait()

	return processed, nil
}

// process handles one monitor's due cycle: probe (unless paused), compute
// the transition, persist it conditionally, append the log entry and
// dispatch an alert if the transition asks for one.
func (s *Scheduler) process(ctx context.Context, m models.Monitor, now time.Time) (ProcessedMonitor, bool) {
	logger := s.log.WithFields(logrus.Fields{
		"project_id": m.ProjectID,
		"slug":       m.Slug,
	})

	originalDue := m.NextDueAt
	paused := m.State == models.StatePaused

	var out probe.Outcome
	if !paused {
		var err error
		out, err = s.prober.Probe(ctx, m)
		if err != nil {
			// Not a network failure: those come back as a normal
			// outcome. This monitor's due time stays stale, so the next
			// scan picks it up again.
			logger.WithError(err).Error("probe failed")
			return ProcessedMonitor{}, false
		}
		if out.Responded {
			metrics.CheckLatencySeconds.Observe(out.Latency.Seconds())
		}
	}

	d := Transition(m, out, now)

	err := s.store.UpdateChecked(ctx, m.ProjectID, m.Slug, storage.CheckedUpdate{
		State:            d.State,
		ConsecutiveFails: d.ConsecutiveFails,
		NextDueAt:        d.NextDueAt,
		LastAlertedAt:    d.LastAlertedAt,
	}, originalDue)
	if errors.Is(err, storage.ErrPreconditionFailed) {
		// Another scheduler run already advanced this monitor. Dropping
		// the update keeps the cycle processed exactly once.
		metrics.PreconditionLostTotal.Inc()
		logger.Debug("monitor already processed by a concurrent run")
		return ProcessedMonitor{}, false
	}
	if err != nil {
		logger.WithError(err).Warn("failed to persist check transition")
		return ProcessedMonitor{}, false
	}
	metrics.ChecksTotal.WithLabelValues(string(d.State)).Inc()

	if !paused {
		result := newCheckResult(&m, d, out, originalDue)
		if err := s.store.AppendResult(ctx, &result); err != nil {
			logger.WithError(err).Warn("failed to append check result")
		}
	}

	alerted := false
	if d.Alert {
		alerted = true
		metrics.AlertsDispatchedTotal.Inc()
		ev := alert.Event{
			ProjectID:        m.ProjectID,
			Slug:             m.Slug,
			URL:              m.URL,
			State:            d.State,
			ConsecutiveFails: d.ConsecutiveFails,
			At:               now,
		}
		if err := s.dispatcher.Dispatch(ctx, m.AlertChannels, ev); err != nil {
			// Never propagated: the state transition is already
			// committed and must not be rolled back.
			logger.WithError(err).Error("alert dispatch failed")
		}
	}

	m.State = d.State
	m.ConsecutiveFails = d.ConsecutiveFails
	m.NextDueAt = d.NextDueAt
	m.LastAlertedAt = d.LastAlertedAt
	return ProcessedMonitor{Monitor: m, Outcome: out, Alerted: alerted}, true
}

// newCheckResult builds the log entry for one processed cycle. The entry
// is keyed by the pre-update due time, and a check that got no response
// records the 0 / -1 sentinels rather than absent values.
func newCheckResult(m *models.Monitor, d Decision, out probe.Outcome, originalDue time.Time) models.CheckResult {
	result := models.CheckResult{
		MonitorKey:  m.Key(),
		Timestamp:   originalDue,
		Status:      d.State,
		RespCode:    models.RespCodeNone,
		LatencySecs: models.LatencyNone,
	}
	if out.Responded {
		result.RespCode = out.StatusCode
		result.LatencySecs = out.Latency.Seconds()
	}
	return result
}

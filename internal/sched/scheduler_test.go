package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebsyring/critic/internal/alert"
	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/probe"
	"github.com/calebsyring/critic/internal/storage"
	"github.com/calebsyring/critic/internal/storage/fake"
)

type stubProber struct {
	mu      sync.Mutex
	calls   int
	outcome probe.Outcome
	err     error
}

func (p *stubProber) Probe(_ context.Context, _ models.Monitor) (probe.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.outcome, p.err
}

func (p *stubProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alert.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ []string, ev alert.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.err
}

func (d *recordingDispatcher) eventCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestScheduler(store storage.Storer, prober probe.Prober, dispatcher alert.Dispatcher) *Scheduler {
	return NewScheduler(store, prober, dispatcher, 4, testLogger())
}

func TestRunDueChecksProcessesDueMonitors(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	due := baseMonitor()
	notDue := baseMonitor()
	notDue.Slug = "later"
	notDue.NextDueAt = dueAt.Add(10 * time.Minute)
	require.NoError(t, store.PutMonitor(ctx, &due))
	require.NoError(t, store.PutMonitor(ctx, &notDue))

	prober := &stubProber{outcome: success}
	dispatcher := &recordingDispatcher{}
	s := newTestScheduler(store, prober, dispatcher)

	processed, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	require.Len(t, processed, 1)

	pm := processed[0]
	assert.Equal(t, "web", pm.Monitor.Slug)
	assert.Equal(t, models.StateUp, pm.Monitor.State)
	assert.True(t, pm.Monitor.NextDueAt.Equal(dueAt.Add(time.Minute)))
	assert.Equal(t, 1, prober.callCount())

	stored, err := store.GetMonitor(ctx, due.ProjectID, due.Slug)
	require.NoError(t, err)
	assert.Equal(t, models.StateUp, stored.State)
	assert.True(t, stored.NextDueAt.Equal(dueAt.Add(time.Minute)))

	results, err := store.ResultsByMonitor(ctx, due.Key())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Timestamp.Equal(dueAt))
	assert.Equal(t, 200, results[0].RespCode)
	assert.Greater(t, results[0].LatencySecs, 0.0)
}

func TestRunDueChecksTimeoutRecordsSentinels(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	m := baseMonitor()
	m.ConsecutiveFails = 1
	require.NoError(t, store.PutMonitor(ctx, &m))

	dispatcher := &recordingDispatcher{}
	s := newTestScheduler(store, &stubProber{outcome: timeout}, dispatcher)

	processed, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, models.StateDown, processed[0].Monitor.State)
	assert.Equal(t, 2, processed[0].Monitor.ConsecutiveFails)
	assert.True(t, processed[0].Alerted)

	results, err := store.ResultsByMonitor(ctx, m.Key())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.RespCodeNone, results[0].RespCode)
	assert.Equal(t, float64(models.LatencyNone), results[0].LatencySecs)
	assert.Equal(t, models.StateDown, results[0].Status)
	assert.True(t, results[0].Timestamp.Equal(dueAt))

	assert.Equal(t, 1, dispatcher.eventCount())
}

func TestRunDueChecksPausedNeverProbesOrLogs(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	m := baseMonitor()
	m.State = models.StatePaused
	require.NoError(t, store.PutMonitor(ctx, &m))

	prober := &stubProber{outcome: success}
	s := newTestScheduler(store, prober, &recordingDispatcher{})

	processed, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	require.Len(t, processed, 1)

	assert.Equal(t, 0, prober.callCount())

	stored, err := store.GetMonitor(ctx, m.ProjectID, m.Slug)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, stored.State)
	assert.True(t, stored.NextDueAt.Equal(dueAt.Add(time.Minute)))

	results, err := store.ResultsByMonitor(ctx, m.Key())
	require.NoError(t, err)
	assert.Empty(t, results)
}

// staleScanStore returns a fixed due snapshot regardless of the store's
// current contents, simulating a second scheduler run that scanned
// before the first one wrote.
type staleScanStore struct {
	*fake.Store
	snapshot []models.Monitor
}

func (s *staleScanStore) QueryDue(_ context.Context, _ time.Time) ([]models.Monitor, error) {
	return s.snapshot, nil
}

func TestRunDueChecksOverlappingTicksProcessOnce(t *testing.T) {
	ctx := context.Background()
	inner := fake.New()

	m := baseMonitor()
	m.ConsecutiveFails = 1
	require.NoError(t, inner.PutMonitor(ctx, &m))

	store := &staleScanStore{Store: inner, snapshot: []models.Monitor{m}}
	dispatcher := &recordingDispatcher{}
	s := newTestScheduler(store, &stubProber{outcome: timeout}, dispatcher)

	first, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second run observes the same pre-read due set; its conditional
	// update must lose and produce no extra log entry or alert.
	second, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	assert.Empty(t, second)

	results, err := inner.ResultsByMonitor(ctx, m.Key())
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, dispatcher.eventCount())
}

func TestRunDueChecksScanFailureAbortsTick(t *testing.T) {
	store := fake.New()
	store.QueryDueErr = storage.ErrUnavailable
	s := newTestScheduler(store, &stubProber{outcome: success}, &recordingDispatcher{})

	_, err := s.RunDueChecks(context.Background(), dueAt)
	assert.Error(t, err)
}

func TestRunDueChecksUpdateFailureSkipsMonitor(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	m := baseMonitor()
	require.NoError(t, store.PutMonitor(ctx, &m))
	store.UpdateErr = storage.ErrUnavailable

	s := newTestScheduler(store, &stubProber{outcome: success}, &recordingDispatcher{})

	processed, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	assert.Empty(t, processed)

	// No log entry without a committed transition; the stale due time
	// gets this monitor re-selected on the next scan.
	results, err := store.ResultsByMonitor(ctx, m.Key())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunDueChecksAlertFailureDoesNotUndoTransition(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	m := baseMonitor()
	m.ConsecutiveFails = 1
	require.NoError(t, store.PutMonitor(ctx, &m))

	dispatcher := &recordingDispatcher{err: assert.AnError}
	s := newTestScheduler(store, &stubProber{outcome: timeout}, dispatcher)

	processed, err := s.RunDueChecks(ctx, dueAt)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.True(t, processed[0].Alerted)

	stored, err := store.GetMonitor(ctx, m.ProjectID, m.Slug)
	require.NoError(t, err)
	assert.Equal(t, models.StateDown, stored.State)
}

func TestRunDueChecksRoundsScanInstant(t *testing.T) {
	ctx := context.Background()
	store := fake.New()

	m := baseMonitor()
	m.NextDueAt = dueAt.Add(time.Minute)
	require.NoError(t, store.PutMonitor(ctx, &m))

	s := newTestScheduler(store, &stubProber{outcome: success}, &recordingDispatcher{})

	// 56 seconds into the prior minute rounds up, so a monitor due at
	// the coming minute is picked up instead of under-firing.
	processed, err := s.RunDueChecks(ctx, dueAt.Add(56*time.Second))
	require.NoError(t, err)
	assert.Len(t, processed, 1)
}

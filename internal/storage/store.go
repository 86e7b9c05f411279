package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/calebsyring/critic/internal/models"
)

var (
	// ErrNotFound is returned when a requested monitor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed is returned by UpdateChecked when the stored
	// next_due_at no longer matches the expected value, meaning another
	// scheduler run already advanced this monitor.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnavailable wraps transport-level store failures so callers can
	// distinguish "store unreachable" from data errors.
	ErrUnavailable = errors.New("store unavailable")
)

// CheckedUpdate carries the fields the scheduler writes back after
// processing one due cycle for a monitor.
type CheckedUpdate struct {
	State            models.MonitorState
	ConsecutiveFails int
	NextDueAt        time.Time
	LastAlertedAt    *time.Time
}

// Storer is the persistence contract for monitors and the append-only
// check log.
type Storer interface {
	// GetMonitor retrieves a monitor by identity. Returns ErrNotFound if
	// it does not exist.
	GetMonitor(ctx context.Context, projectID, slug string) (*models.Monitor, error)

	// PutMonitor upserts a full monitor record.
	PutMonitor(ctx context.Context, m *models.Monitor) error

	// DeleteMonitor removes a monitor. Deleting a missing monitor is not
	// an error.
	DeleteMonitor(ctx context.Context, projectID, slug string) error

	// QueryDue returns every monitor whose next_due_at is at or before
	// asOf, via the constant-partition due index. Ordering is
	// unspecified. Pure read.
	QueryDue(ctx context.Context, asOf time.Time) ([]models.Monitor, error)

	// UpdateChecked persists a check transition under the precondition
	// that the stored next_due_at still equals expectedDue. Returns
	// ErrPreconditionFailed when a concurrent run won the race.
	UpdateChecked(ctx context.Context, projectID, slug string, update CheckedUpdate, expectedDue time.Time) error

	// AppendResult appends one immutable check log entry. Appending a
	// second entry for the same (monitor, cycle) is a no-op.
	AppendResult(ctx context.Context, result *models.CheckResult) error

	// ResultsByMonitor returns the check log for one monitor, most recent
	// first.
	ResultsByMonitor(ctx context.Context, monitorKey string) ([]models.CheckResult, error)
}

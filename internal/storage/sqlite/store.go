package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/storage"
)

// Store implements the storage.Storer interface for SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new Store and establishes a connection to the database
// file. It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dataSourceName))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open sqlite database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to ping database")
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// migrate ensures the database schema is created. The (due_partition,
// next_due_at) index mirrors a constant-partition secondary index: every
// monitor shares the sentinel, so the due scan is one indexed range query.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	project_id               TEXT NOT NULL,
	slug                     TEXT NOT NULL,
	url                      TEXT NOT NULL,
	timeout_ms               INTEGER NOT NULL,
	frequency_ms             INTEGER NOT NULL,
	next_due_at              INTEGER NOT NULL,
	due_partition            TEXT NOT NULL DEFAULT 'DUE_MONITOR',
	state                    TEXT NOT NULL,
	consecutive_fails        INTEGER NOT NULL,
	failures_before_alerting INTEGER NOT NULL,
	alert_channels           TEXT NOT NULL,
	realert_ms               INTEGER NOT NULL,
	last_alerted_at          INTEGER,
	assert_status            INTEGER NOT NULL DEFAULT 0,
	assert_body_contains     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, slug)
);
CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors (due_partition, next_due_at);

CREATE TABLE IF NOT EXISTS check_results (
	monitor_key  TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	status       TEXT NOT NULL,
	resp_code    INTEGER NOT NULL,
	latency_secs REAL NOT NULL,
	PRIMARY KEY (monitor_key, ts)
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const monitorColumns = `project_id, slug, url, timeout_ms, frequency_ms, next_due_at,
	state, consecutive_fails, failures_before_alerting, alert_channels, realert_ms,
	last_alerted_at, assert_status, assert_body_contains`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var (
		m             models.Monitor
		timeoutMS     int64
		frequencyMS   int64
		nextDue       int64
		channelsJSON  string
		realertMS     int64
		lastAlertedAt sql.NullInt64
	)
	err := row.Scan(
		&m.ProjectID, &m.Slug, &m.URL, &timeoutMS, &frequencyMS, &nextDue,
		&m.State, &m.ConsecutiveFails, &m.FailuresBeforeAlerting, &channelsJSON,
		&realertMS, &lastAlertedAt, &m.Assertions.StatusCode, &m.Assertions.BodyContains,
	)
	if err != nil {
		return nil, err
	}
	m.Timeout = time.Duration(timeoutMS) * time.Millisecond
	m.Frequency = time.Duration(frequencyMS) * time.Millisecond
	m.NextDueAt = time.Unix(nextDue, 0).UTC()
	m.RealertInterval = time.Duration(realertMS) * time.Millisecond
	if lastAlertedAt.Valid {
		t := time.Unix(lastAlertedAt.Int64, 0).UTC()
		m.LastAlertedAt = &t
	}
	if err := json.Unmarshal([]byte(channelsJSON), &m.AlertChannels); err != nil {
		return nil, errors.Wrapf(err, "failed to decode alert channels for %s", m.Key())
	}
	return &m, nil
}

// GetMonitor retrieves a single monitor by identity.
func (s *Store) GetMonitor(ctx context.Context, projectID, slug string) (*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE project_id = ? AND slug = ?`
	m, err := scanMonitor(s.db.QueryRowContext(ctx, query, projectID, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to get monitor: %v", err)
	}
	return m, nil
}

// PutMonitor upserts a full monitor record.
func (s *Store) PutMonitor(ctx context.Context, m *models.Monitor) error {
	channels, err := json.Marshal(channelsOrEmpty(m.AlertChannels))
	if err != nil {
		return errors.Wrap(err, "failed to encode alert channels")
	}
	query := `
INSERT INTO monitors (project_id, slug, url, timeout_ms, frequency_ms, next_due_at,
	due_partition, state, consecutive_fails, failures_before_alerting, alert_channels,
	realert_ms, last_alerted_at, assert_status, assert_body_contains)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id, slug) DO UPDATE SET
	url = excluded.url,
	timeout_ms = excluded.timeout_ms,
	frequency_ms = excluded.frequency_ms,
	next_due_at = excluded.next_due_at,
	state = excluded.state,
	consecutive_fails = excluded.consecutive_fails,
	failures_before_alerting = excluded.failures_before_alerting,
	alert_channels = excluded.alert_channels,
	realert_ms = excluded.realert_ms,
	last_alerted_at = excluded.last_alerted_at,
	assert_status = excluded.assert_status,
	assert_body_contains = excluded.assert_body_contains`
	_, err = s.db.ExecContext(ctx, query,
		m.ProjectID, m.Slug, m.URL, m.Timeout.Milliseconds(), m.Frequency.Milliseconds(),
		m.NextDueAt.Unix(), models.DuePartition, string(m.State), m.ConsecutiveFails,
		m.FailuresBeforeAlerting, string(channels), m.RealertInterval.Milliseconds(),
		unixOrNil(m.LastAlertedAt), m.Assertions.StatusCode, m.Assertions.BodyContains,
	)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to put monitor: %v", err)
	}
	return nil
}

// DeleteMonitor removes a monitor. Missing rows are not an error.
func (s *Store) DeleteMonitor(ctx context.Context, projectID, slug string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE project_id = ? AND slug = ?`, projectID, slug)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to delete monitor: %v", err)
	}
	return nil
}

// QueryDue returns all monitors due at or before asOf via the due index.
func (s *Store) QueryDue(ctx context.Context, asOf time.Time) ([]models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors
WHERE due_partition = ? AND next_due_at <= ?`
	rows, err := s.db.QueryContext(ctx, query, models.DuePartition, asOf.Unix())
	if err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to query due monitors: %v", err)
	}
	defer rows.Close()
	var due []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, errors.Wrapf(storage.ErrUnavailable, "failed to scan monitor row: %v", err)
		}
		due = append(due, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to read due monitors: %v", err)
	}
	return due, nil
}

// UpdateChecked persists a check transition, conditioned on next_due_at
// still holding the value read at scan time. Zero rows affected means a
// concurrent run already advanced this monitor.
func (s *Store) UpdateChecked(ctx context.Context, projectID, slug string, update storage.CheckedUpdate, expectedDue time.Time) error {
	query := `
UPDATE monitors
SET state = ?, consecutive_fails = ?, next_due_at = ?, last_alerted_at = ?
WHERE project_id = ? AND slug = ? AND next_due_at = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(update.State), update.ConsecutiveFails, update.NextDueAt.Unix(),
		unixOrNil(update.LastAlertedAt), projectID, slug, expectedDue.Unix(),
	)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to update monitor: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to read rows affected: %v", err)
	}
	if affected == 0 {
		return storage.ErrPreconditionFailed
	}
	return nil
}

// AppendResult appends one check log entry. The composite primary key on
// (monitor_key, ts) makes a repeated append for the same due cycle a
// no-op.
func (s *Store) AppendResult(ctx context.Context, result *models.CheckResult) error {
	query := `
INSERT INTO check_results (monitor_key, ts, status, resp_code, latency_secs)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(monitor_key, ts) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		result.MonitorKey, result.Timestamp.Unix(), string(result.Status),
		result.RespCode, result.LatencySecs,
	)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to append check result: %v", err)
	}
	return nil
}

// ResultsByMonitor returns the check log for one monitor, newest first.
func (s *Store) ResultsByMonitor(ctx context.Context, monitorKey string) ([]models.CheckResult, error) {
	query := `
SELECT monitor_key, ts, status, resp_code, latency_secs
FROM check_results WHERE monitor_key = ? ORDER BY ts DESC`
	rows, err := s.db.QueryContext(ctx, query, monitorKey)
	if err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to list check results: %v", err)
	}
	defer rows.Close()
	var results []models.CheckResult
	for rows.Next() {
		var (
			r  models.CheckResult
			ts int64
		)
		if err := rows.Scan(&r.MonitorKey, &ts, &r.Status, &r.RespCode, &r.LatencySecs); err != nil {
			return nil, errors.Wrapf(storage.ErrUnavailable, "failed to scan check result row: %v", err)
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to read check results: %v", err)
	}
	return results, nil
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func channelsOrEmpty(channels []string) []string {
	if channels == nil {
		return []string{}
	}
	return channels
}

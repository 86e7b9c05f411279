package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/storage"
)

// Store implements the storage.Storer interface for PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// New creates a new Store and establishes a connection to the database.
// It also runs migrations to ensure the schema is up to date.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "unable to ping database")
	}
	store := &Store{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *Store) Close() { s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	project_id               TEXT NOT NULL,
	slug                     TEXT NOT NULL,
	url                      TEXT NOT NULL,
	timeout_ms               BIGINT NOT NULL,
	frequency_ms             BIGINT NOT NULL,
	next_due_at              BIGINT NOT NULL,
	due_partition            TEXT NOT NULL DEFAULT 'DUE_MONITOR',
	state                    TEXT NOT NULL,
	consecutive_fails        INTEGER NOT NULL,
	failures_before_alerting INTEGER NOT NULL,
	alert_channels           JSONB NOT NULL,
	realert_ms               BIGINT NOT NULL,
	last_alerted_at          BIGINT,
	assert_status            INTEGER NOT NULL DEFAULT 0,
	assert_body_contains     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, slug)
);
CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors (due_partition, next_due_at);

CREATE TABLE IF NOT EXISTS check_results (
	monitor_key  TEXT NOT NULL,
	ts           BIGINT NOT NULL,
	status       TEXT NOT NULL,
	resp_code    INTEGER NOT NULL,
	latency_secs DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (monitor_key, ts)
);
`
	_, err := s.db.Exec(ctx, schema)
	return err
}

const monitorColumns = `project_id, slug, url, timeout_ms, frequency_ms, next_due_at,
	state, consecutive_fails, failures_before_alerting, alert_channels, realert_ms,
	last_alerted_at, assert_status, assert_body_contains`

func scanMonitor(row pgx.Row) (*models.Monitor, error) {
	var (
		m             models.Monitor
		timeoutMS     int64
		frequencyMS   int64
		nextDue       int64
		channelsJSON  []byte
		realertMS     int64
		lastAlertedAt *int64
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
	if lastAlertedAt != nil {
		t := time.Unix(*lastAlertedAt, 0).UTC()
		m.LastAlertedAt = &t
	}
	if err := json.Unmarshal(channelsJSON, &m.AlertChannels); err != nil {
		return nil, errors.Wrapf(err, "failed to decode alert channels for %s", m.Key())
	}
	return &m, nil
}

// GetMonitor retrieves a single monitor by identity.
func (s *Store) GetMonitor(ctx context.Context, projectID, slug string) (*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE project_id = $1 AND slug = $2`
	m, err := scanMonitor(s.db.QueryRow(ctx, query, projectID, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(storage.ErrUnavailable, "failed to get monitor: %v", err)
	}
	return m, nil
}

// PutMonitor upserts a full monitor record.
func (s *Store) PutMonitor(ctx context.Context, m *models.Monitor) error {
	channels := m.AlertChannels
	if channels == nil {
		channels = []string{}
	}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return errors.Wrap(err, "failed to encode alert channels")
	}
	query := `
INSERT INTO monitors (project_id, slug, url, timeout_ms, frequency_ms, next_due_at,
	due_partition, state, consecutive_fails, failures_before_alerting, alert_channels,
	realert_ms, last_alerted_at, assert_status, assert_body_contains)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (project_id, slug) DO UPDATE SET
	url = EXCLUDED.url,
	timeout_ms = EXCLUDED.timeout_ms,
	frequency_ms = EXCLUDED.frequency_ms,
	next_due_at = EXCLUDED.next_due_at,
	state = EXCLUDED.state,
	consecutive_fails = EXCLUDED.consecutive_fails,
	failures_before_alerting = EXCLUDED.failures_before_alerting,
	alert_channels = EXCLUDED.alert_channels,
	realert_ms = EXCLUDED.realert_ms,
	last_alerted_at = EXCLUDED.last_alerted_at,
	assert_status = EXCLUDED.assert_status,
	assert_body_contains = EXCLUDED.assert_body_contains`
	_, err = s.db.Exec(ctx, query,
		m.ProjectID, m.Slug, m.URL, m.Timeout.Milliseconds(), m.Frequency.Milliseconds(),
		m.NextDueAt.Unix(), models.DuePartition, string(m.State), m.ConsecutiveFails,
		m.FailuresBeforeAlerting, channelsJSON, m.RealertInterval.Milliseconds(),
		unixOrNil(m.LastAlertedAt), m.Assertions.StatusCode, m.Assertions.BodyContains,
	)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to put monitor: %v", err)
	}
	return nil
}

// DeleteMonitor removes a monitor. Missing rows are not an error.
func (s *Store) DeleteMonitor(ctx context.Context, projectID, slug string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM monitors WHERE project_id = $1 AND slug = $2`, projectID, slug)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to delete monitor: %v", err)
	}
	return nil
}

// QueryDue returns all monitors due at or before asOf via the due index.
func (s *Store) QueryDue(ctx context.Context, asOf time.Time) ([]models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors
WHERE due_partition = $1 AND next_due_at <= $2`
	rows, err := s.db.Query(ctx, query, models.DuePartition, asOf.Unix())
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
// still holding the value read at scan time.
func (s *Store) UpdateChecked(ctx context.Context, projectID, slug string, update storage.CheckedUpdate, expectedDue time.Time) error {
	query := `
UPDATE monitors
SET state = $1, consecutive_fails = $2, next_due_at = $3, last_alerted_at = $4
WHERE project_id = $5 AND slug = $6 AND next_due_at = $7`
	tag, err := s.db.Exec(ctx, query,
		string(update.State), update.ConsecutiveFails, update.NextDueAt.Unix(),
		unixOrNil(update.LastAlertedAt), projectID, slug, expectedDue.Unix(),
	)
	if err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "failed to update monitor: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPreconditionFailed
	}
	return nil
}

// AppendResult appends one check log entry, deduplicated per due cycle.
func (s *Store) AppendResult(ctx context.Context, result *models.CheckResult) error {
	query := `
INSERT INTO check_results (monitor_key, ts, status, resp_code, latency_secs)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (monitor_key, ts) DO NOTHING`
	_, err := s.db.Exec(ctx, query,
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
FROM check_results WHERE monitor_key = $1 ORDER BY ts DESC`
	rows, err := s.db.Query(ctx, query, monitorKey)
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

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

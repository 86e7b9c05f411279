package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/calebsyring/critic/internal/models"
	"github.com/calebsyring/critic/internal/storage"
)

// Store is an in-memory storage.Storer for tests. It honors the same
// conditional-update and log-dedup semantics as the SQL backends, and can
// be made to fail on demand.
type Store struct {
	mu       sync.Mutex
	monitors map[string]models.Monitor
	results  map[string]map[int64]models.CheckResult

	// QueryDueErr, when set, is returned by QueryDue.
	QueryDueErr error

	// UpdateErr, when set, is returned by UpdateChecked.
	UpdateErr error

	// AppendErr, when set, is returned by AppendResult.
	AppendErr error
}

// New creates an empty fake store.
func New() *Store {
	return &Store{
		monitors: make(map[string]models.Monitor),
		results:  make(map[string]map[int64]models.CheckResult),
	}
}

func key(projectID, slug string) string { return projectID + "/" + slug }

// GetMonitor implements storage.Storer.
func (s *Store) GetMonitor(ctx context.Context, projectID, slug string) (*models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[key(projectID, slug)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

// PutMonitor implements storage.Storer.
func (s *Store) PutMonitor(ctx context.Context, m *models.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[m.Key()] = *m
	return nil
}

// DeleteMonitor implements storage.Storer.
func (s *Store) DeleteMonitor(ctx context.Context, projectID, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitors, key(projectID, slug))
	return nil
}

// QueryDue implements storage.Storer.
func (s *Store) QueryDue(ctx context.Context, asOf time.Time) ([]models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryDueErr != nil {
		return nil, s.QueryDueErr
	}
	var due []models.Monitor
	for _, m := range s.monitors {
		if !m.NextDueAt.After(asOf) {
			due = append(due, m)
		}
	}
	return due, nil
}

// UpdateChecked implements storage.Storer.
func (s *Store) UpdateChecked(ctx context.Context, projectID, slug string, update storage.CheckedUpdate, expectedDue time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	k := key(projectID, slug)
	m, ok := s.monitors[k]
	if !ok || !m.NextDueAt.Equal(expectedDue) {
		return storage.ErrPreconditionFailed
	}
	m.State = update.State
	m.ConsecutiveFails = update.ConsecutiveFails
	m.NextDueAt = update.NextDueAt
	m.LastAlertedAt = update.LastAlertedAt
	s.monitors[k] = m
	return nil
}

// AppendResult implements storage.Storer.
func (s *Store) AppendResult(ctx context.Context, result *models.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	byTS, ok := s.results[result.MonitorKey]
	if !ok {
		byTS = make(map[int64]models.CheckResult)
		s.results[result.MonitorKey] = byTS
	}
	ts := result.Timestamp.Unix()
	if _, exists := byTS[ts]; exists {
		return nil
	}
	byTS[ts] = *result
	return nil
}

// ResultsByMonitor implements storage.Storer.
func (s *Store) ResultsByMonitor(ctx context.Context, monitorKey string) ([]models.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []models.CheckResult
	for _, r := range s.results[monitorKey] {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMonitor() Monitor {
	return Monitor{
		ProjectID:              "7f9c24e8-3b12-4b8f-9f60-1c2d4a5b6c7d",
		Slug:                   "checkout-api",
		URL:                    "https://example.com/health",
		Timeout:                5 * time.Second,
		Frequency:              time.Minute,
		NextDueAt:              time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
		State:                  StateUp,
		ConsecutiveFails:       0,
		FailuresBeforeAlerting: 2,
		RealertInterval:        time.Hour,
	}
}

func TestMonitorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Monitor)
		wantErr bool
	}{
		{
			name:   "valid monitor",
			mutate: func(m *Monitor) {},
		},
		{
			name:    "bad project id",
			mutate:  func(m *Monitor) { m.ProjectID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "uppercase slug",
			mutate:  func(m *Monitor) { m.Slug = "Checkout" },
			wantErr: true,
		},
		{
			name:    "slug with trailing dash",
			mutate:  func(m *Monitor) { m.Slug = "checkout-" },
			wantErr: true,
		},
		{
			name:    "relative url",
			mutate:  func(m *Monitor) { m.URL = "/health" },
			wantErr: true,
		},
		{
			name:    "non-http scheme",
			mutate:  func(m *Monitor) { m.URL = "ftp://example.com" },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(m *Monitor) { m.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "sub-minute frequency",
			mutate:  func(m *Monitor) { m.Frequency = 30 * time.Second },
			wantErr: true,
		},
		{
			name:    "fractional-minute frequency",
			mutate:  func(m *Monitor) { m.Frequency = 90 * time.Second },
			wantErr: true,
		},
		{
			name:    "sub-minute due time precision",
			mutate:  func(m *Monitor) { m.NextDueAt = m.NextDueAt.Add(30 * time.Second) },
			wantErr: true,
		},
		{
			name:    "zero due time",
			mutate:  func(m *Monitor) { m.NextDueAt = time.Time{} },
			wantErr: true,
		},
		{
			name:    "unknown state",
			mutate:  func(m *Monitor) { m.State = "degraded" },
			wantErr: true,
		},
		{
			name:    "negative consecutive fails",
			mutate:  func(m *Monitor) { m.ConsecutiveFails = -1 },
			wantErr: true,
		},
		{
			name:    "zero failure threshold",
			mutate:  func(m *Monitor) { m.FailuresBeforeAlerting = 0 },
			wantErr: true,
		},
		{
			name:    "realert interval below floor",
			mutate:  func(m *Monitor) { m.RealertInterval = 5 * time.Minute },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMonitor()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMonitorKey(t *testing.T) {
	m := validMonitor()
	assert.Equal(t, "7f9c24e8-3b12-4b8f-9f60-1c2d4a5b6c7d/checkout-api", m.Key())
}

func TestNewMonitorDefaults(t *testing.T) {
	m := New("7f9c24e8-3b12-4b8f-9f60-1c2d4a5b6c7d", "web", "https://example.com")
	require.NoError(t, m.Validate())

	assert.Equal(t, StateNew, m.State)
	assert.Equal(t, 0, m.ConsecutiveFails)
	assert.Equal(t, 1, m.FailuresBeforeAlerting)
	assert.Zero(t, m.NextDueAt.Second())
	assert.Zero(t, m.NextDueAt.Nanosecond())
}

package timeutil

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRoundToMinute(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "exact minute is unchanged",
			input:    time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
			expected: time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
		},
		{
			name:     "mid-minute rounds down",
			input:    time.Date(2024, 3, 1, 12, 34, 10, 0, time.UTC),
			expected: time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
		},
		{
			name:     "54 seconds still rounds down",
			input:    time.Date(2024, 3, 1, 12, 34, 54, 999_000_000, time.UTC),
			expected: time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
		},
		{
			name:     "55 seconds rounds up to the coming minute",
			input:    time.Date(2024, 3, 1, 12, 34, 55, 0, time.UTC),
			expected: time.Date(2024, 3, 1, 12, 35, 0, 0, time.UTC),
		},
		{
			name:     "59 seconds rounds up across the hour",
			input:    time.Date(2024, 3, 1, 12, 59, 59, 0, time.UTC),
			expected: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name:     "non-utc input is normalized",
			input:    time.Date(2024, 3, 1, 12, 34, 10, 0, time.FixedZone("CET", 3600)),
			expected: time.Date(2024, 3, 1, 11, 34, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(RoundToMinute(tt.input)))
		})
	}
}

func TestValidMinuteStamp(t *testing.T) {
	assert.NoError(t, ValidMinuteStamp(time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC)))

	err := ValidMinuteStamp(time.Time{})
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))

	err = ValidMinuteStamp(time.Date(2024, 3, 1, 12, 34, 30, 0, time.UTC))
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))

	err = ValidMinuteStamp(time.Date(2024, 3, 1, 12, 34, 0, 1, time.UTC))
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))
}

func TestNowIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Now().Location())
}

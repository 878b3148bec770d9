package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donsmila-fx/piclaim/scheduler"
)

func TestNextDaily(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timeOfDay string
		want      time.Time
	}{
		{
			name:      "later today",
			timeOfDay: "14:30:00",
			want:      time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC),
		},
		{
			name:      "already passed rolls to tomorrow",
			timeOfDay: "09:00:00",
			want:      time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		},
		{
			name:      "midnight",
			timeOfDay: "00:00:00",
			want:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scheduler.NextDaily(now, tt.timeOfDay)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNextDaily_ExactlyNowRollsOver(t *testing.T) {
	now := time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)
	got, err := scheduler.NextDaily(now, "14:30:00")
	require.NoError(t, err)
	assert.True(t, got.After(now), "next instant must be strictly after now, got %s", got)
}

func TestNextDaily_InvalidFormat(t *testing.T) {
	for _, bad := range []string{"", "14:30", "25:00:00", "14-30-00", "later"} {
		_, err := scheduler.NextDaily(time.Now(), bad)
		assert.Error(t, err, "input %q", bad)
	}
}

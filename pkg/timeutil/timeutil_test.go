package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestWholeSeconds(t *testing.T) {
	assert.Equal(t, 0, WholeSeconds(-time.Second))
	assert.Equal(t, 0, WholeSeconds(999*time.Millisecond))
	assert.Equal(t, 61, WholeSeconds(61500*time.Millisecond))
}

func TestFormatPlayTime(t *testing.T) {
	tests := map[int]string{
		-4:   "0s",
		0:    "0s",
		45:   "45s",
		750:  "12m 30s",
		3900: "1h 05m",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatPlayTime(in), "seconds=%d", in)
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{-time.Minute, "just now"},
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{30 * time.Hour, "yesterday"},
		{4 * 24 * time.Hour, "4 days ago"},
		{60 * 24 * time.Hour, "2025-04-11"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRelative(now.Add(-tt.ago), now), "ago=%s", tt.ago)
	}
}

package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	booked := NewInterval(base, 60)

	tests := []struct {
		name     string
		start    time.Time
		duration int
		want     bool
	}{
		{"identical", base, 60, true},
		{"starts inside", base.Add(30 * time.Minute), 60, true},
		{"ends inside", base.Add(-30 * time.Minute), 60, true},
		{"contains", base.Add(-time.Hour), 180, true},
		{"contained", base.Add(15 * time.Minute), 15, true},
		{"touches end", base.Add(time.Hour), 30, false},
		{"touches start", base.Add(-30 * time.Minute), 30, false},
		{"disjoint", base.Add(3 * time.Hour), 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := NewInterval(tt.start, tt.duration)
			assert.Equal(t, tt.want, candidate.Overlaps(booked))
			assert.Equal(t, tt.want, booked.Overlaps(candidate))
		})
	}
}

func TestAppointmentEnd(t *testing.T) {
	start := time.Date(2025, 3, 10, 17, 30, 0, 0, time.UTC)
	a := Appointment{StartTime: start, DurationMinutes: 90}

	assert.Equal(t, start.Add(90*time.Minute), a.End())
	assert.Equal(t, Interval{Start: start, End: a.End()}, a.Interval())
}

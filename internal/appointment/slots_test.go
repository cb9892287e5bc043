package appointment

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGridCandidates(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	got := DefaultSlotGrid().Candidates(day)

	require.Len(t, got, 20)
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2025, 3, 10, 17, 30, 0, 0, time.UTC), got[19])
	for i := 1; i < len(got); i++ {
		assert.Equal(t, 30*time.Minute, got[i].Sub(got[i-1]))
	}
}

func TestGridUsesCalendarDayInLocation(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	grid := SlotGrid{Open: 9 * time.Hour, Close: 12 * time.Hour, Step: time.Hour, Location: madrid}
	got := grid.Candidates(time.Date(2025, 3, 10, 0, 0, 0, 0, madrid))

	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, madrid), got[0])
	assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), got[0].UTC())
}

func TestGridTakesDayFromClinicClock(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		loc  *time.Location
		date time.Time
		want time.Time
	}{
		{
			name: "late UTC instant is already tomorrow in Madrid",
			loc:  madrid,
			date: time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			want: time.Date(2025, 3, 11, 9, 0, 0, 0, madrid),
		},
		{
			name: "UTC midnight is still yesterday in New York",
			loc:  newYork,
			date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 9, 9, 0, 0, 0, newYork),
		},
		{
			name: "local midnight keeps its day",
			loc:  newYork,
			date: time.Date(2025, 3, 10, 0, 0, 0, 0, newYork),
			want: time.Date(2025, 3, 10, 9, 0, 0, 0, newYork),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			grid := SlotGrid{Open: 9 * time.Hour, Close: 12 * time.Hour, Step: time.Hour, Location: tc.loc}
			got := grid.Candidates(tc.date)
			require.Len(t, got, 3)
			assert.True(t, got[0].Equal(tc.want), "got %s want %s", got[0], tc.want)
		})
	}
}

func TestGridRejectsDegenerateConfig(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, SlotGrid{Open: 8 * time.Hour, Close: 8 * time.Hour, Step: time.Hour}.Candidates(day))
	assert.Empty(t, SlotGrid{Open: 8 * time.Hour, Close: 18 * time.Hour}.Candidates(day))
}

func TestDayWindowCoversLastCandidate(t *testing.T) {
	grid := DefaultSlotGrid()
	candidates := grid.Candidates(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	w := grid.dayWindow(candidates, 90)

	assert.Equal(t, candidates[0], w.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC), w.End)
}

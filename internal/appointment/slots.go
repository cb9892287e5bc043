package appointment

import "time"

// SlotGrid describes the candidate start times offered on a business day.
// Open and Close are offsets from local midnight in Location; Close is exclusive.
type SlotGrid struct {
	Open     time.Duration
	Close    time.Duration
	Step     time.Duration
	Location *time.Location
}

// Loc returns the grid location, UTC when unset.
func (g SlotGrid) Loc() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}

func DefaultSlotGrid() SlotGrid {
	return SlotGrid{
		Open:     8 * time.Hour,
		Close:    18 * time.Hour,
		Step:     30 * time.Minute,
		Location: time.UTC,
	}
}

// Candidates returns the grid start times, ascending, for the calendar day
// that date falls on in the grid's location.
func (g SlotGrid) Candidates(date time.Time) []time.Time {
	loc := g.Loc()
	if g.Step <= 0 || g.Close <= g.Open {
		return nil
	}

	y, m, d := date.In(loc).Date()
	out := make([]time.Time, 0, int((g.Close-g.Open)/g.Step)+1)
	for offset := g.Open; offset < g.Close; offset += g.Step {
		out = append(out, time.Date(y, m, d, 0, int(offset/time.Minute), 0, 0, loc))
	}
	return out
}

// dayWindow is the range any candidate of durationMinutes can touch.
func (g SlotGrid) dayWindow(candidates []time.Time, durationMinutes int) Interval {
	if len(candidates) == 0 {
		return Interval{}
	}
	last := candidates[len(candidates)-1]
	return Interval{
		Start: candidates[0],
		End:   last.Add(time.Duration(durationMinutes) * time.Minute),
	}
}

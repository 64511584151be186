package domain

import (
	"fmt"
	"time"
)

// QuietHours is an hour-of-day window (0..23, both ends inclusive) during which
// nudges are suppressed. Start > End means the window spans midnight.
type QuietHours struct {
	Start int
	End   int
}

// Validate checks that both bounds are valid hours.
func (q QuietHours) Validate() error {
	if q.Start < 0 || q.Start > 23 || q.End < 0 || q.End > 23 {
		return fmt.Errorf("%w: hours must be in 0..23, got %d-%d", ErrInvalidWindow, q.Start, q.End)
	}
	return nil
}

// Contains reports whether hour falls inside the quiet window.
// Supports wrap-around windows like 22–6 (start > end).
func (q QuietHours) Contains(hour int) bool {
	if q.Start > q.End {
		// wrap: [start..23] U [0..end]
		return hour >= q.Start || hour <= q.End
	}
	return hour >= q.Start && hour <= q.End
}

// String renders the window as "22:00–06:59".
func (q QuietHours) String() string {
	return fmt.Sprintf("%s–%s", FormatMinutes(q.Start*60), FormatMinutes(q.End*60+59))
}

// EndsAt returns the first moment after now that lies outside the window.
// If now is already outside, now is returned unchanged.
func (q QuietHours) EndsAt(now time.Time) time.Time {
	if !q.Contains(now.Hour()) {
		return now
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	for attempts := 0; attempts < 24; attempts++ {
		t = t.Add(time.Hour)
		if !q.Contains(t.Hour()) {
			return t
		}
	}
	// Every hour is quiet: nothing ever ends.
	return now.Add(24 * time.Hour)
}

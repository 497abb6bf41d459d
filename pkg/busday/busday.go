// Package busday carries the calendar arithmetic for maintenance scheduling:
// weekend avoidance and clamped month addition.
package busday

import "time"

// IsBusinessDay reports whether a date falls on a working day. It is a
// package variable so deployments with a holiday calendar can swap it out.
var IsBusinessDay = func(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevBusinessDay shifts a date backward to the nearest business day.
// It never moves forward, so a due date never slips later than computed.
func PrevBusinessDay(t time.Time) time.Time {
	for !IsBusinessDay(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// AddMonths performs calendar-month addition with day-of-month clamping:
// Jan 31 + 1 month is the last day of February, not March 2. Go's AddDate
// normalizes overflow forward, which is the wrong direction for a due date.
func AddMonths(t time.Time, months int) time.Time {
	y := t.Year()
	m := int(t.Month()) - 1 + months
	y += m / 12
	m = m % 12
	if m < 0 {
		m += 12
		y--
	}
	month := time.Month(m + 1)

	day := t.Day()
	if last := daysIn(y, month); day > last {
		day = last
	}

	return time.Date(y, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DateOf truncates a timestamp to its calendar date, preserving location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

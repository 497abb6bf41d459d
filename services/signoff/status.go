package signoff

import (
	"time"

	"upkeep/pkg/busday"
)

// Status is the display classification of an occurrence, derived from its
// dates at read time. It is never stored.
type Status string

var (
	StatusScheduled Status = "Scheduled"
	StatusDueToday  Status = "Due Today"
	StatusOverdue   Status = "Overdue"
	StatusCompleted Status = "Completed"
)

// Classify derives the display status of an occurrence. Completion wins over
// everything. Otherwise the due date is compared to now by calendar date,
// ignoring time of day in both values.
func Classify(dueDate time.Time, completedAt *time.Time, now time.Time) Status {
	if completedAt != nil {
		return StatusCompleted
	}
	if dueDate.IsZero() {
		return StatusScheduled
	}
	due := busday.DateOf(dueDate)
	today := busday.DateOf(now)
	switch {
	case due.Equal(today):
		return StatusDueToday
	case due.Before(today):
		return StatusOverdue
	default:
		return StatusScheduled
	}
}

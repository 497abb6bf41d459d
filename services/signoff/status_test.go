package signoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 12, 14, 30, 0, 0, time.UTC)
	done := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		dueDate     time.Time
		completedAt *time.Time
		want        Status
	}{
		{
			name:    "future due date is scheduled",
			dueDate: time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC),
			want:    StatusScheduled,
		},
		{
			name:    "same calendar day is due today",
			dueDate: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC),
			want:    StatusDueToday,
		},
		{
			name:    "same day later clock time is still due today",
			dueDate: time.Date(2024, 6, 12, 23, 59, 0, 0, time.UTC),
			want:    StatusDueToday,
		},
		{
			name:    "zero due date is scheduled",
			dueDate: time.Time{},
			want:    StatusScheduled,
		},
		{
			name:    "past due date is overdue",
			dueDate: time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC),
			want:    StatusOverdue,
		},
		{
			name:        "completion wins over overdue",
			dueDate:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			completedAt: &done,
			want:        StatusCompleted,
		},
		{
			name:        "completion wins over future date",
			dueDate:     time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			completedAt: &done,
			want:        StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.dueDate, tt.completedAt, now))
		})
	}
}

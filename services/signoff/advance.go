package signoff

import (
	"context"
	"time"

	"go.uber.org/zap"

	"upkeep/pkg/busday"
	"upkeep/pkg/db/option"
	"upkeep/pkg/interval"
	"upkeep/services/plan"
)

// scheduleNext creates the follow-up occurrence after a completion. Tasks
// whose interval parses to zero or less recur monthly. The next date is the
// completion date advanced by the interval, pulled back off weekends. If the
// task already has a pending occurrence no new row is created.
func (s *Service) scheduleNext(ctx context.Context, task *plan.Task, completedAt time.Time) (*SignOff, error) {
	months := interval.ParseMonths(task.MaintenanceInterval)
	if months <= 0 {
		months = 1
	}

	pending, err := s.signoffs.FindOne(ctx, &SignOff{TaskID: task.ID, State: StatePending},
		option.ApplyOperator(option.Condition{Field: "completion_date", Operator: option.IsNull}),
	)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		zap.L().Debug("task already has a pending occurrence, skip scheduling",
			zap.String("task_id", task.ID),
		)
		return nil, nil
	}

	next := busday.PrevBusinessDay(busday.AddMonths(busday.DateOf(completedAt), months))
	row := &SignOff{
		ID:            s.node.Generate().String(),
		TaskID:        task.ID,
		DueDate:       next,
		ScheduledDate: next,
		State:         StatePending,
	}
	if err := s.signoffs.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

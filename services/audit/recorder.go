package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"upkeep/pkg/db/option"
	"upkeep/pkg/errutil"
	"upkeep/pkg/repository"
)

// FieldSet maps a display field label ("Task Name") to its value. Values may
// be strings or string slices; slices are compared and stored newline-joined.
type FieldSet map[string]any

// Recorder computes field-level diffs of a task definition and appends one
// audit row per changed field. Persistence is best effort: a storage failure
// is logged and never propagated, so it cannot block the mutation it trails.
type Recorder struct {
	node *snowflake.Node
	repo repository.Repository[TaskAudit]
}

type RecorderParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewRecorder(p RecorderParams) *Recorder {
	return &Recorder{
		node: p.Node,
		repo: repository.ProvideStore[TaskAudit](p.DB),
	}
}

// RecordChanges diffs every field present in after against before and writes
// one audit row per actual change, attributed to userID. Unchanged fields
// produce no rows.
func (r *Recorder) RecordChanges(ctx context.Context, taskID, userID string, before, after FieldSet) {
	fields := make([]string, 0, len(after))
	for field := range after {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var records []*TaskAudit
	for _, field := range fields {
		prev := Stringify(before[field])
		next := Stringify(after[field])
		if prev == next {
			continue
		}
		records = append(records, &TaskAudit{
			ID:            r.node.Generate().String(),
			TaskID:        taskID,
			UserID:        userID,
			ChangedField:  field,
			PreviousValue: prev,
			NewValue:      next,
			CreatedAt:     time.Now(),
		})
	}

	if len(records) == 0 {
		return
	}

	if err := r.repo.BatchCreate(ctx, records); err != nil {
		zap.L().Error("failed to persist audit records",
			zap.String("task_id", taskID),
			zap.String("user_id", userID),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
	}
}

// Trail returns the audit history for a task, newest first.
func (r *Recorder) Trail(ctx context.Context, taskID string) ([]*TaskAudit, error) {
	rows, err := r.repo.Find(ctx, &TaskAudit{TaskID: taskID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow: map[string]bool{
				"created_at": true,
			},
		}),
	)
	if err != nil {
		zap.L().Error("failed to load audit trail", zap.String("task_id", taskID), zap.Error(err))
		return nil, errutil.Internal("failed to load audit trail", err)
	}
	return rows, nil
}

// Stringify renders a field value the way it is stored in an audit row.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		return strings.Join(value, "\n")
	default:
		return fmt.Sprint(value)
	}
}

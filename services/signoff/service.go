package signoff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"upkeep/pkg/access"
	"upkeep/pkg/busday"
	"upkeep/pkg/db/option"
	"upkeep/pkg/db/pagination"
	"upkeep/pkg/errutil"
	"upkeep/pkg/interval"
	"upkeep/pkg/objectstore"
	"upkeep/pkg/repository"
	"upkeep/services/audit"
	"upkeep/services/plan"
)

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	checker     access.Checker
	audit       *audit.Recorder
	files       objectstore.Store
	signoffs    repository.Repository[SignOff]
	consumables repository.Repository[ConsumableUsage]
	attachments repository.Repository[Attachment]
	tasks       repository.Repository[plan.Task]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Checker access.Checker
	Audit   *audit.Recorder
	Files   objectstore.Store `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		checker:     p.Checker,
		audit:       p.Audit,
		files:       p.Files,
		signoffs:    repository.ProvideStore[SignOff](p.DB),
		consumables: repository.ProvideStore[ConsumableUsage](p.DB),
		attachments: repository.ProvideStore[Attachment](p.DB),
		tasks:       repository.ProvideStore[plan.Task](p.DB),
		now:         time.Now,
	}
}

// Get returns a single occurrence by id.
func (s *Service) Get(ctx context.Context, signOffID string) (*SignOff, error) {
	if strings.TrimSpace(signOffID) == "" {
		return nil, errutil.ValidationFailed("signoff_id is required", nil)
	}
	row, err := s.signoffs.FindOne(ctx, &SignOff{ID: signOffID})
	if err != nil {
		return nil, errutil.Internal("failed to load occurrence", err)
	}
	if row == nil {
		return nil, errutil.NotFound("occurrence not found", nil)
	}
	return row, nil
}

type EditRequest struct {
	UserID    string `json:"-"`
	SiteID    string `json:"-"`
	SignOffID string `json:"-"`

	Name                *string   `json:"name"`
	Instructions        *[]string `json:"instructions"`
	EstimatedMinutes    *int      `json:"estimated_minutes"`
	ToolsNeeded         *string   `json:"tools_needed"`
	TechniciansNeeded   *int      `json:"technicians_needed"`
	Consumables         *[]string `json:"consumables"`
	Criticality         *string   `json:"criticality"`
	Reason              *string   `json:"reason"`
	SafetyPrecautions   *string   `json:"safety_precautions"`
	MaintenanceInterval *string   `json:"maintenance_interval"`

	ScheduledDate *time.Time `json:"scheduled_date"`
	ScheduledTime *string    `json:"scheduled_time"`
}

// Edit updates the task definition behind a pending occurrence and,
// optionally, the occurrence schedule. Every changed field is written to the
// audit trail attributed to the editing user. Completed or deleted
// occurrences reject edits.
func (s *Service) Edit(ctx context.Context, req EditRequest) (*SignOff, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	if err := s.requireEdit(ctx, req.UserID, req.SiteID); err != nil {
		return nil, err
	}

	row, err := s.Get(ctx, req.SignOffID)
	if err != nil {
		return nil, err
	}
	if err := requirePending(row); err != nil {
		return nil, err
	}

	task, err := s.taskOf(ctx, row.TaskID)
	if err != nil {
		return nil, err
	}

	before := audit.FieldSet{}
	after := audit.FieldSet{}
	taskUpdates := map[string]any{}

	if req.Name != nil {
		before["Task Name"], after["Task Name"] = task.Name, *req.Name
		taskUpdates["name"] = *req.Name
	}
	if req.Instructions != nil {
		before["Instructions"], after["Instructions"] = task.InstructionList(), *req.Instructions
		taskUpdates["instructions"] = mustJSON(*req.Instructions)
	}
	if req.EstimatedMinutes != nil {
		before["Estimated Time"], after["Estimated Time"] = task.EstimatedMinutes, *req.EstimatedMinutes
		taskUpdates["estimated_minutes"] = *req.EstimatedMinutes
	}
	if req.ToolsNeeded != nil {
		before["Tools Needed"], after["Tools Needed"] = task.ToolsNeeded, *req.ToolsNeeded
		taskUpdates["tools_needed"] = *req.ToolsNeeded
	}
	if req.TechniciansNeeded != nil {
		before["Technicians Needed"], after["Technicians Needed"] = task.TechniciansNeeded, *req.TechniciansNeeded
		taskUpdates["technicians_needed"] = *req.TechniciansNeeded
	}
	if req.Consumables != nil {
		before["Consumables"], after["Consumables"] = task.ConsumableList(), *req.Consumables
		taskUpdates["consumables"] = mustJSON(*req.Consumables)
	}
	if req.Criticality != nil {
		before["Criticality"], after["Criticality"] = task.Criticality, *req.Criticality
		taskUpdates["criticality"] = *req.Criticality
	}
	if req.Reason != nil {
		before["Reason"], after["Reason"] = task.Reason, *req.Reason
		taskUpdates["reason"] = *req.Reason
	}
	if req.SafetyPrecautions != nil {
		before["Safety Precautions"], after["Safety Precautions"] = task.SafetyPrecautions, *req.SafetyPrecautions
		taskUpdates["safety_precautions"] = *req.SafetyPrecautions
	}
	if req.MaintenanceInterval != nil {
		before["Maintenance Interval"], after["Maintenance Interval"] = task.MaintenanceInterval, *req.MaintenanceInterval
		taskUpdates["maintenance_interval"] = *req.MaintenanceInterval
	}

	signOffUpdates := map[string]any{}
	if req.ScheduledDate != nil {
		next := busday.DateOf(*req.ScheduledDate)
		before["Scheduled Date"], after["Scheduled Date"] = formatDate(row.ScheduledDate), formatDate(next)
		signOffUpdates["scheduled_date"] = next
		signOffUpdates["due_date"] = next
	}
	if req.ScheduledTime != nil {
		before["Scheduled Time"], after["Scheduled Time"] = strValue(row.ScheduledTime), *req.ScheduledTime
		signOffUpdates["scheduled_time"] = *req.ScheduledTime
	}

	s.audit.RecordChanges(ctx, task.ID, req.UserID, before, after)

	if len(taskUpdates) == 0 && len(signOffUpdates) == 0 {
		return row, nil
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(taskUpdates) > 0 {
			if err := s.tasks.WithTrx(tx).Update(ctx, task.ID, taskUpdates); err != nil {
				return fmt.Errorf("failed to update task %s: %w", task.ID, err)
			}
		}
		if len(signOffUpdates) > 0 {
			if err := s.signoffs.WithTrx(tx).Update(ctx, row.ID, signOffUpdates); err != nil {
				return fmt.Errorf("failed to update occurrence %s: %w", row.ID, err)
			}
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to apply edit", zap.String("signoff_id", row.ID), zap.Error(err))
		return nil, errutil.Internal("failed to update occurrence", err)
	}

	return s.Get(ctx, row.ID)
}

type RescheduleRequest struct {
	UserID    string `json:"-"`
	SiteID    string `json:"-"`
	SignOffID string `json:"-"`

	ScheduledDate time.Time `json:"scheduled_date"`
	ScheduledTime *string   `json:"scheduled_time"`
}

// Reschedule moves a pending occurrence to a new date. The due date follows
// the scheduled date so status classification tracks the move. Dropping an
// occurrence onto the date it already occupies is a no-op.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*SignOff, error) {
	if err := s.requireEdit(ctx, req.UserID, req.SiteID); err != nil {
		return nil, err
	}
	if req.ScheduledDate.IsZero() {
		return nil, errutil.ValidationFailed("scheduled_date is required", nil)
	}

	row, err := s.Get(ctx, req.SignOffID)
	if err != nil {
		return nil, err
	}
	if err := requirePending(row); err != nil {
		return nil, err
	}

	next := busday.DateOf(req.ScheduledDate)
	sameTime := req.ScheduledTime == nil ||
		strValue(row.ScheduledTime) == *req.ScheduledTime
	if busday.DateOf(row.ScheduledDate).Equal(next) && sameTime {
		return row, nil
	}

	before := audit.FieldSet{"Scheduled Date": formatDate(row.ScheduledDate)}
	after := audit.FieldSet{"Scheduled Date": formatDate(next)}
	if req.ScheduledTime != nil {
		before["Scheduled Time"] = strValue(row.ScheduledTime)
		after["Scheduled Time"] = *req.ScheduledTime
	}
	s.audit.RecordChanges(ctx, row.TaskID, req.UserID, before, after)

	updates := map[string]any{
		"scheduled_date": next,
		"due_date":       next,
	}
	if req.ScheduledTime != nil {
		updates["scheduled_time"] = *req.ScheduledTime
	}
	if err := s.signoffs.Update(ctx, row.ID, updates); err != nil {
		zap.L().Error("failed to reschedule occurrence", zap.String("signoff_id", row.ID), zap.Error(err))
		return nil, errutil.Internal("failed to reschedule occurrence", err)
	}

	return s.Get(ctx, row.ID)
}

// Delete soft-deletes a pending occurrence and deactivates its task so no
// follow-up occurrence is ever scheduled. Completed occurrences cannot be
// deleted. Deleting an occurrence twice is a no-op.
func (s *Service) Delete(ctx context.Context, userID, siteID, signOffID string) error {
	if err := s.requireEdit(ctx, userID, siteID); err != nil {
		return err
	}

	row, err := s.Get(ctx, signOffID)
	if err != nil {
		return err
	}
	if row.State == StateDeleted {
		return nil
	}
	if row.State == StateCompleted || row.CompletionDate != nil {
		return errutil.ValidationFailed("cannot delete a completed occurrence", nil)
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.signoffs.WithTrx(tx).Update(ctx, row.ID, map[string]any{"status": StateDeleted}); err != nil {
			return fmt.Errorf("failed to mark occurrence deleted: %w", err)
		}
		if err := s.tasks.WithTrx(tx).Update(ctx, row.TaskID, map[string]any{"active": false}); err != nil {
			return fmt.Errorf("failed to deactivate task: %w", err)
		}
		return nil
	}); err != nil {
		zap.L().Error("failed to delete occurrence", zap.String("signoff_id", row.ID), zap.Error(err))
		return errutil.Internal("failed to delete occurrence", err)
	}
	return nil
}

type ConsumableInput struct {
	Name  string   `json:"name"`
	Used  bool     `json:"used"`
	Brand string   `json:"brand"`
	Cost  *float64 `json:"cost"`
}

type AttachmentInput struct {
	FileName    string    `json:"-"`
	ContentType string    `json:"-"`
	Size        int64     `json:"-"`
	Body        io.Reader `json:"-"`
}

type SignOffRequest struct {
	UserID string `json:"-"`
	SiteID string `json:"-"`
	TaskID string `json:"-"`

	CompletionDate time.Time         `json:"completion_date"`
	TechnicianID   string            `json:"technician_id"`
	TotalExpense   *float64          `json:"total_expense"`
	Consumables    []ConsumableInput `json:"consumables"`
	Attachment     *AttachmentInput  `json:"-"`
}

// SignOff completes the pending occurrence of a task: the completion record
// and its consumable usage commit atomically, then the follow-up occurrence
// is scheduled from the completion date. Attachment upload and follow-up
// scheduling are best effort and never fail the completion itself.
func (s *Service) SignOff(ctx context.Context, req SignOffRequest) (*SignOff, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	if strings.TrimSpace(req.TechnicianID) == "" {
		return nil, errutil.ValidationFailed("technician_id is required", nil)
	}
	if req.CompletionDate.IsZero() {
		return nil, errutil.ValidationFailed("completion_date is required", nil)
	}
	if err := s.requireEdit(ctx, req.UserID, req.SiteID); err != nil {
		return nil, err
	}

	row, err := s.signoffs.FindOne(ctx, &SignOff{TaskID: req.TaskID, State: StatePending},
		option.ApplyOperator(option.Condition{Field: "completion_date", Operator: option.IsNull}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load occurrence", err)
	}
	if row == nil {
		return nil, errutil.NotFound("no pending occurrence for task", nil)
	}

	task, err := s.taskOf(ctx, row.TaskID)
	if err != nil {
		return nil, err
	}

	completedAt := busday.DateOf(req.CompletionDate)
	technician := req.TechnicianID

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"completion_date": completedAt,
			"technician_id":   technician,
			"status":          StateCompleted,
		}
		if req.TotalExpense != nil {
			updates["total_expense"] = *req.TotalExpense
		}
		if err := s.signoffs.WithTrx(tx).Update(ctx, row.ID, updates); err != nil {
			return fmt.Errorf("failed to complete occurrence: %w", err)
		}

		rows := make([]*ConsumableUsage, 0, len(req.Consumables))
		for _, c := range req.Consumables {
			rows = append(rows, &ConsumableUsage{
				ID:        s.node.Generate().String(),
				SignOffID: row.ID,
				Name:      c.Name,
				Used:      c.Used,
				Brand:     c.Brand,
				Cost:      c.Cost,
			})
		}
		if err := s.consumables.WithTrx(tx).BatchCreate(ctx, rows); err != nil {
			return fmt.Errorf("failed to record consumable usage: %w", err)
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to complete occurrence", zap.String("signoff_id", row.ID), zap.Error(err))
		return nil, errutil.Internal("failed to sign off task", err)
	}

	if req.Attachment != nil {
		s.storeAttachment(ctx, row.ID, req.Attachment)
	}

	if _, err := s.scheduleNext(ctx, task, completedAt); err != nil {
		zapLog.Error("failed to schedule follow-up occurrence",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}

	return s.Get(ctx, row.ID)
}

// storeAttachment uploads the file and records the reference. Failures are
// logged; the completed occurrence stands either way.
func (s *Service) storeAttachment(ctx context.Context, signOffID string, in *AttachmentInput) {
	if s.files == nil {
		zap.L().Warn("no object store configured, dropping attachment",
			zap.String("signoff_id", signOffID),
			zap.String("file_name", in.FileName),
		)
		return
	}

	objectKey := fmt.Sprintf("signoffs/%s/%s", signOffID, in.FileName)
	if err := s.files.Put(ctx, objectKey, in.ContentType, in.Body, in.Size); err != nil {
		zap.L().Error("failed to upload attachment",
			zap.String("signoff_id", signOffID),
			zap.String("object_key", objectKey),
			zap.Error(err),
		)
		return
	}

	record := &Attachment{
		ID:          s.node.Generate().String(),
		SignOffID:   signOffID,
		FileName:    in.FileName,
		ObjectKey:   objectKey,
		ContentType: in.ContentType,
	}
	if err := s.attachments.Create(ctx, record); err != nil {
		zap.L().Error("failed to record attachment",
			zap.String("signoff_id", signOffID),
			zap.String("object_key", objectKey),
			zap.Error(err),
		)
	}
}

// AttachmentLink pairs an attachment with a short-lived download URL.
type AttachmentLink struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Attachments lists the files stored for an occurrence with presigned
// download links. An attachment whose link cannot be signed is listed
// without one.
func (s *Service) Attachments(ctx context.Context, signOffID string) ([]AttachmentLink, error) {
	if _, err := s.Get(ctx, signOffID); err != nil {
		return nil, err
	}

	rows, err := s.attachments.Find(ctx, &Attachment{SignOffID: signOffID})
	if err != nil {
		return nil, errutil.Internal("failed to load attachments", err)
	}

	links := make([]AttachmentLink, 0, len(rows))
	for _, row := range rows {
		link := AttachmentLink{FileName: row.FileName, ContentType: row.ContentType}
		if s.files != nil {
			url, err := s.files.PresignedGet(ctx, row.ObjectKey, 15*time.Minute)
			if err != nil {
				zap.L().Error("failed to presign attachment",
					zap.String("object_key", row.ObjectKey),
					zap.Error(err),
				)
			} else {
				link.URL = url
			}
		}
		links = append(links, link)
	}
	return links, nil
}

// CopyPreviousConsumables returns the consumable usage recorded on the most
// recently completed occurrence of a task. The bool reports whether a
// completed occurrence existed at all.
func (s *Service) CopyPreviousConsumables(ctx context.Context, taskID string) ([]*ConsumableUsage, bool, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, false, errutil.ValidationFailed("task_id is required", nil)
	}

	rows, err := s.signoffs.Find(ctx, &SignOff{TaskID: taskID, State: StateCompleted},
		option.ApplyOperator(option.Condition{Field: "completion_date", Operator: option.NotNull}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "completion_date",
			OrderBy: "desc",
			Allow:   map[string]bool{"completion_date": true},
		}),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, false, errutil.Internal("failed to load previous occurrence", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	usages, err := s.consumables.Find(ctx, &ConsumableUsage{SignOffID: rows[0].ID})
	if err != nil {
		return nil, false, errutil.Internal("failed to load consumable usage", err)
	}
	return usages, true, nil
}

// Occurrence is the list-view projection: the occurrence row joined with its
// task and plan, plus the status derived at read time.
type Occurrence struct {
	SignOff
	TaskName  string `gorm:"column:task_name"`
	PlanID    string `gorm:"column:plan_id"`
	AssetName string `gorm:"column:asset_name"`
	Status    Status `gorm:"-"`
}

// List returns the non-deleted occurrences for a site, due date ascending.
func (s *Service) List(ctx context.Context, siteID string, page pagination.Pagination) ([]*Occurrence, error) {
	if strings.TrimSpace(siteID) == "" {
		return nil, errutil.ValidationFailed("site_id is required", nil)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []*Occurrence
	err := s.db.WithContext(ctx).
		Table("sign_offs").
		Select("sign_offs.*, tasks.name AS task_name, tasks.plan_id AS plan_id, plans.asset_name AS asset_name").
		Joins("JOIN tasks ON tasks.id = sign_offs.task_id").
		Joins("JOIN plans ON plans.id = tasks.plan_id").
		Where("plans.site_id = ?", siteID).
		Where("sign_offs.status <> ?", StateDeleted).
		Order("sign_offs.due_date ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to list occurrences", err)
	}

	now := s.now()
	for _, row := range rows {
		row.Status = Classify(row.DueDate, row.CompletionDate, now)
	}
	return rows, nil
}

// SeedPlan creates the first occurrence of every task in a freshly created
// plan. Tasks whose interval does not resolve to a positive month count are
// skipped rather than scheduled on a guess.
func (s *Service) SeedPlan(ctx context.Context, p *plan.Plan, tasks []*plan.Task) error {
	start := busday.DateOf(p.StartDate)
	if p.StartDate.IsZero() {
		start = busday.DateOf(s.now())
	}

	rows := make([]*SignOff, 0, len(tasks))
	for _, task := range tasks {
		months := interval.ParseMonths(task.MaintenanceInterval)
		if months <= 0 {
			zap.L().Warn("task interval did not resolve, skipping initial occurrence",
				zap.String("task_id", task.ID),
				zap.String("interval", task.MaintenanceInterval),
			)
			continue
		}
		due := busday.PrevBusinessDay(busday.AddMonths(start, months))
		rows = append(rows, &SignOff{
			ID:            s.node.Generate().String(),
			TaskID:        task.ID,
			DueDate:       due,
			ScheduledDate: due,
			State:         StatePending,
			CreatedBy:     p.CreatedBy,
		})
	}

	if err := s.signoffs.BatchCreate(ctx, rows); err != nil {
		return errutil.Internal("failed to seed plan occurrences", err)
	}
	return nil
}

// RetirePlan soft-deletes every pending occurrence under a plan. Used when a
// plan is replaced so stale work does not linger on the schedule.
func (s *Service) RetirePlan(ctx context.Context, planID string) error {
	if strings.TrimSpace(planID) == "" {
		return errutil.ValidationFailed("plan_id is required", nil)
	}

	err := s.db.WithContext(ctx).
		Model(&SignOff{}).
		Where("status = ? AND completion_date IS NULL", StatePending).
		Where("task_id IN (?)", s.db.Model(&plan.Task{}).Select("id").Where("plan_id = ?", planID)).
		Update("status", StateDeleted).Error
	if err != nil {
		return errutil.Internal("failed to retire plan occurrences", err)
	}
	return nil
}

func (s *Service) requireEdit(ctx context.Context, userID, siteID string) error {
	if strings.TrimSpace(userID) == "" {
		return errutil.Unauthorized("user is required", nil)
	}
	ok, err := s.checker.CanEdit(ctx, userID, siteID)
	if err != nil {
		return errutil.Internal("failed to check permissions", err)
	}
	if !ok {
		return errutil.Forbidden("user cannot edit this site", nil)
	}
	return nil
}

func (s *Service) taskOf(ctx context.Context, taskID string) (*plan.Task, error) {
	task, err := s.tasks.FindOne(ctx, &plan.Task{ID: taskID})
	if err != nil {
		return nil, errutil.Internal("failed to load task", err)
	}
	if task == nil {
		return nil, errutil.NotFound("task not found", nil)
	}
	return task, nil
}

func requirePending(row *SignOff) error {
	if row.State == StateDeleted {
		return errutil.ValidationFailed("occurrence has been deleted", nil)
	}
	if row.State == StateCompleted || row.CompletionDate != nil {
		return errutil.ValidationFailed("occurrence has already been completed", nil)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func mustJSON(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return datatypes.JSON(b)
}

package signoff

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"upkeep/pkg/db/pagination"
	"upkeep/pkg/errutil"
	"upkeep/services/audit"
	"upkeep/services/plan"
	"upkeep/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeChecker struct {
	allow bool
	err   error
}

func (f fakeChecker) CanEdit(ctx context.Context, userID, siteID string) (bool, error) {
	return f.allow, f.err
}

func newTestService(t *testing.T, checker fakeChecker) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&plan.Plan{}, &plan.Task{},
		&SignOff{}, &ConsumableUsage{}, &Attachment{},
		&audit.TaskAudit{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Checker: checker,
		Audit:   audit.NewRecorder(audit.RecorderParams{DB: db, Node: node}),
	})
	svc.now = func() time.Time {
		return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	}
	return svc, db
}

func seedTask(t *testing.T, db *gorm.DB, interval string) *plan.Task {
	t.Helper()
	p := &plan.Plan{
		ID:        "plan-1",
		SiteID:    "site-1",
		AssetName: "Air Handler 3",
		Status:    plan.Current,
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy: "user-1",
	}
	if err := db.Where(&plan.Plan{ID: p.ID}).FirstOrCreate(p).Error; err != nil {
		t.Fatalf("failed to seed plan: %v", err)
	}
	task := &plan.Task{
		ID:                  "task-" + interval,
		PlanID:              p.ID,
		Name:                "Replace Filter",
		EstimatedMinutes:    30,
		MaintenanceInterval: interval,
		Active:              true,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func seedPending(t *testing.T, db *gorm.DB, taskID string, due time.Time) *SignOff {
	t.Helper()
	row := &SignOff{
		ID:            "so-" + taskID,
		TaskID:        taskID,
		DueDate:       due,
		ScheduledDate: due,
		State:         StatePending,
		CreatedBy:     "user-1",
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

func statusOf(err error) errutil.CoreStatus {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Status()
	}
	return errutil.StatusUnknown
}

func TestSignOffCompletesAndSchedulesNext(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Quarterly")
	row := seedPending(t, db, task.ID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	cost := 12.5
	done, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 1, 31, 16, 45, 0, 0, time.UTC),
		TechnicianID:   "tech-9",
		TotalExpense:   &cost,
		Consumables: []ConsumableInput{
			{Name: "Filter 20x20", Used: true, Brand: "Acme", Cost: &cost},
			{Name: "Gasket", Used: false},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, done.State)
	require.NotNil(t, done.CompletionDate)
	require.Equal(t, "2024-01-31", done.CompletionDate.Format("2006-01-02"))
	require.Equal(t, "tech-9", *done.TechnicianID)

	var usages []ConsumableUsage
	require.NoError(t, db.Where("signoff_id = ?", row.ID).Find(&usages).Error)
	require.Len(t, usages, 2)

	var next SignOff
	require.NoError(t, db.Where("task_id = ? AND status = ?", task.ID, StatePending).First(&next).Error)
	require.Equal(t, "2024-04-30", next.DueDate.Format("2006-01-02"))
	require.Equal(t, "2024-04-30", next.ScheduledDate.Format("2006-01-02"))
}

func TestSignOffNextDateShiftsOffWeekend(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	seedPending(t, db, task.ID, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
	})
	require.NoError(t, err)

	var next SignOff
	require.NoError(t, db.Where("task_id = ? AND status = ?", task.ID, StatePending).First(&next).Error)
	require.Equal(t, "2024-03-01", next.DueDate.Format("2006-01-02"))
}

func TestSignOffUnparsableIntervalFallsBackToMonthly(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Every 2 weeks")
	seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
	})
	require.NoError(t, err)

	var next SignOff
	require.NoError(t, db.Where("task_id = ? AND status = ?", task.ID, StatePending).First(&next).Error)
	require.Equal(t, "2024-06-14", next.DueDate.Format("2006-01-02"))
}

func TestSignOffValidation(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	seedPending(t, db, task.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))

	_, err = svc.SignOff(context.Background(), SignOffRequest{
		UserID:       "user-1",
		SiteID:       "site-1",
		TaskID:       task.ID,
		TechnicianID: "tech-1",
	})
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))
}

func TestSignOffNoPendingOccurrence(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")

	_, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
	})
	require.Equal(t, errutil.StatusNotFound, statusOf(err))
}

func TestScheduleNextSkipsWhenPendingExists(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	row, err := svc.scheduleNext(context.Background(), task, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Nil(t, row)

	var count int64
	require.NoError(t, db.Model(&SignOff{}).Where("task_id = ?", task.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEditRecordsAuditAndUpdatesTask(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	name := "Replace HEPA Filter"
	minutes := 45
	updated, err := svc.Edit(context.Background(), EditRequest{
		UserID:           "user-1",
		SiteID:           "site-1",
		SignOffID:        row.ID,
		Name:             &name,
		EstimatedMinutes: &minutes,
	})
	require.NoError(t, err)
	require.Equal(t, row.ID, updated.ID)

	var got plan.Task
	require.NoError(t, db.First(&got, "id = ?", task.ID).Error)
	require.Equal(t, name, got.Name)
	require.Equal(t, minutes, got.EstimatedMinutes)

	var trail []audit.TaskAudit
	require.NoError(t, db.Where("task_id = ?", task.ID).Order("changed_field").Find(&trail).Error)
	require.Len(t, trail, 2)
	require.Equal(t, "Estimated Time", trail[0].ChangedField)
	require.Equal(t, "30", trail[0].PreviousValue)
	require.Equal(t, "45", trail[0].NewValue)
	require.Equal(t, "Task Name", trail[1].ChangedField)
	require.Equal(t, "Replace Filter", trail[1].PreviousValue)
	require.Equal(t, name, trail[1].NewValue)
	require.Equal(t, "user-1", trail[1].UserID)
}

func TestEditUnchangedFieldsProduceNoAudit(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	same := "Replace Filter"
	_, err := svc.Edit(context.Background(), EditRequest{
		UserID:    "user-1",
		SiteID:    "site-1",
		SignOffID: row.ID,
		Name:      &same,
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&audit.TaskAudit{}).Where("task_id = ?", task.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestEditMovesSchedule(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	when := time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC)
	clock := "09:30"
	updated, err := svc.Edit(context.Background(), EditRequest{
		UserID:        "user-1",
		SiteID:        "site-1",
		SignOffID:     row.ID,
		ScheduledDate: &when,
		ScheduledTime: &clock,
	})
	require.NoError(t, err)
	require.Equal(t, "2024-07-08", updated.ScheduledDate.Format("2006-01-02"))
	require.Equal(t, "2024-07-08", updated.DueDate.Format("2006-01-02"))
	require.Equal(t, "09:30", *updated.ScheduledTime)
}

func TestEditCompletedOccurrenceRejected(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	done := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(row).Updates(map[string]any{
		"status":          StateCompleted,
		"completion_date": done,
	}).Error)

	name := "New Name"
	_, err := svc.Edit(context.Background(), EditRequest{
		UserID:    "user-1",
		SiteID:    "site-1",
		SignOffID: row.ID,
		Name:      &name,
	})
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))
}

func TestEditPermissionDenied(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: false})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	name := "New Name"
	_, err := svc.Edit(context.Background(), EditRequest{
		UserID:    "user-2",
		SiteID:    "site-1",
		SignOffID: row.ID,
		Name:      &name,
	})
	require.Equal(t, errutil.StatusForbidden, statusOf(err))

	var count int64
	require.NoError(t, db.Model(&audit.TaskAudit{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRescheduleMovesDueDateAndAudits(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	updated, err := svc.Reschedule(context.Background(), RescheduleRequest{
		UserID:        "user-1",
		SiteID:        "site-1",
		SignOffID:     row.ID,
		ScheduledDate: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "2024-07-15", updated.ScheduledDate.Format("2006-01-02"))
	require.Equal(t, "2024-07-15", updated.DueDate.Format("2006-01-02"))

	var trail []audit.TaskAudit
	require.NoError(t, db.Where("task_id = ?", task.ID).Find(&trail).Error)
	require.Len(t, trail, 1)
	require.Equal(t, "Scheduled Date", trail[0].ChangedField)
	require.Equal(t, "2024-07-01", trail[0].PreviousValue)
	require.Equal(t, "2024-07-15", trail[0].NewValue)
}

func TestRescheduleSameDateIsNoOp(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Reschedule(context.Background(), RescheduleRequest{
		UserID:        "user-1",
		SiteID:        "site-1",
		SignOffID:     row.ID,
		ScheduledDate: time.Date(2024, 7, 1, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&audit.TaskAudit{}).Where("task_id = ?", task.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteSoftDeletesAndDeactivatesTask(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, svc.Delete(context.Background(), "user-1", "site-1", row.ID))

	var got SignOff
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	require.Equal(t, StateDeleted, got.State)

	var gotTask plan.Task
	require.NoError(t, db.First(&gotTask, "id = ?", task.ID).Error)
	require.False(t, gotTask.Active)

	// second delete is a no-op
	require.NoError(t, svc.Delete(context.Background(), "user-1", "site-1", row.ID))
}

func TestDeleteCompletedOccurrenceRejected(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	done := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(row).Updates(map[string]any{
		"status":          StateCompleted,
		"completion_date": done,
	}).Error)

	err := svc.Delete(context.Background(), "user-1", "site-1", row.ID)
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))
}

type fakeStore struct {
	objects map[string][]byte
	signErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(ctx context.Context, objectKey, contentType string, r io.Reader, size int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[objectKey] = b
	return nil
}

func (f *fakeStore) PresignedGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://files.local/" + objectKey, nil
}

func TestSignOffStoresAttachment(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	store := newFakeStore()
	svc.files = store
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
		Attachment: &AttachmentInput{
			FileName:    "report.pdf",
			ContentType: "application/pdf",
			Size:        4,
			Body:        strings.NewReader("data"),
		},
	})
	require.NoError(t, err)
	require.Contains(t, store.objects, "signoffs/"+row.ID+"/report.pdf")

	links, err := svc.Attachments(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "report.pdf", links[0].FileName)
	require.Equal(t, "https://files.local/signoffs/"+row.ID+"/report.pdf", links[0].URL)
}

func TestSignOffAttachmentFailureDoesNotBlockCompletion(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	row := seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	// no object store wired at all
	done, err := svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
		Attachment: &AttachmentInput{
			FileName: "report.pdf",
			Body:     strings.NewReader("data"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, done.State)
	require.Equal(t, row.ID, done.ID)
}

func TestCopyPreviousConsumables(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")

	usages, found, err := svc.CopyPreviousConsumables(context.Background(), task.ID)
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, usages)

	seedPending(t, db, task.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	cost := 8.0
	_, err = svc.SignOff(context.Background(), SignOffRequest{
		UserID:         "user-1",
		SiteID:         "site-1",
		TaskID:         task.ID,
		CompletionDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		TechnicianID:   "tech-1",
		Consumables: []ConsumableInput{
			{Name: "Belt", Used: true, Cost: &cost},
		},
	})
	require.NoError(t, err)

	usages, found, err = svc.CopyPreviousConsumables(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, usages, 1)
	require.Equal(t, "Belt", usages[0].Name)
	require.True(t, usages[0].Used)
}

func TestSeedPlanSkipsUnresolvedIntervals(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	monthly := seedTask(t, db, "Monthly")
	fortnightly := seedTask(t, db, "Every 2 weeks")
	quarterly := seedTask(t, db, "Quarterly")

	p := &plan.Plan{
		ID:        "plan-1",
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy: "user-1",
	}
	err := svc.SeedPlan(context.Background(), p, []*plan.Task{monthly, fortnightly, quarterly})
	require.NoError(t, err)

	var rows []SignOff
	require.NoError(t, db.Order("due_date").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, monthly.ID, rows[0].TaskID)
	require.Equal(t, "2024-07-01", rows[0].DueDate.Format("2006-01-02"))
	require.Equal(t, quarterly.ID, rows[1].TaskID)
	require.Equal(t, "2024-08-30", rows[1].DueDate.Format("2006-01-02"))
}

func TestRetirePlanRemovesPendingOnly(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")
	pending := seedPending(t, db, task.ID, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	done := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	completed := &SignOff{
		ID:             "so-done",
		TaskID:         task.ID,
		DueDate:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ScheduledDate:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		CompletionDate: &done,
		State:          StateCompleted,
	}
	require.NoError(t, db.Create(completed).Error)

	require.NoError(t, svc.RetirePlan(context.Background(), task.PlanID))

	var got SignOff
	require.NoError(t, db.First(&got, "id = ?", pending.ID).Error)
	require.Equal(t, StateDeleted, got.State)

	got = SignOff{}
	require.NoError(t, db.First(&got, "id = ?", completed.ID).Error)
	require.Equal(t, StateCompleted, got.State)
}

func TestListDerivesStatusAndHidesDeleted(t *testing.T) {
	svc, db := newTestService(t, fakeChecker{allow: true})
	task := seedTask(t, db, "Monthly")

	overdue := seedPending(t, db, task.ID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	deleted := &SignOff{
		ID:            "so-gone",
		TaskID:        task.ID,
		DueDate:       time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		ScheduledDate: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		State:         StateDeleted,
	}
	require.NoError(t, db.Create(deleted).Error)

	rows, err := svc.List(context.Background(), "site-1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, overdue.ID, rows[0].ID)
	require.Equal(t, StatusOverdue, rows[0].Status)
	require.Equal(t, "Replace Filter", rows[0].TaskName)
	require.Equal(t, "Air Handler 3", rows[0].AssetName)
}

package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"upkeep/pkg/db/pagination"
	"upkeep/pkg/errutil"
	"upkeep/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeGenerator struct {
	tasks []GeneratedTask
	err   error
}

func (f fakeGenerator) Generate(ctx context.Context, asset AssetInfo) ([]GeneratedTask, error) {
	return f.tasks, f.err
}

func newTestService(t *testing.T, gen Generator) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Plan{}, &Task{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Node: node, Generator: gen})
	svc.now = func() time.Time {
		return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	}
	return svc, db
}

func statusOf(err error) errutil.CoreStatus {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Status()
	}
	return errutil.StatusUnknown
}

func TestCreatePlanPersistsPlanAndTasks(t *testing.T) {
	svc, db := newTestService(t, nil)

	created, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID:    "site-1",
		Asset:     AssetInfo{Name: "Air Handler 3"},
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy: "user-1",
		Tasks: []GeneratedTask{
			{
				Name:                "Replace Filter",
				Instructions:        []string{"isolate power", "swap filter"},
				EstimatedMinutes:    30,
				MaintenanceInterval: "Monthly",
			},
			{
				Name:                "Inspect Belts",
				MaintenanceInterval: "Quarterly",
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, Current, created.Status)
	require.Equal(t, "air-handler-3", created.Slug)
	require.Len(t, created.Tasks, 2)

	var count int64
	require.NoError(t, db.Model(&Task{}).Where("plan_id = ?", created.ID).Count(&count).Error)
	require.EqualValues(t, 2, count)

	got, err := svc.GetPlan(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"isolate power", "swap filter"}, got.Tasks[0].InstructionList())
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID: "site-1",
		Asset:  AssetInfo{Name: "   "},
	})
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))

	_, err = svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID: "site-1",
		Asset:  AssetInfo{Name: "Pump"},
	})
	require.Equal(t, errutil.StatusValidationFailed, statusOf(err))
}

func TestCreatePlanUsesGeneratorWhenNoTasksGiven(t *testing.T) {
	gen := fakeGenerator{tasks: []GeneratedTask{
		{Name: "Grease Bearings", MaintenanceInterval: "Semi-Annually"},
	}}
	svc, _ := newTestService(t, gen)

	created, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID: "site-1",
		Asset:  AssetInfo{Name: "Conveyor"},
	})
	require.NoError(t, err)
	require.Len(t, created.Tasks, 1)
	require.Equal(t, "Grease Bearings", created.Tasks[0].Name)
}

func TestCreatePlanGeneratorFailure(t *testing.T) {
	svc, _ := newTestService(t, fakeGenerator{err: errors.New("model unavailable")})

	_, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID: "site-1",
		Asset:  AssetInfo{Name: "Conveyor"},
	})
	require.Equal(t, errutil.StatusInternal, statusOf(err))
}

func TestGetPlanNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.GetPlan(context.Background(), "missing")
	require.Equal(t, errutil.StatusNotFound, statusOf(err))
}

func TestReplaceMarksPlanReplaced(t *testing.T) {
	svc, db := newTestService(t, nil)

	created, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID:    "site-1",
		Asset:     AssetInfo{Name: "Chiller"},
		CreatedBy: "user-1",
		Tasks:     []GeneratedTask{{Name: "Check Refrigerant", MaintenanceInterval: "Monthly"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Replace(context.Background(), created.ID))

	var got Plan
	require.NoError(t, db.First(&got, "id = ?", created.ID).Error)
	require.Equal(t, Replaced, got.Status)

	plans, err := svc.ListPlans(context.Background(), "site-1", pagination.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, plans)
}

func TestTasksForPlanReturnsActiveOnly(t *testing.T) {
	svc, db := newTestService(t, nil)

	created, err := svc.CreatePlan(context.Background(), CreatePlanRequest{
		SiteID:    "site-1",
		Asset:     AssetInfo{Name: "Boiler"},
		CreatedBy: "user-1",
		Tasks: []GeneratedTask{
			{Name: "Flush", MaintenanceInterval: "Annually"},
			{Name: "Inspect", MaintenanceInterval: "Monthly"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&Task{}).
		Where("plan_id = ? AND name = ?", created.ID, "Flush").
		Update("active", false).Error)

	tasks, err := svc.TasksForPlan(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Inspect", tasks[0].Name)
}

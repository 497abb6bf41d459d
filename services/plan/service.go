package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"upkeep/pkg/db/option"
	"upkeep/pkg/db/pagination"
	"upkeep/pkg/errutil"
	"upkeep/pkg/repository"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	gen   Generator
	plans repository.Repository[Plan]
	tasks repository.Repository[Task]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Generator Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		gen:   p.Generator,
		plans: repository.ProvideStore[Plan](p.DB),
		tasks: repository.ProvideStore[Task](p.DB),
		now:   time.Now,
	}
}

type CreatePlanRequest struct {
	SiteID    string          `json:"site_id"`
	Asset     AssetInfo       `json:"asset"`
	StartDate time.Time       `json:"start_date"`
	CreatedBy string          `json:"-"`
	Tasks     []GeneratedTask `json:"tasks"`
}

// CreatePlan persists a plan and its task definitions. When the request
// carries no tasks and a generator is wired, the generator proposes them.
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	if strings.TrimSpace(req.Asset.Name) == "" {
		return nil, errutil.ValidationFailed("asset name is required", nil)
	}

	tasks := req.Tasks
	if len(tasks) == 0 && s.gen != nil {
		generated, err := s.gen.Generate(ctx, req.Asset)
		if err != nil {
			zapLog.Error("plan generation failed", zap.String("asset", req.Asset.Name), zap.Error(err))
			return nil, errutil.Internal("failed to generate maintenance plan", err)
		}
		tasks = generated
	}
	if len(tasks) == 0 {
		return nil, errutil.ValidationFailed("plan requires at least one task", nil)
	}

	start := req.StartDate
	if start.IsZero() {
		start = s.now()
		zapLog.Warn("no plan start date provided, using today", zap.String("asset", req.Asset.Name))
	}

	planID := s.node.Generate().String()
	record := &Plan{
		ID:        planID,
		SiteID:    req.SiteID,
		AssetName: req.Asset.Name,
		Slug:      slug.Make(req.Asset.Name),
		Status:    Current,
		StartDate: start,
		CreatedBy: req.CreatedBy,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}

		for _, t := range tasks {
			task := &Task{
				ID:                  s.node.Generate().String(),
				PlanID:              planID,
				Name:                t.Name,
				Instructions:        encodeStrings(t.Instructions),
				EstimatedMinutes:    t.EstimatedMinutes,
				ToolsNeeded:         t.ToolsNeeded,
				TechniciansNeeded:   t.TechniciansNeeded,
				Consumables:         encodeStrings(t.Consumables),
				Criticality:         t.Criticality,
				Reason:              t.Reason,
				SafetyPrecautions:   t.SafetyPrecautions,
				MaintenanceInterval: t.MaintenanceInterval,
				Active:              true,
			}
			if err := tx.Create(task).Error; err != nil {
				return fmt.Errorf("failed to create task %q: %w", t.Name, err)
			}
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to create plan transaction", zap.Error(err))
		return nil, errutil.Internal("failed to create plan", err)
	}

	return s.GetPlan(ctx, planID)
}

func (s *Service) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required", nil)
	}

	record, err := s.plans.FindOne(ctx, &Plan{ID: planID})
	if err != nil {
		zap.L().Error("failed to get plan", zap.String("plan_id", planID), zap.Error(err))
		return nil, errutil.Internal("failed to get plan", err)
	}
	if record == nil {
		return nil, errutil.NotFound("plan not found", nil)
	}

	tasks, err := s.tasks.Find(ctx, &Task{PlanID: planID})
	if err != nil {
		return nil, errutil.Internal("failed to load plan tasks", err)
	}
	for _, t := range tasks {
		record.Tasks = append(record.Tasks, *t)
	}

	return record, nil
}

func (s *Service) ListPlans(ctx context.Context, siteID string, page pagination.Pagination) ([]*Plan, error) {
	plans, err := s.plans.Find(ctx, &Plan{SiteID: siteID, Status: Current},
		option.ApplyPagination(page),
	)
	if err != nil {
		zap.L().Error("failed to list plans", zap.String("site_id", siteID), zap.Error(err))
		return nil, errutil.Internal("failed to list plans", err)
	}
	return plans, nil
}

// Replace marks an existing plan as superseded. Pending occurrences for its
// tasks are retired separately by the sign-off service, which owns them.
func (s *Service) Replace(ctx context.Context, planID string) error {
	record, err := s.plans.FindOne(ctx, &Plan{ID: planID})
	if err != nil {
		return errutil.Internal("failed to get plan", err)
	}
	if record == nil {
		return errutil.NotFound("plan not found", nil)
	}

	if err := s.plans.Update(ctx, planID, map[string]any{
		"status":     Replaced,
		"updated_at": s.now(),
	}); err != nil {
		zap.L().Error("failed to mark plan replaced", zap.String("plan_id", planID), zap.Error(err))
		return errutil.Internal("failed to replace plan", err)
	}

	return nil
}

// TasksForPlan returns the active task definitions of a plan.
func (s *Service) TasksForPlan(ctx context.Context, planID string) ([]*Task, error) {
	tasks, err := s.tasks.Find(ctx, &Task{PlanID: planID, Active: true})
	if err != nil {
		return nil, errutil.Internal("failed to load plan tasks", err)
	}
	return tasks, nil
}

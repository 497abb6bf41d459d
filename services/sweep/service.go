package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"upkeep/pkg/db/option"
	"upkeep/pkg/repository"
	"upkeep/pkg/task"
	"upkeep/services/signoff"
)

const TypeStatusSweep = "signoff:status:sweep"

// Service refreshes the cached status hint of every open occurrence. A hint
// that fails to write is skipped, not retried: the next sweep or a direct
// read covers it.
type Service struct {
	hints    HintStore
	enqueuer task.Enqueuer
	signoffs repository.Repository[signoff.SignOff]

	now func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Hints    HintStore
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		hints:    p.Hints,
		enqueuer: p.Enqueuer,
		signoffs: repository.ProvideStore[signoff.SignOff](p.DB),
		now:      time.Now,
	}
}

// Enqueue submits a sweep run to the worker queue. Without an enqueuer the
// sweep runs inline.
func (s *Service) Enqueue(ctx context.Context) error {
	if s.enqueuer == nil {
		return s.Run(ctx)
	}
	_, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(TypeStatusSweep, nil), asynq.Queue("sweep"))
	return err
}

// HandleStatusSweep is the asynq worker entrypoint.
func (s *Service) HandleStatusSweep(ctx context.Context, t *asynq.Task) error {
	return s.Run(ctx)
}

// Run classifies every pending occurrence and writes its status hint. Write
// failures are counted and logged; only a failed listing aborts the run.
func (s *Service) Run(ctx context.Context) error {
	start := s.now()

	rows, err := s.signoffs.Find(ctx, &signoff.SignOff{State: signoff.StatePending},
		option.ApplyOperator(option.Condition{Field: "completion_date", Operator: option.IsNull}),
	)
	if err != nil {
		zap.L().Error("status sweep failed to list occurrences", zap.Error(err))
		return err
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			status := signoff.Classify(row.DueDate, row.CompletionDate, start)
			if err := s.hints.SetStatus(gctx, row.ID, status); err != nil {
				failed.Add(1)
				zap.L().Warn("failed to write status hint",
					zap.String("signoff_id", row.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("status sweep finished",
		zap.Int("occurrences", len(rows)),
		zap.Int64("failed_hints", failed.Load()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// RegisterHandlers binds the sweep tasks onto the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TypeStatusSweep, svc.HandleStatusSweep)
}

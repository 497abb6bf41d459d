package sweep

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"upkeep/pkg/config"
)

type Scheduler struct {
	service *Service
	hour    int
	minute  int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return &Scheduler{
		service: svc,
		hour:    cfg.Sweep.Hour,
		minute:  cfg.Sweep.Minute,
		done:    make(chan struct{}),
	}
}

// StartScheduler launches the daily sweep loop when the app starts. The loop
// runs on its own context, not the OnStart hook context: fx cancels the hook
// context once startup finishes, and the loop must outlive startup.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	zap.L().Info("[Scheduler] started status sweep scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next sweep scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing daily status sweep")

	if err := s.service.Enqueue(ctx); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue status sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] daily status sweep enqueued",
		zap.Duration("duration", time.Since(start)),
	)
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

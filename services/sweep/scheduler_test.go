package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"upkeep/pkg/config"
	"upkeep/services/signoff"
	"upkeep/services/testutil"
)

type recordingLifecycle struct {
	hooks []fx.Hook
}

func (l *recordingLifecycle) Append(h fx.Hook) {
	l.hooks = append(l.hooks, h)
}

func TestSchedulerOutlivesStartHookContext(t *testing.T) {
	db := testutil.NewTestDB(t, &signoff.SignOff{})
	svc := NewService(Params{DB: db, Hints: newFakeHints()})

	cfg := &config.Config{}
	cfg.Sweep.Hour = 1
	s := NewScheduler(svc, cfg)

	lc := &recordingLifecycle{}
	StartScheduler(lc, s)
	require.Len(t, lc.hooks, 1)

	// fx cancels the OnStart context as soon as startup completes; an
	// already-cancelled context stands in for that here.
	startCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.hooks[0].OnStart(startCtx))

	select {
	case <-s.done:
		t.Fatal("scheduler loop exited with the start hook context")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, lc.hooks[0].OnStop(context.Background()))
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler loop did not stop on shutdown")
	}
}

func TestNextRunTime(t *testing.T) {
	now := time.Date(2024, 6, 12, 0, 30, 0, 0, time.UTC)

	next := nextRunTime(now, 1, 0)
	require.Equal(t, time.Date(2024, 6, 12, 1, 0, 0, 0, time.UTC), next)

	next = nextRunTime(time.Date(2024, 6, 12, 2, 0, 0, 0, time.UTC), 1, 0)
	require.Equal(t, time.Date(2024, 6, 13, 1, 0, 0, 0, time.UTC), next)
}

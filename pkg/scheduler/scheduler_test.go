package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	applogger "Overlord/pkg/logger"

	"github.com/stretchr/testify/require"
)

func TestEveryRunsJob(t *testing.T) {
	s := New(applogger.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) { runs.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestEveryRejectsSubSecondAndDuplicates(t *testing.T) {
	s := New(applogger.NewNop())
	require.Error(t, s.Every("fast", 100*time.Millisecond, func(context.Context) {}))

	require.NoError(t, s.Every("poll", 10*time.Second, func(context.Context) {}))
	require.Error(t, s.Every("poll", 10*time.Second, func(context.Context) {}))

	s.Remove("poll")
	require.NoError(t, s.Every("poll", 10*time.Second, func(context.Context) {}))
}

func TestJobPanicIsRecovered(t *testing.T) {
	s := New(applogger.NewNop())
	var after atomic.Bool
	require.NoError(t, s.Every("boom", time.Second, func(context.Context) { panic("boom") }))
	require.NoError(t, s.Every("ok", time.Second, func(context.Context) { after.Store(true) }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, after.Load, 3*time.Second, 50*time.Millisecond)
}

package polling

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/scheduler"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, call int) (*models.Snapshot, error)
}

func (f *fakeSource) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fetch(ctx, call)
}

func newTestController(src drepo.SnapshotSource) *Controller {
	demo := NewDemoGenerator(rand.New(rand.NewSource(1)), fixedClock)
	return NewController(src, demo, drepo.NopMetrics{}, applogger.NewNop(), WithClock(fixedClock))
}

func TestRefreshFailureFallsBackToDemo(t *testing.T) {
	c := newTestController(&fakeSource{fetch: func(context.Context, int) (*models.Snapshot, error) {
		return nil, models.ErrNetworkUnavailable
	}})

	c.Refresh(context.Background())

	require.Equal(t, models.ConnectionDemo, c.State())
	require.Equal(t, "Demo Mode", c.Document().Text(IDConnectionStatus))
	status, _ := c.Document().Element(IDConnectionStatus)
	require.True(t, status.HasClass("disconnected"))

	v := c.View()
	require.Len(t, v.Chart.Prices, models.ChartWindow)
	for _, l := range v.Chart.Labels {
		require.NotEmpty(t, l)
	}
	require.Equal(t, "$43,750.25", c.Document().Text(IDPrice))
}

func TestRefreshSuccessMarksConnected(t *testing.T) {
	c := newTestController(&fakeSource{fetch: func(context.Context, int) (*models.Snapshot, error) {
		return &models.Snapshot{
			BTCPrice:     50000,
			BTCChange24h: -0.5,
			ChartData: &models.ChartSeries{
				Labels: []string{"a", "b", "c"},
				Prices: []float64{1, 2, 3},
			},
		}, nil
	}})

	c.Refresh(context.Background())

	require.Equal(t, models.ConnectionConnected, c.State())
	require.Equal(t, "Connected", c.Document().Text(IDConnectionStatus))
	require.Equal(t, "$50,000.00", c.Document().Text(IDPrice))
	require.Len(t, c.View().Chart.Prices, models.ChartWindow)
	require.Equal(t, fixedClock(), c.View().Snapshot.FetchedAt)
}

func TestAbsentChartKeepsPreviousSeries(t *testing.T) {
	c := newTestController(&fakeSource{fetch: func(_ context.Context, call int) (*models.Snapshot, error) {
		if call == 1 {
			return &models.Snapshot{ChartData: &models.ChartSeries{Labels: []string{"x", "y"}, Prices: []float64{5, 6}}}, nil
		}
		return &models.Snapshot{BTCPrice: 1}, nil
	}})

	c.Refresh(context.Background())
	first := c.View().Chart
	c.Refresh(context.Background())

	require.Same(t, first, c.View().Chart)
	require.Len(t, c.View().Chart.Prices, models.ChartWindow)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	c := newTestController(&fakeSource{fetch: func(_ context.Context, call int) (*models.Snapshot, error) {
		if call == 1 {
			<-release
			return &models.Snapshot{BTCPrice: 1}, nil
		}
		return &models.Snapshot{BTCPrice: 2}, nil
	}})

	done := make(chan struct{})
	go func() {
		c.Refresh(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return c.issued.Load() == 1 }, time.Second, time.Millisecond)

	c.Refresh(context.Background())
	require.Equal(t, 2.0, c.View().Snapshot.BTCPrice)

	close(release)
	<-done
	require.Equal(t, 2.0, c.View().Snapshot.BTCPrice)
	require.Equal(t, "$2.00", c.Document().Text(IDPrice))
}

func TestSelectRangeOnlyTouchesSelector(t *testing.T) {
	c := newTestController(&fakeSource{fetch: func(context.Context, int) (*models.Snapshot, error) {
		return nil, errors.New("down")
	}})
	c.Refresh(context.Background())
	before := c.Document().Snapshot()

	require.Error(t, c.SelectRange("1Y"))
	require.NoError(t, c.SelectRange("7D"))

	after := c.Document().Snapshot()
	for id, html := range before {
		if id == IDChartRange {
			require.NotEqual(t, html, after[id])
			continue
		}
		require.Equal(t, html, after[id], "element %s changed", id)
	}
	require.Equal(t, "7D", c.View().Range)
}

func TestRefreshReportsRefetches(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, int) (*models.Snapshot, error) {
		return &models.Snapshot{}, nil
	}}
	c := newTestController(src)

	c.RefreshReports(context.Background())
	require.Equal(t, 1, src.calls)
}

func TestStartRefreshesImmediatelyThenOnInterval(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, int) (*models.Snapshot, error) {
		return &models.Snapshot{BTCPrice: 50000}, nil
	}}
	demo := NewDemoGenerator(rand.New(rand.NewSource(1)), fixedClock)
	c := NewController(src, demo, drepo.NopMetrics{}, applogger.NewNop(),
		WithClock(fixedClock), WithUpdateInterval(time.Second))
	calls := func() int {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls
	}

	sched := scheduler.New(applogger.NewNop())
	require.NoError(t, c.Start(context.Background(), sched))

	// first render happens before the scheduler ever ticks
	require.Equal(t, 1, calls())
	require.Equal(t, models.ConnectionConnected, c.State())

	// the refresh job is registered under its well-known name
	require.Error(t, sched.Every(Name+".refresh", time.Second, func(context.Context) {}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return calls() >= 2 }, 3*time.Second, 50*time.Millisecond)
}

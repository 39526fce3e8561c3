// Package polling implements the polling dashboard: a full snapshot fetched
// on a fixed interval, with synthetic demo data whenever the fetch fails.
package polling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/pkg/dom"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/scheduler"
)

const (
	// Name labels this dashboard in logs and metrics.
	Name = "polling"

	DefaultUpdateInterval = 10 * time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithUpdateInterval overrides the refresh interval.
func WithUpdateInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the polling dashboard's document and connection state.
//
// Fetches may overlap. Each takes a sequence number when issued and a result
// is applied only if no later-issued fetch has been applied already, so the
// page always reflects the most recently requested snapshot.
type Controller struct {
	source   drepo.SnapshotSource
	demo     *DemoGenerator
	doc      *dom.Document
	metrics  drepo.Metrics
	log      *applogger.Logger
	interval time.Duration
	now      func() time.Time

	issued atomic.Uint64

	mu      sync.Mutex
	applied uint64
	view    View
}

// NewController builds a controller and renders the initial, empty page.
func NewController(source drepo.SnapshotSource, demo *DemoGenerator, m drepo.Metrics, l *applogger.Logger, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		demo:     demo,
		doc:      dom.NewDocument(),
		metrics:  m,
		log:      l.With(Name),
		interval: DefaultUpdateInterval,
		now:      time.Now,
		view: View{
			Connection: models.ConnectionIdle,
			Range:      DefaultRange,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.doc.Apply(dom.Fragment{RenderLayout()})
	c.doc.Apply(Render(c.view))
	return c
}

// Document exposes the rendered page.
func (c *Controller) Document() *dom.Document {
	return c.doc
}

// View returns a copy of the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// State returns the connection indicator state.
func (c *Controller) State() models.ConnectionState {
	return c.View().Connection
}

// Start performs the first refresh and schedules the rest.
func (c *Controller) Start(ctx context.Context, s *scheduler.Scheduler) error {
	c.Refresh(ctx)
	if err := s.Every(Name+".refresh", c.interval, c.Refresh); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.log.Info("polling dashboard started", applogger.Duration("interval", c.interval))
	return nil
}

// Refresh fetches a snapshot and renders it. On failure it renders demo data
// instead, so the page is never blank and never shows an error state.
func (c *Controller) Refresh(ctx context.Context) {
	seq := c.issued.Add(1)
	start := time.Now()

	snap, err := c.source.FetchSnapshot(ctx)
	state := models.ConnectionConnected
	if err != nil {
		c.log.Warn("snapshot fetch failed, showing demo data", applogger.Error(err))
		c.metrics.RecordFetch(Name, "/api/data", "error")
		snap = c.demo.Snapshot()
		state = models.ConnectionDemo
	} else {
		c.metrics.RecordFetch(Name, "/api/data", "ok")
		c.metrics.RecordLatency(Name+".fetch", time.Since(start).Seconds())
	}
	snap.FetchedAt = c.now()

	if !c.apply(seq, snap, state) {
		c.metrics.RecordFetch(Name, "/api/data", "stale")
		c.log.Debug("discarded stale snapshot", applogger.Uint64("seq", seq))
	}
}

// apply renders snap if seq is newer than the last applied fetch.
func (c *Controller) apply(seq uint64, snap *models.Snapshot, state models.ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		return false
	}
	c.applied = seq

	c.view.Snapshot = *snap
	if chart := snap.ChartData.Normalize(models.ChartWindow); chart != nil {
		c.view.Chart = chart
	}
	if c.view.Connection != state {
		c.log.Info("connection state changed",
			applogger.String("from", string(c.view.Connection)),
			applogger.String("to", string(state)),
		)
	}
	c.view.Connection = state

	c.doc.Apply(Render(c.view))
	c.metrics.SetConnectionState(Name, string(state))
	c.metrics.RecordLastPrice(snap.BTCPrice)
	return true
}

// SelectRange highlights the chosen range button. The series itself is not
// filtered: range selection has no backend counterpart.
func (c *Controller) SelectRange(r string) error {
	valid := false
	for _, name := range Ranges {
		if name == r {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown chart range %q", r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Range = r
	c.doc.Apply(dom.Fragment{RenderRange(r)})
	c.log.Debug("chart range changed", applogger.String("range", r))
	return nil
}

// RefreshReports re-fetches the snapshot, which carries the reports list.
func (c *Controller) RefreshReports(ctx context.Context) {
	c.log.Debug("refreshing reports")
	c.Refresh(ctx)
}

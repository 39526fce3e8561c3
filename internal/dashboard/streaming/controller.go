// Package streaming implements the mission control dashboard: a composite
// initial load, a push channel for incremental patches and a slower backstop
// refresh.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/pkg/dom"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/scheduler"

	"golang.org/x/sync/errgroup"
)

const (
	// Name labels this dashboard in logs and metrics.
	Name = "streaming"

	DefaultBackstopInterval = 30 * time.Second
	DefaultTradesLimit      = 20
	DefaultFeedCapacity     = 50
	DefaultFlashDuration    = time.Second
	DefaultToastDuration    = 5 * time.Second
)

// ErrUnknownCard is returned when toggling a card that does not exist.
var ErrUnknownCard = errors.New("unknown panel card")

// ErrUnknownPosition is returned for actions on an asset that is not held.
var ErrUnknownPosition = errors.New("no open position for asset")

// Stopper is the part of *time.Timer the controller needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. It defaults to time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Confirmer answers a yes/no prompt before a guarded action runs.
type Confirmer func(prompt string) bool

// Options tunes a Controller. Zero values fall back to the defaults.
type Options struct {
	BackstopInterval time.Duration
	TradesLimit      int
	FeedCapacity     int
	FlashDuration    time.Duration
	ToastDuration    time.Duration
	Backoff          BackoffPolicy
	Wait             WaitFunc
	AfterFunc        AfterFunc
	Now              func() time.Time
}

func (o *Options) setDefaults() {
	if o.BackstopInterval <= 0 {
		o.BackstopInterval = DefaultBackstopInterval
	}
	if o.TradesLimit <= 0 {
		o.TradesLimit = DefaultTradesLimit
	}
	if o.FeedCapacity <= 0 {
		o.FeedCapacity = DefaultFeedCapacity
	}
	if o.FlashDuration <= 0 {
		o.FlashDuration = DefaultFlashDuration
	}
	if o.ToastDuration <= 0 {
		o.ToastDuration = DefaultToastDuration
	}
	if o.Backoff == nil {
		o.Backoff = DefaultBackoff
	}
	if o.AfterFunc == nil {
		o.AfterFunc = realAfterFunc
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Controller owns the mission control document. All document mutations
// happen under mu; network I/O never does.
type Controller struct {
	source  drepo.MissionControl
	channel *Channel
	doc     *dom.Document
	metrics drepo.Metrics
	log     *applogger.Logger
	opts    Options

	issued atomic.Uint64
	wg     sync.WaitGroup

	mu            sync.Mutex
	applied       uint64
	state         models.MissionState
	loaded        bool
	connection    models.ConnectionState
	everOpened    bool
	expanded      map[string]bool
	paused        bool
	flashTimer    Stopper
	flashGen      uint64
	notifications []Notification
	notifySeq     uint64
}

// NewController builds a controller with an empty page. dialer may be nil,
// in which case no push channel is opened.
func NewController(source drepo.MissionControl, dialer drepo.PushDialer, m drepo.Metrics, l *applogger.Logger, opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		source:     source,
		doc:        dom.NewDocument(),
		metrics:    m,
		log:        l.With(Name),
		opts:       opts,
		connection: models.ConnectionIdle,
		expanded:   DefaultExpanded(),
	}
	if dialer != nil {
		c.channel = NewChannel(dialer, opts.Backoff, opts.Wait, c.onMessage, c.onChannelState, c.log)
	}

	c.doc.Apply(dom.Fragment{
		RenderLayout(),
		RenderErrorBanner(""),
		RenderNotifications(nil),
		RenderConnectivity(c.connection),
	})
	return c
}

// Document exposes the rendered page.
func (c *Controller) Document() *dom.Document {
	return c.doc
}

// Connection returns the connection indicator state.
func (c *Controller) Connection() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

// MissionState returns a copy of the last applied state.
func (c *Controller) MissionState() (models.MissionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.loaded
}

// AutoRefresh reports whether the backstop refresh is active.
func (c *Controller) AutoRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.paused
}

// Start loads the initial state, opens the push channel and schedules the
// backstop refresh. The channel runs until ctx is done; Wait blocks on it.
func (c *Controller) Start(ctx context.Context, s *scheduler.Scheduler) error {
	if err := c.LoadInitial(ctx); err != nil {
		c.log.Warn("initial load failed", applogger.Error(err))
	}

	if c.channel != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			_ = c.channel.Run(ctx)
		}()
	}

	if err := s.Every(Name+".backstop", c.opts.BackstopInterval, c.backstop); err != nil {
		return fmt.Errorf("schedule backstop: %w", err)
	}
	c.log.Info("streaming dashboard started", applogger.Duration("backstop", c.opts.BackstopInterval))
	return nil
}

// Wait blocks until the push channel goroutine has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) backstop(ctx context.Context) {
	if !c.AutoRefresh() {
		return
	}
	if err := c.LoadInitial(ctx); err != nil {
		c.log.Warn("backstop refresh failed", applogger.Error(err))
	}
}

// LoadInitial issues the four reads concurrently. Only when all succeed is
// anything rendered; otherwise the error banner is shown and the rest of the
// page is left as it was.
func (c *Controller) LoadInitial(ctx context.Context) error {
	seq := c.issued.Add(1)
	start := time.Now()

	var (
		health    *models.Health
		portfolio *models.Portfolio
		regime    *models.Regime
		trades    []models.Trade
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		health, err = c.source.Health(gctx)
		return err
	})
	g.Go(func() (err error) {
		portfolio, err = c.source.Portfolio(gctx)
		return err
	})
	g.Go(func() (err error) {
		regime, err = c.source.Regime(gctx)
		return err
	})
	g.Go(func() (err error) {
		trades, err = c.source.RecentTrades(gctx, c.opts.TradesLimit)
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		c.metrics.RecordFetch(Name, "initial", "stale")
		return nil
	}
	c.applied = seq

	if err != nil {
		c.metrics.RecordFetch(Name, "initial", "error")
		c.doc.Apply(dom.Fragment{RenderErrorBanner(LoadErrorMsg)})
		return fmt.Errorf("load initial state: %w", err)
	}

	c.metrics.RecordFetch(Name, "initial", "ok")
	c.metrics.RecordLatency(Name+".initial", time.Since(start).Seconds())

	c.state = models.MissionState{
		Health:    *health,
		Portfolio: *portfolio,
		Regime:    *regime,
		Trades:    trades,
	}
	c.loaded = true

	now := c.opts.Now()
	frag := dom.Fragment{RenderTopBar(c.state, now)}
	frag = append(frag, RenderLeftPanel(c.state.Regime, c.state.Portfolio, c.expanded, now)...)
	frag = append(frag, RenderMainCanvas(c.state.Portfolio, now))
	frag = append(frag, RenderBottomBar(c.state.Trades)...)
	frag = append(frag, RenderErrorBanner(""))
	c.doc.Apply(frag)
	return nil
}

// HandleMessage parses one push message and applies exactly one patch.
// Unknown or malformed messages are logged and ignored.
func (c *Controller) HandleMessage(raw []byte) error {
	ev, err := models.ParsePushEvent(raw)
	if err != nil {
		c.metrics.RecordError("push_event")
		c.log.Debug("ignoring push message", applogger.Error(err))
		return err
	}
	c.metrics.RecordPushEvent(string(ev.Type))

	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case models.EventInitialState:
		c.applyInitialState(ev.InitialState)
	case models.EventPortfolioUpdate:
		c.applyPortfolioUpdate(ev.PortfolioUpdate)
	case models.EventTradeExecuted:
		c.applyTrade(ev.TradeExecuted)
	case models.EventRegimeChange:
		c.applyRegime(ev.RegimeChange)
	}
	return nil
}

func (c *Controller) onMessage(raw []byte) {
	_ = c.HandleMessage(raw)
}

func (c *Controller) applyInitialState(s *models.InitialState) {
	c.state.Health = s.Health
	c.state.Portfolio = s.Portfolio
	c.state.Regime = s.Regime

	now := c.opts.Now()
	frag := dom.Fragment{RenderTopBar(c.state, now)}
	frag = append(frag, RenderLeftPanel(c.state.Regime, c.state.Portfolio, c.expanded, now)...)
	c.doc.Apply(frag)
}

// applyPortfolioUpdate touches only the total value element: its text and a
// flash class that a timer removes. A newer flash replaces the pending timer.
func (c *Controller) applyPortfolioUpdate(u *models.PortfolioUpdate) {
	c.state.Portfolio.TotalValue = u.TotalValue
	if u.PnLToday != nil {
		c.state.Portfolio.PnLToday = *u.PnLToday
	}

	value := RenderPortfolioValue(u.TotalValue)
	if err := c.doc.SetHTML(IDPortfolioValue, value.HTML); err != nil {
		// not rendered yet: the next full render carries the new value
		return
	}
	_ = c.doc.AddClass(IDPortfolioValue, "flash")

	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.flashGen++
	gen := c.flashGen
	c.flashTimer = c.opts.AfterFunc(c.opts.FlashDuration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen == c.flashGen {
			_ = c.doc.RemoveClass(IDPortfolioValue, "flash")
		}
	})
}

func (c *Controller) applyTrade(t *models.Trade) {
	c.state.Trades = append([]models.Trade{*t}, c.state.Trades...)
	if len(c.state.Trades) > c.opts.FeedCapacity {
		c.state.Trades = c.state.Trades[:c.opts.FeedCapacity]
	}

	if _, ok := c.doc.Element(IDActivityFeed); !ok {
		c.doc.Apply(RenderBottomBar(nil))
	}
	if err := c.doc.PrependChild(IDActivityFeed, RenderFeedItem(*t), c.opts.FeedCapacity); err != nil {
		c.log.Error("prepend trade to feed", applogger.Error(err))
	}
	c.notify("toast", "Trade executed!")
}

func (c *Controller) applyRegime(r *models.Regime) {
	c.state.Regime = *r
	c.doc.Apply(dom.Fragment{RenderRegimeBadge(*r)})
	c.notify("alert", "Regime changed to "+r.Regime)
}

// notify shows a transient notification that expires after ToastDuration.
// Callers hold mu.
func (c *Controller) notify(kind, msg string) {
	c.notifySeq++
	n := Notification{ID: c.notifySeq, Kind: kind, Message: msg}
	c.notifications = append(c.notifications, n)
	c.doc.Apply(dom.Fragment{RenderNotifications(c.notifications)})
	c.log.Info("notification", applogger.String("kind", kind), applogger.String("message", msg))

	c.opts.AfterFunc(c.opts.ToastDuration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		kept := c.notifications[:0]
		for _, existing := range c.notifications {
			if existing.ID != n.ID {
				kept = append(kept, existing)
			}
		}
		c.notifications = kept
		c.doc.Apply(dom.Fragment{RenderNotifications(c.notifications)})
	})
}

func (c *Controller) onChannelState(s ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.connection
	switch s {
	case ChannelOpen:
		c.everOpened = true
		next = models.ConnectionConnected
	case ChannelClosed:
		next = models.ConnectionReconnecting
		c.metrics.RecordReconnect(Name)
	case ChannelConnecting:
		if c.everOpened {
			next = models.ConnectionReconnecting
		}
	}
	if next == c.connection {
		return
	}

	c.log.Info("connection state changed",
		applogger.String("from", string(c.connection)),
		applogger.String("to", string(next)),
		applogger.String("channel", s.String()),
	)
	c.connection = next
	c.doc.Apply(dom.Fragment{RenderConnectivity(next)})
	c.metrics.SetConnectionState(Name, string(next))
}

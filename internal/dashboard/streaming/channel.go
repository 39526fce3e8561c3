package streaming

import (
	"context"
	"math"
	"sync"
	"time"

	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"
)

// ChannelState is the push channel lifecycle:
// idle -> connecting -> open -> closed -> connecting -> ...
type ChannelState int

const (
	ChannelIdle ChannelState = iota
	ChannelConnecting
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return "idle"
	}
}

// BackoffPolicy returns the wait before reconnect attempt n (1-based).
type BackoffPolicy interface {
	Next(attempt int) time.Duration
}

// FlatBackoff waits the same duration before every attempt.
type FlatBackoff time.Duration

func (f FlatBackoff) Next(int) time.Duration { return time.Duration(f) }

// DefaultBackoff is the reconnect delay used unless configured otherwise.
const DefaultBackoff = FlatBackoff(3 * time.Second)

// ExponentialBackoff doubles (by Multiplier) from Initial up to Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (e ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := e.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := time.Duration(float64(e.Initial) * math.Pow(mult, float64(attempt-1)))
	if e.Max > 0 && (d > e.Max || d <= 0) {
		return e.Max
	}
	return d
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Channel keeps one push connection open, reconnecting forever.
type Channel struct {
	dialer    drepo.PushDialer
	backoff   BackoffPolicy
	wait      WaitFunc
	onMessage func([]byte)
	onState   func(ChannelState)
	log       *applogger.Logger

	mu    sync.Mutex
	state ChannelState
}

// NewChannel wires a channel. onMessage is called from the read loop, one
// message at a time, in arrival order. onState sees every transition.
func NewChannel(dialer drepo.PushDialer, backoff BackoffPolicy, wait WaitFunc, onMessage func([]byte), onState func(ChannelState), l *applogger.Logger) *Channel {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	if wait == nil {
		wait = sleepContext
	}
	if onState == nil {
		onState = func(ChannelState) {}
	}
	return &Channel{
		dialer:    dialer,
		backoff:   backoff,
		wait:      wait,
		onMessage: onMessage,
		onState:   onState,
		log:       l,
	}
}

// State returns the current lifecycle state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Run connects, reads until the connection drops, waits the backoff and
// reconnects. There is no retry cap. It returns only when ctx is done.
func (ch *Channel) Run(ctx context.Context) error {
	attempt := 0
	for {
		ch.setState(ChannelConnecting)

		conn, err := ch.dialer.Dial(ctx)
		if err == nil {
			attempt = 0
			ch.setState(ChannelOpen)
			err = ch.read(ctx, conn)
			_ = conn.Close()
		}

		ch.setState(ChannelClosed)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := ch.backoff.Next(attempt)
		ch.log.Warn("push channel closed, reconnecting",
			applogger.Error(err),
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff", delay),
		)
		if werr := ch.wait(ctx, delay); werr != nil {
			return werr
		}
	}
}

func (ch *Channel) read(ctx context.Context, conn drepo.PushConn) error {
	for {
		msg, err := conn.ReadMessage(ctx)
		if err != nil {
			return err
		}
		ch.onMessage(msg)
	}
}

func (ch *Channel) setState(s ChannelState) {
	ch.mu.Lock()
	changed := ch.state != s
	ch.state = s
	ch.mu.Unlock()

	if changed {
		ch.onState(s)
	}
}

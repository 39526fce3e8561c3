package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"

	"github.com/stretchr/testify/require"
)

// scriptedConn replays messages, then fails with err.
type scriptedConn struct {
	msgs [][]byte
	err  error
}

func (c *scriptedConn) ReadMessage(ctx context.Context) ([]byte, error) {
	if len(c.msgs) == 0 {
		return nil, c.err
	}
	m := c.msgs[0]
	c.msgs = c.msgs[1:]
	return m, nil
}

func (c *scriptedConn) Close() error { return nil }

// scriptedDialer hands out conns in order; once exhausted every dial fails.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*scriptedConn
	dials int
}

func (d *scriptedDialer) Dial(ctx context.Context) (drepo.PushConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

// recordingWait records requested delays without sleeping and cancels the
// run after limit waits.
type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (w *recordingWait) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delays = append(w.delays, d)
	if len(w.delays) >= w.limit {
		w.cancel()
		return context.Canceled
	}
	return nil
}

func TestChannelReconnectsWithFlatBackoffForever(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &scriptedDialer{}
	w := &recordingWait{limit: 50, cancel: cancel}
	ch := NewChannel(dialer, nil, w.wait, func([]byte) {}, nil, applogger.NewNop())

	err := ch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, w.delays, 50)
	for _, d := range w.delays {
		require.Equal(t, 3*time.Second, d)
	}
	require.Equal(t, 50, dialer.dials)
}

func TestChannelStateTransitionsAndOrderedDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := &scriptedDialer{conns: []*scriptedConn{
		{msgs: [][]byte{[]byte("1"), []byte("2")}, err: errors.New("eof")},
		{msgs: [][]byte{[]byte("3")}, err: errors.New("eof")},
	}}
	var (
		mu       sync.Mutex
		received []string
		states   []ChannelState
	)
	w := &recordingWait{limit: 3, cancel: cancel}
	ch := NewChannel(dialer, nil, w.wait,
		func(b []byte) {
			mu.Lock()
			received = append(received, string(b))
			mu.Unlock()
		},
		func(s ChannelState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		applogger.NewNop())

	_ = ch.Run(ctx)

	require.Equal(t, []string{"1", "2", "3"}, received)
	require.Equal(t, []ChannelState{
		ChannelConnecting, ChannelOpen, ChannelClosed,
		ChannelConnecting, ChannelOpen, ChannelClosed,
		ChannelConnecting, ChannelClosed,
	}, states)
	require.Equal(t, ChannelClosed, ch.State())
}

func TestChannelStopsOnCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := NewChannel(&scriptedDialer{}, FlatBackoff(time.Hour), nil, func([]byte) {}, nil, applogger.NewNop())

	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.State() == ChannelClosed }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("channel did not stop")
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	require.Equal(t, time.Second, b.Next(1))
	require.Equal(t, 2*time.Second, b.Next(2))
	require.Equal(t, 8*time.Second, b.Next(4))
	require.Equal(t, 10*time.Second, b.Next(5))
	require.Equal(t, 10*time.Second, b.Next(500))
}

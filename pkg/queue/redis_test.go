package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"Overlord/pkg/logger"

	"github.com/stretchr/testify/require"
)

// memBackend is an in-process Backend with the same ordering as Redis lists.
type memBackend struct {
	mu        sync.Mutex
	lists     map[string][][]byte
	scheduled map[string]map[string]time.Time
	notify    chan struct{}
}

func newMemBackend() *memBackend {
	return &memBackend{
		lists:     make(map[string][][]byte),
		scheduled: make(map[string]map[string]time.Time),
		notify:    make(chan struct{}, 64),
	}
}

func (b *memBackend) Ping(context.Context) error { return nil }

func (b *memBackend) Push(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	b.lists[key] = append([][]byte{data}, b.lists[key]...)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *memBackend) Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		b.mu.Lock()
		if l := b.lists[key]; len(l) > 0 {
			last := l[len(l)-1]
			b.lists[key] = l[:len(l)-1]
			b.mu.Unlock()
			return last, nil
		}
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrEmpty
		case <-b.notify:
		}
	}
}

func (b *memBackend) Schedule(_ context.Context, key string, data []byte, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scheduled[key] == nil {
		b.scheduled[key] = make(map[string]time.Time)
	}
	b.scheduled[key][string(data)] = at
	return nil
}

func (b *memBackend) Due(_ context.Context, key string, now time.Time) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for data, at := range b.scheduled[key] {
		if !at.After(now) {
			out = append(out, []byte(data))
		}
	}
	return out, nil
}

func (b *memBackend) Requeue(ctx context.Context, retryKey, queueKey string, data []byte) error {
	b.mu.Lock()
	delete(b.scheduled[retryKey], string(data))
	b.mu.Unlock()
	return b.Push(ctx, queueKey, data)
}

func (b *memBackend) len(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lists[key])
}

func (b *memBackend) scheduledLen(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scheduled[key])
}

type recordingJob struct {
	mu       sync.Mutex
	payloads []json.RawMessage
	fail     error
	done     chan struct{}
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "feed.update" }

func (j *recordingJob) Handle(_ context.Context, payload json.RawMessage) error {
	j.mu.Lock()
	j.payloads = append(j.payloads, payload)
	j.mu.Unlock()
	if j.done != nil {
		j.done <- struct{}{}
	}
	return j.fail
}

func TestEnqueueIsHandledByWorker(t *testing.T) {
	b := newMemBackend()
	q := NewRedisQueue(logger.NewNop(), &QueueConfig{PollTimeout: 50 * time.Millisecond}, b, ModeProducerConsumer)
	job := &recordingJob{done: make(chan struct{}, 1)}
	q.RegisterJob(job)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))

	require.NoError(t, q.Enqueue(ctx, "feed.update", map[string]float64{"btc_price": 43000}))
	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not handled")
	}
	require.NoError(t, q.Stop(context.Background()))

	job.mu.Lock()
	defer job.mu.Unlock()
	require.JSONEq(t, `{"btc_price": 43000}`, string(job.payloads[0]))
}

func TestEnqueueRequiresRunningQueueAndKnownType(t *testing.T) {
	q := NewRedisQueue(logger.NewNop(), nil, newMemBackend(), ModeProducerConsumer)
	require.Error(t, q.Enqueue(context.Background(), "feed.update", 1))

	require.NoError(t, q.Start(context.Background()))
	defer func() { _ = q.Stop(context.Background()) }()
	require.Error(t, q.Enqueue(context.Background(), "unknown", 1))
}

func TestProducerOnlyAcceptsAnyType(t *testing.T) {
	b := newMemBackend()
	q := NewRedisQueue(logger.NewNop(), nil, b, ModeProducerOnly, WithKeyPrefix("test"))
	q.RegisterJob(&recordingJob{})
	require.NoError(t, q.Start(context.Background()))
	defer func() { _ = q.Stop(context.Background()) }()

	require.NoError(t, q.Enqueue(context.Background(), "anything", "x"))
	require.Equal(t, 1, b.len("test:messages"))
}

func TestFailedMessageIsRetriedThenDeadLettered(t *testing.T) {
	b := newMemBackend()
	now := time.Date(2025, 11, 13, 14, 0, 0, 0, time.UTC)
	q := NewRedisQueue(logger.NewNop(), &QueueConfig{RetryLimit: 1, RetryDelay: 10 * time.Second}, b, ModeConsumerOnly,
		WithClock(func() time.Time { return now }))
	job := &recordingJob{fail: errors.New("store down")}
	q.RegisterJob(job)

	ctx := context.Background()
	q.processMessage(ctx, Message{ID: "m1", Type: "feed.update", Payload: json.RawMessage(`{}`)})
	require.Equal(t, 1, b.scheduledLen(q.getRetryKey()))

	q.processRetryMessages(ctx)
	require.Zero(t, b.len(q.getQueueKey()), "retry is not due yet")

	now = now.Add(10 * time.Second)
	q.processRetryMessages(ctx)
	require.Equal(t, 1, b.len(q.getQueueKey()))
	require.Zero(t, b.scheduledLen(q.getRetryKey()))

	data, err := b.Pop(ctx, q.getQueueKey(), time.Millisecond)
	require.NoError(t, err)
	var retried Message
	require.NoError(t, json.Unmarshal(data, &retried))
	require.Equal(t, 1, retried.Attempts)

	q.processMessage(ctx, retried)
	require.Equal(t, 1, b.len(q.getDeadLetterKey()))
	require.Len(t, job.payloads, 2)
}

func TestUnknownTypeGoesToDeadLetter(t *testing.T) {
	b := newMemBackend()
	q := NewRedisQueue(logger.NewNop(), nil, b, ModeConsumerOnly)
	q.processMessage(context.Background(), Message{ID: "m1", Type: "nope"})
	require.Equal(t, 1, b.len(q.getDeadLetterKey()))
}

func TestParsePayload(t *testing.T) {
	type price struct {
		BTCPrice float64 `json:"btc_price"`
	}
	p, err := ParsePayload[price](json.RawMessage(`{"btc_price": 1.5}`))
	require.NoError(t, err)
	require.Equal(t, 1.5, p.BTCPrice)

	_, err = ParsePayload[price](json.RawMessage(`[`))
	require.Error(t, err)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"Overlord/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// RedisBackend keeps the queue in Redis: LPUSH/BRPOP for pending messages and
// a sorted set scored by due time for retries.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Push(ctx context.Context, key string, data []byte) error {
	if err := b.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (b *RedisBackend) Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	result, err := b.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}
	if len(result) < 2 {
		return nil, ErrEmpty
	}
	return []byte(result[1]), nil
}

func (b *RedisBackend) Schedule(ctx context.Context, key string, data []byte, at time.Time) error {
	return b.client.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: data}).Err()
}

func (b *RedisBackend) Due(ctx context.Context, key string, now time.Time) ([][]byte, error) {
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out, nil
}

func (b *RedisBackend) Requeue(ctx context.Context, retryKey, queueKey string, data []byte) error {
	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, retryKey, data)
	pipe.LPush(ctx, queueKey, data)
	_, err := pipe.Exec(ctx)
	return err
}

// RedisQueue is a job queue with retries and a dead letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	backend   Backend
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithClock overrides the clock used to schedule retries.
func WithClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) {
		r.now = now
	}
}

// NewRedisQueue creates a new queue over backend.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, backend Backend, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	if config.RetryScan <= 0 {
		config.RetryScan = 5 * time.Second
	}

	rq := &RedisQueue{
		logger:    lgr.With("queue"),
		config:    config,
		backend:   backend,
		jobs:      make(map[string]Job),
		mode:      mode,
		keyPrefix: "overlord:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJob registers a single job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start checks the backend and, in consumer modes, starts the workers and
// the retry processor. They run until Stop or until ctx is done.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.backend.Ping(pingCtx); err != nil {
		return fmt.Errorf("queue ping: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	r.cancel = stop
	r.isRunning = true

	if r.mode == ModeProducerOnly {
		r.logger.Info("queue publisher started")
		return nil
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryProcessor(runCtx)

	r.logger.Info("queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("mode", r.getModeString()))
	return nil
}

// Stop gracefully stops the queue.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping queue...")
	r.cancel()
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msgData, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return r.backend.Push(ctx, r.getQueueKey(), msgData)
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for ctx.Err() == nil {
		r.processNext(ctx)
	}
	r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
}

func (r *RedisQueue) processNext(ctx context.Context) {
	data, err := r.backend.Pop(ctx, r.getQueueKey(), r.config.PollTimeout)
	if err != nil {
		if errors.Is(err, ErrEmpty) || ctx.Err() != nil {
			return
		}
		r.logger.Error("pop error", logger.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.processMessage(ctx, msg)
}

func (r *RedisQueue) processMessage(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		r.moveToDeadLetterQueue(msg)
		return
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.logger.Warn("message cancelled",
				logger.String("id", msg.ID),
				logger.String("job", job.Name()),
				logger.Int64("elapsed_ms", elapsed.Milliseconds()))
			return
		}
		r.handleProcessingError(msg, job, err)
	}
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts < r.config.RetryLimit {
		msg.Attempts++
		retryTime := r.now().Add(r.config.RetryDelay)
		r.scheduleRetry(msg, retryTime)
		r.logger.Info("scheduled retry",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.String("retry_at", retryTime.Format(time.RFC3339)))
	} else {
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.moveToDeadLetterQueue(msg)
	}
}

func (r *RedisQueue) scheduleRetry(msg Message, retryTime time.Time) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	if err := r.backend.Schedule(context.Background(), r.getRetryKey(), msgData, retryTime); err != nil {
		r.logger.Error("schedule retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.backend.Push(context.Background(), r.getDeadLetterKey(), msgData); err != nil {
		r.logger.Error("push dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.RetryScan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.processRetryMessages(ctx)
		}
	}
}

func (r *RedisQueue) processRetryMessages(ctx context.Context) {
	due, err := r.backend.Due(ctx, r.getRetryKey(), r.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		if ctx.Err() != nil {
			return
		}
		if err := r.backend.Requeue(ctx, r.getRetryKey(), r.getQueueKey(), data); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) getModeString() string {
	switch r.mode {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (r *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) getRetryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) getDeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}

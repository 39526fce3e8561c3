package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "Overlord/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Registerer  prometheus.Registerer
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerBufferSize sets the internal channel buffer size.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRegisterer registers consumer metrics with reg.
func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Registerer = reg
	}
}

// Consumer wraps Kafka readers with a worker pool. Messages of one
// partition are handled one at a time, in order.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgChan  chan *message
	dlq      *kafka.Writer
	hook     ConsumerHook
	metrics  *consumerMetrics

	partMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		Registerer:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		log:       l.With("kafka_consumer"),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
		metrics:   newConsumerMetrics(cfg.Registerer),
	}

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	return c, nil
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start starts readers and workers. They run until Stop is called or ctx
// is done.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.log.Info("registered topic", applogger.String("topic", topic))
	}

	var workers sync.WaitGroup
	for i := 0; i < c.cfg.WorkerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.messageWorker(runCtx)
		}()
	}

	var readers sync.WaitGroup
	for topic, reader := range c.readers {
		readers.Add(1)
		go func(topic string, reader *kafka.Reader) {
			defer readers.Done()
			c.consumeMessages(runCtx, topic, reader)
		}(topic, reader)
	}

	// workers drain msgChan once every reader has stopped
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		readers.Wait()
		close(c.msgChan)
		workers.Wait()
	}()

	c.log.Info("started", applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop stops the consumer and waits for in-flight messages.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", applogger.Error(err))
			}
		}
		c.log.Info("stopped")
	})

	return stopErr
}

func (c *Consumer) consumeMessages(ctx context.Context, topic string, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}

		select {
		case c.msgChan <- &message{topic: topic, km: msg}:
			c.metrics.queueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) messageWorker(ctx context.Context) {
	for msg := range c.msgChan {
		start := time.Now()
		if err := c.process(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("message dropped", applogger.String("topic", msg.topic), applogger.Error(err))
		}
		c.metrics.handleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}
}

// process runs the handler with hooks and retries, dead-letters a message
// that keeps failing and commits its offset.
func (c *Consumer) process(ctx context.Context, msg *message) (err error) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return fmt.Errorf("no handler for topic %s", msg.topic)
	}

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for topic %s: %v", msg.topic, r)
		}
	}()

	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			err = berr
			break
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax {
			break
		}
		c.hook.OnError(hctx, msg.topic, hmsg, hdata, err)

		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err != nil {
		c.log.Error("handler failed",
			applogger.String("topic", msg.topic),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq != nil {
			if dlqErr := c.dlq.WriteMessages(ctx, kafka.Message{
				Topic:   c.cfg.DLQTopic,
				Key:     msg.km.Key,
				Value:   msg.km.Value,
				Time:    time.Now(),
				Headers: append(msg.km.Headers, kafka.Header{Key: "source_topic", Value: []byte(msg.topic)}),
			}); dlqErr != nil {
				c.log.Error("write to dlq", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(dlqErr))
			}
		}
	}

	// Commit on success or after DLQ to avoid poison loops
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			if cerr := reader.CommitMessages(ctx, msg.km); cerr != nil {
				c.log.Error("commit offset", applogger.String("topic", msg.topic), applogger.Error(cerr))
			}
		}
	}
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.partMu.Lock()
	defer c.partMu.Unlock()

	byPart, ok := c.partLocks[topic]
	if !ok {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	l, ok := byPart[partition]
	if !ok {
		l = &sync.Mutex{}
		byPart[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min * time.Duration(1<<uint(attempt-1)); d > 0 && d < max {
			exp = d
		}
	}
	// jitter up to 50%
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

type consumerMetrics struct {
	queueDepth    *prometheus.GaugeVec
	handleLatency *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	factory := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{Name: "overlord_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		),
		handleLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "overlord_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		),
	}
}

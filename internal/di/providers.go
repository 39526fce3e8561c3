package di

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"Overlord/internal/dashboard/polling"
	"Overlord/internal/dashboard/streaming"
	"Overlord/internal/domain/repository"
	"Overlord/internal/handler/api"
	internalrepo "Overlord/internal/repository"
	"Overlord/internal/service/backend"
	"Overlord/internal/service/feedstore"
	"Overlord/internal/service/pushchannel"
	"Overlord/internal/service/ratelimit"
	"Overlord/internal/usecase"
	"Overlord/pkg/cache"
	"Overlord/pkg/config"
	xhttp "Overlord/pkg/http"
	pkgkafka "Overlord/pkg/kafka"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/metrics"
	"Overlord/pkg/queue"
	"Overlord/pkg/scheduler"
	"Overlord/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// ProvideRegistry creates the registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewWithRegisterer(reg)
}

// ProvideScheduler creates the shared periodic job runner.
func ProvideScheduler(l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(l.With("scheduler"))
}

// ProvideHTTPServer creates the Echo server with every handler registered.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry, handlers []xhttp.Handler) *xhttp.Server {
	return xhttp.NewServer(l.With("http"), handlers,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequestThreshold(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithRegistry(reg),
	)
}

// ---- dashboards ----

// ProvideBackendClient creates the trading backend client.
func ProvideBackendClient(cfg *config.Config, m repository.Metrics) *backend.Client {
	return backend.New(cfg.Dashboard.BackendURL, cfg.Dashboard.RequestTimeout, m)
}

// ProvidePollingController creates the polling dashboard, or nil when the
// configured mode excludes it.
func ProvidePollingController(cfg *config.Config, client *backend.Client, m repository.Metrics, l *applogger.Logger) *polling.Controller {
	if !cfg.PollingEnabled() {
		return nil
	}
	demo := polling.NewDemoGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
	return polling.NewController(client, demo, m, l, polling.WithUpdateInterval(cfg.Dashboard.Polling.Interval))
}

// ProvidePushDialer creates the websocket dialer for the streaming dashboard.
func ProvidePushDialer(cfg *config.Config, l *applogger.Logger) (repository.PushDialer, error) {
	if !cfg.StreamingEnabled() {
		return nil, nil
	}
	wsURL := cfg.Dashboard.Streaming.WebSocketURL
	if wsURL == "" {
		var err error
		if wsURL, err = pushchannel.URLFromBase(cfg.Dashboard.BackendURL); err != nil {
			return nil, fmt.Errorf("websocket url: %w", err)
		}
	}
	return pushchannel.New(wsURL, cfg.Dashboard.Streaming.HandshakeTimeout, cfg.Dashboard.Streaming.PingInterval, l.With("pushchannel")), nil
}

// ProvideBackoff maps the reconnect section to a policy.
func ProvideBackoff(cfg *config.Config) streaming.BackoffPolicy {
	r := cfg.Dashboard.Streaming.Reconnect
	if r.Policy == "exponential" {
		return streaming.ExponentialBackoff{Initial: r.Delay, Max: r.MaxDelay, Multiplier: r.Multiplier}
	}
	return streaming.FlatBackoff(r.Delay)
}

// ProvideStreamingController creates the streaming dashboard, or nil when
// the configured mode excludes it.
func ProvideStreamingController(
	cfg *config.Config,
	client *backend.Client,
	dialer repository.PushDialer,
	backoff streaming.BackoffPolicy,
	m repository.Metrics,
	l *applogger.Logger,
) *streaming.Controller {
	if !cfg.StreamingEnabled() {
		return nil
	}
	s := cfg.Dashboard.Streaming
	return streaming.NewController(client, dialer, m, l, streaming.Options{
		BackstopInterval: s.BackstopInterval,
		TradesLimit:      s.TradesLimit,
		FeedCapacity:     s.FeedCapacity,
		Backoff:          backoff,
	})
}

// ProvideDashboardHandlers exposes the dashboards over HTTP.
func ProvideDashboardHandlers(l *applogger.Logger, pc *polling.Controller, sc *streaming.Controller) []xhttp.Handler {
	return []xhttp.Handler{api.NewDashboardEchoHandler(l, pc, sc)}
}

// ProvideDashboardApp runs the enabled dashboards, their timers and the
// HTTP server until the context is cancelled.
func ProvideDashboardApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	sched *scheduler.Scheduler,
	pc *polling.Controller,
	sc *streaming.Controller,
) *server.App {
	app := server.New(l, server.WithHTTPServer(srv), server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))

	if pc != nil {
		app.Add(server.ComponentFunc{ComponentName: polling.Name, Fn: func(ctx context.Context) error {
			if err := pc.Start(ctx, sched); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		}})
	}
	if sc != nil {
		app.Add(server.ComponentFunc{ComponentName: streaming.Name, Fn: func(ctx context.Context) error {
			if err := sc.Start(ctx, sched); err != nil {
				return err
			}
			sc.Wait()
			return nil
		}})
	}
	app.Add(server.ComponentFunc{ComponentName: "scheduler", Fn: func(ctx context.Context) error {
		sched.Run(ctx)
		return nil
	}})
	return app
}

// ---- feed ----

// ProvideCache creates the feed store's backing cache.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	memory := func(size int) *cache.MemoryCache {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(size))
	}

	var svc cache.Service
	switch cfg.Feed.Store.Cache {
	case "memory":
		svc = memory(cfg.Feed.Store.MemorySize)
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
		if cfg.Feed.Store.Cache == "layered" {
			svc = cache.NewLayeredCache(rc,
				cache.WithLayeredMemorySize(cfg.Feed.Store.MemorySize),
				cache.WithLayeredL1TTL(cfg.Feed.Store.L1TTL),
			)
		}
	default:
		return nil, nil, fmt.Errorf("unknown feed cache %q", cfg.Feed.Store.Cache)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideFeedStore creates the snapshot store.
func ProvideFeedStore(cfg *config.Config, c cache.Service) *feedstore.Store {
	return feedstore.New(c,
		feedstore.WithKey(cfg.Feed.Store.Key),
		feedstore.WithLock(cfg.Feed.Store.LockTTL, cfg.Feed.Store.LockTimeout),
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil for the direct
// backend. The update processor owns it and closes it on shutdown.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if cfg.Feed.Backend != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRedisQueue creates the update queue for the redis backend, or nil
// otherwise. Without feed.consume the queue only publishes.
func ProvideRedisQueue(cfg *config.Config, l *applogger.Logger) (*queue.RedisQueue, func(), error) {
	if cfg.Feed.Backend != usecase.BackendRedis {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	mode := queue.ModeProducerConsumer
	if !cfg.Feed.Consume {
		mode = queue.ModeProducerOnly
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Feed.Queue.Workers,
		RetryLimit: cfg.Feed.Queue.RetryLimit,
		RetryDelay: cfg.Feed.Queue.RetryDelay,
	}, queue.NewRedisBackend(client), mode, queue.WithKeyPrefix(cfg.Feed.Queue.Prefix))
	return q, func() { _ = client.Close() }, nil
}

// ProvideUpdatePublisher picks the publisher for the configured backend, or
// nil for the direct backend.
func ProvideUpdatePublisher(cfg *config.Config, producer *pkgkafka.Producer, q *queue.RedisQueue) repository.UpdatePublisher {
	switch {
	case producer != nil:
		return internalrepo.NewKafkaUpdatePublisher(producer, cfg.Kafka.Topic)
	case q != nil:
		return internalrepo.NewQueueUpdatePublisher(q)
	}
	return nil
}

// ProvideUpdateProcessor creates the webhook ingestion use case.
func ProvideUpdateProcessor(
	cfg *config.Config,
	store repository.FeedStore,
	pub repository.UpdatePublisher,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.UpdateProcessor, error) {
	return usecase.NewUpdateProcessor(store, pub, m, l, cfg.Feed.Backend)
}

// ProvideKafkaUpdatesHandler applies consumed updates to the store.
func ProvideKafkaUpdatesHandler(cfg *config.Config, store repository.FeedStore, m repository.Metrics, l *applogger.Logger) *usecase.KafkaUpdatesHandler {
	return usecase.NewKafkaUpdatesHandler(cfg.Kafka.Topic, store, m, l)
}

// ProvideQueueUpdatesJob applies queued updates to the store.
func ProvideQueueUpdatesJob(store repository.FeedStore, m repository.Metrics, l *applogger.Logger) *usecase.QueueUpdatesJob {
	return usecase.NewQueueUpdatesJob(store, m, l)
}

// ProvideWebhookLimiter creates the per-IP webhook limiter, or nil when
// feed.rate_limit.burst is 0.
func ProvideWebhookLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Feed.RateLimit.Burst == 0 {
		return nil
	}
	return ratelimit.New(cfg.Feed.RateLimit.Burst, cfg.Feed.RateLimit.PerSecond)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil
// when this process does not consume.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Backend != usecase.BackendKafka || !cfg.Feed.Consume {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideFeedHandlers exposes the feed API over HTTP.
func ProvideFeedHandlers(
	l *applogger.Logger,
	store repository.FeedStore,
	proc *usecase.UpdateProcessor,
	lim *ratelimit.Limiter,
	m repository.Metrics,
) []xhttp.Handler {
	var opts []api.FeedOption
	if lim != nil {
		log := l.With("ratelimit")
		opts = append(opts, api.WithWebhookMiddleware(ratelimit.Middleware(lim, func(ip string) {
			m.RecordError("webhook_rate_limited")
			log.Debug("webhook rate limited", applogger.String("ip", ip))
		})))
	}
	return []xhttp.Handler{api.NewFeedEchoHandler(l, store, proc, opts...)}
}

// ProvideFeedApp runs the feed API and, with the kafka backend, the consumer
// that applies published updates.
func ProvideFeedApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	sched *scheduler.Scheduler,
	proc *usecase.UpdateProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaUpdatesHandler,
	q *queue.RedisQueue,
	qj *usecase.QueueUpdatesJob,
	lim *ratelimit.Limiter,
) (*server.App, error) {
	app := server.New(l, server.WithHTTPServer(srv), server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))

	if q != nil {
		if cfg.Feed.Consume {
			q.RegisterJob(qj)
		}
		app.Add(server.ComponentFunc{ComponentName: "redis_queue", Fn: func(ctx context.Context) error {
			if err := q.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		}})
		app.OnShutdown("redis_queue", q.Stop)
	}
	if lim != nil {
		idle := cfg.Feed.RateLimit.IdleTTL
		if err := sched.Every("ratelimit_gc", time.Minute, func(context.Context) {
			lim.Forget(idle)
		}); err != nil {
			return nil, err
		}
		app.Add(server.ComponentFunc{ComponentName: "scheduler", Fn: func(ctx context.Context) error {
			sched.Run(ctx)
			return nil
		}})
	}

	if consumer != nil {
		consumer.RegisterHandler(kh)
		consumer.WithConsumerHook(pkgkafka.TraceHook())
		app.Add(server.ComponentFunc{ComponentName: "kafka_consumer", Fn: func(ctx context.Context) error {
			if err := consumer.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		}})
		app.OnShutdown("kafka_consumer", consumer.Stop)
	}
	app.OnShutdown("update_processor", func(context.Context) error {
		return proc.Close()
	})
	return app, nil
}

// ---- simulator ----

// ProvideFeedClient creates the client the simulator posts with.
func ProvideFeedClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithBaseURL(cfg.Simulator.FeedURL), xhttp.WithTimeout(cfg.Simulator.Timeout))
}

// ProvideSimulator creates the data simulator.
func ProvideSimulator(cfg *config.Config, client *xhttp.Client, l *applogger.Logger) *usecase.Simulator {
	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return usecase.NewSimulator(client, rand.New(rand.NewSource(seed)), time.Now, l)
}

// ProvideSimulatorApp posts simulated updates until the context is cancelled.
func ProvideSimulatorApp(cfg *config.Config, l *applogger.Logger, sched *scheduler.Scheduler, sim *usecase.Simulator) *server.App {
	app := server.New(l)
	app.Add(
		server.ComponentFunc{ComponentName: "simulator", Fn: func(ctx context.Context) error {
			if err := sim.Start(ctx, sched, cfg.Simulator.Interval); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		}},
		server.ComponentFunc{ComponentName: "scheduler", Fn: func(ctx context.Context) error {
			sched.Run(ctx)
			return nil
		}},
	)
	return app
}

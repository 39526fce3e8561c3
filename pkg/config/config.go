package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Logger      struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Dashboard struct {
		// Mode is polling, streaming or both.
		Mode           string        `yaml:"mode" default:"both"`
		BackendURL     string        `yaml:"backend_url" default:"http://localhost:8000"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"10s"`
		Polling        struct {
			Interval time.Duration `yaml:"interval" default:"10s"`
		} `yaml:"polling"`
		Streaming struct {
			// WebSocketURL defaults to <backend_url>/ws with the scheme swapped.
			WebSocketURL     string        `yaml:"websocket_url"`
			BackstopInterval time.Duration `yaml:"backstop_interval" default:"30s"`
			TradesLimit      int           `yaml:"trades_limit" default:"20"`
			FeedCapacity     int           `yaml:"feed_capacity" default:"50"`
			HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"10s"`
			PingInterval     time.Duration `yaml:"ping_interval" default:"30s"`
			Reconnect        struct {
				// Policy is flat or exponential.
				Policy     string        `yaml:"policy" default:"flat"`
				Delay      time.Duration `yaml:"delay" default:"3s"`
				MaxDelay   time.Duration `yaml:"max_delay" default:"30s"`
				Multiplier float64       `yaml:"multiplier" default:"2"`
			} `yaml:"reconnect"`
		} `yaml:"streaming"`
	} `yaml:"dashboard"`
	Feed struct {
		// Backend is direct, kafka or redis.
		Backend string `yaml:"backend" default:"direct"`
		// Consume applies queued updates in the feed process.
		Consume bool `yaml:"consume" default:"true"`
		Queue   struct {
			Workers    int           `yaml:"workers" default:"2"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
			Prefix     string        `yaml:"prefix" default:"overlord:queue"`
		} `yaml:"queue"`
		// RateLimit applies per client IP to the webhook routes. Burst 0 disables it.
		RateLimit struct {
			Burst     int           `yaml:"burst" default:"30"`
			PerSecond float64       `yaml:"per_second" default:"5"`
			IdleTTL   time.Duration `yaml:"idle_ttl" default:"10m"`
		} `yaml:"rate_limit"`
		Store   struct {
			// Cache is memory, redis or layered.
			Cache       string        `yaml:"cache" default:"memory"`
			Key         string        `yaml:"key" default:"feed:snapshot"`
			LockTTL     time.Duration `yaml:"lock_ttl" default:"5s"`
			LockTimeout time.Duration `yaml:"lock_timeout" default:"3s"`
			MemorySize  int           `yaml:"memory_size" default:"1000"`
			L1TTL       time.Duration `yaml:"l1_ttl" default:"5s"`
		} `yaml:"store"`
	} `yaml:"feed"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"overlord"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"overlord.feed.updates"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"overlord-feed"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Simulator struct {
		FeedURL  string        `yaml:"feed_url" default:"http://localhost:8080"`
		Interval time.Duration `yaml:"interval" default:"5s"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		Seed     int64         `yaml:"seed"`
	} `yaml:"simulator"`
}

// Default returns a config populated from the default tags only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("OVERLORD_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DASHBOARD_MODE"); v != "" {
		c.Dashboard.Mode = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Dashboard.BackendURL = v
	}
	if v := os.Getenv("WEBSOCKET_URL"); v != "" {
		c.Dashboard.Streaming.WebSocketURL = v
	}
	if v := os.Getenv("FEED_BACKEND"); v != "" {
		c.Feed.Backend = v
	}
	if v := os.Getenv("FEED_CACHE"); v != "" {
		c.Feed.Store.Cache = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Simulator.FeedURL = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Dashboard.Mode {
	case "polling", "streaming", "both":
	default:
		return fmt.Errorf("dashboard.mode must be 'polling', 'streaming' or 'both', got '%s'", c.Dashboard.Mode)
	}
	if c.Dashboard.BackendURL == "" {
		return fmt.Errorf("dashboard.backend_url is required")
	}
	if c.Dashboard.Polling.Interval < time.Second {
		return fmt.Errorf("dashboard.polling.interval must be at least 1s")
	}
	switch c.Dashboard.Streaming.Reconnect.Policy {
	case "flat", "exponential":
	default:
		return fmt.Errorf("dashboard.streaming.reconnect.policy must be 'flat' or 'exponential', got '%s'", c.Dashboard.Streaming.Reconnect.Policy)
	}
	if c.Dashboard.Streaming.Reconnect.Delay <= 0 {
		return fmt.Errorf("dashboard.streaming.reconnect.delay must be positive")
	}
	switch c.Feed.Backend {
	case "direct":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when feed.backend is 'kafka'")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when feed.backend is 'kafka'")
		}
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required when feed.backend is 'redis'")
		}
		if c.Feed.Queue.Workers <= 0 {
			return fmt.Errorf("feed.queue.workers must be positive")
		}
	default:
		return fmt.Errorf("feed.backend must be 'direct', 'kafka' or 'redis', got '%s'", c.Feed.Backend)
	}
	if c.Feed.RateLimit.Burst < 0 {
		return fmt.Errorf("feed.rate_limit.burst must not be negative")
	}
	if c.Feed.RateLimit.Burst > 0 && c.Feed.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("feed.rate_limit.per_second must be positive when the limit is enabled")
	}
	switch c.Feed.Store.Cache {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("feed.store.cache must be 'memory', 'redis' or 'layered', got '%s'", c.Feed.Store.Cache)
	}
	if c.Feed.Store.Cache != "memory" && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when feed.store.cache is '%s'", c.Feed.Store.Cache)
	}
	if c.Simulator.Interval < time.Second {
		return fmt.Errorf("simulator.interval must be at least 1s")
	}
	return nil
}

// PollingEnabled reports whether the polling dashboard should run.
func (c *Config) PollingEnabled() bool {
	return c.Dashboard.Mode == "polling" || c.Dashboard.Mode == "both"
}

// StreamingEnabled reports whether the streaming dashboard should run.
func (c *Config) StreamingEnabled() bool {
	return c.Dashboard.Mode == "streaming" || c.Dashboard.Mode == "both"
}

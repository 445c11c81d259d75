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
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Feed struct {
		URL            string        `yaml:"url" default:"ws://localhost:8000/ws"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		DialTimeout    time.Duration `yaml:"dial_timeout" default:"10s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		ReadLimit      int64         `yaml:"read_limit" default:"1048576"`
	} `yaml:"feed"`
	Window struct {
		Capacity           int     `yaml:"capacity" default:"20"`
		StorageCapacityKWh float64 `yaml:"storage_capacity_kwh" default:"800"`
	} `yaml:"window"`
	Clock struct {
		Interval time.Duration `yaml:"interval" default:"1s"`
		Layout   string        `yaml:"layout" default:"15:04:05"`
	} `yaml:"clock"`
	Purchase struct {
		BaseURL   string        `yaml:"base_url" default:"http://localhost:8000"`
		Timeout   time.Duration `yaml:"timeout" default:"5s"`
		RateLimit struct {
			Capacity     float64 `yaml:"capacity" default:"5"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
		} `yaml:"rate_limit"`
	} `yaml:"purchase"`
	Sinks struct {
		Backend      string        `yaml:"backend" default:"none"`
		BufferSize   int           `yaml:"buffer_size" default:"1000"`
		BatchSize    int           `yaml:"batch_size" default:"1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"2s"`
	} `yaml:"sinks"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"energy.samples"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"energydash"`
		Table            string        `yaml:"table" default:"samples"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		PoolSize         int           `yaml:"pool_size" default:"10"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Cache struct {
		Backend string        `yaml:"backend" default:"memory"`
		TTL     time.Duration `yaml:"ttl" default:"1m"`
		Redis   struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"energydash"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Default returns a configuration populated only from `default` tags.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
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
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := getenv("WINDOW_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WINDOW_CAPACITY: %w", err)
		}
		c.Window.Capacity = n
	}
	if v := getenv("RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECONNECT_DELAY: %w", err)
		}
		c.Feed.ReconnectDelay = d
	}
	if v := getenv("PURCHASE_URL"); v != "" {
		c.Purchase.BaseURL = v
	}
	if v := getenv("SINK_BACKEND"); v != "" {
		c.Sinks.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Cache.Redis.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must use ws:// or wss://, got '%s'", c.Feed.URL)
	}
	if c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be positive")
	}
	if c.Window.Capacity <= 0 {
		return fmt.Errorf("window.capacity must be positive, got %d", c.Window.Capacity)
	}
	if c.Window.StorageCapacityKWh < 0 {
		return fmt.Errorf("window.storage_capacity_kwh cannot be negative")
	}
	if c.Sinks.BatchSize < 1 {
		return fmt.Errorf("sinks.batch_size must be at least 1, got %d", c.Sinks.BatchSize)
	}
	if c.Clock.Interval <= 0 {
		return fmt.Errorf("clock.interval must be positive")
	}
	switch c.Sinks.Backend {
	case "none", "kafka", "clickhouse", "both":
	default:
		return fmt.Errorf("sinks.backend must be 'none', 'kafka', 'clickhouse' or 'both', got '%s'", c.Sinks.Backend)
	}
	if c.KafkaEnabled() {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka sink is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka sink is enabled")
		}
	}
	if c.ClickHouseEnabled() && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse sink is enabled")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
	}
	return nil
}

// KafkaEnabled reports whether samples are republished to Kafka.
func (c *Config) KafkaEnabled() bool {
	return c.Sinks.Backend == "kafka" || c.Sinks.Backend == "both"
}

// ClickHouseEnabled reports whether samples are persisted to ClickHouse.
func (c *Config) ClickHouseEnabled() bool {
	return c.Sinks.Backend == "clickhouse" || c.Sinks.Backend == "both"
}

// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Postgres, Kafka, Redis, Recommend, Search, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Search     SearchConfig     `yaml:"search"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Activity   ActivityConfig   `yaml:"activity"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists browser origins allowed to call the API; empty
	// allows any.
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// StoreConfig selects the document/activity store backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver"`
	// SeedFile optionally preloads the memory store from a JSON file.
	SeedFile string `yaml:"seedFile"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ActivityLog     string `yaml:"activityLog"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RecommendConfig holds the relevance weights and limits used by the
// recommendation pipeline.
type RecommendConfig struct {
	ContentWeight    float64       `yaml:"contentWeight"`
	CategoryWeight   float64       `yaml:"categoryWeight"`
	PopularityWeight float64       `yaml:"popularityWeight"`
	PopularityCap    float64       `yaml:"popularityCap"`
	Limit            int           `yaml:"limit"`
	RecentViews      int           `yaml:"recentViews"`
	Deadline         time.Duration `yaml:"deadline"`
	Stemming         bool          `yaml:"stemming"`
}

// SearchConfig controls full-text search limits and personalization.
type SearchConfig struct {
	MaxResults        int     `yaml:"maxResults"`
	HistoryLimit      int     `yaml:"historyLimit"`
	FrequencyCap      float64 `yaml:"frequencyCap"`
	FrequencyWeight   float64 `yaml:"frequencyWeight"`
	RecencyWeight     float64 `yaml:"recencyWeight"`
	RecencyDecayDays  float64 `yaml:"recencyDecayDays"`
	SuggestionLimit   int     `yaml:"suggestionLimit"`
	SuggestionHistory int     `yaml:"suggestionHistory"`
}

// ResilienceConfig controls retries and the circuit breaker wrapped around
// store calls.
type ResilienceConfig struct {
	MaxRetries          int           `yaml:"maxRetries"`
	RetryInitialBackoff time.Duration `yaml:"retryInitialBackoff"`
	RetryMaxBackoff     time.Duration `yaml:"retryMaxBackoff"`
	BreakerMaxFailures  uint32        `yaml:"breakerMaxFailures"`
	BreakerResetTimeout time.Duration `yaml:"breakerResetTimeout"`
	QueryTimeout        time.Duration `yaml:"queryTimeout"`
}

// ActivityConfig controls batching on the Kafka append path.
type ActivityConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// AnalyticsConfig controls event buffering and snapshot persistence.
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	Port             int           `yaml:"port"`
	// ServiceURL is where the recommender proxies GET /api/v1/analytics when
	// events go through Kafka.
	ServiceURL string `yaml:"serviceURL"`
}

// RateLimitConfig controls the per-user token bucket applied to the API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span recording.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects configurations the scoring code cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver))
	}
	r := c.Recommend
	if r.ContentWeight < 0 || r.CategoryWeight < 0 || r.PopularityWeight < 0 {
		errs = append(errs, errors.New("recommend weights must be non-negative"))
	}
	if r.PopularityCap <= 0 {
		errs = append(errs, errors.New("recommend.popularityCap must be positive"))
	}
	if r.Limit <= 0 || r.RecentViews <= 0 {
		errs = append(errs, errors.New("recommend.limit and recommend.recentViews must be positive"))
	}
	s := c.Search
	if s.MaxResults <= 0 || s.HistoryLimit <= 0 || s.HistoryLimit > 100 {
		errs = append(errs, errors.New("search.maxResults must be positive and search.historyLimit in 1..100"))
	}
	if s.FrequencyCap <= 0 || s.RecencyDecayDays <= 0 {
		errs = append(errs, errors.New("search.frequencyCap and search.recencyDecayDays must be positive"))
	}
	if c.Activity.BatchSize < 0 || c.Analytics.BufferSize < 0 {
		errs = append(errs, errors.New("activity.batchSize and analytics.bufferSize must be non-negative"))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docgenius",
			User:            "docgenius",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docgenius-group",
			Topics: KafkaTopics{
				ActivityLog:     "activity-log",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Recommend: RecommendConfig{
			ContentWeight:    0.5,
			CategoryWeight:   0.3,
			PopularityWeight: 0.2,
			PopularityCap:    100,
			Limit:            5,
			RecentViews:      5,
			Deadline:         2 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:        20,
			HistoryLimit:      50,
			FrequencyCap:      5,
			FrequencyWeight:   0.4,
			RecencyWeight:     0.6,
			RecencyDecayDays:  14,
			SuggestionLimit:   5,
			SuggestionHistory: 20,
		},
		Resilience: ResilienceConfig{
			MaxRetries:          2,
			RetryInitialBackoff: 50 * time.Millisecond,
			RetryMaxBackoff:     500 * time.Millisecond,
			BreakerMaxFailures:  5,
			BreakerResetTimeout: 30 * time.Second,
			QueryTimeout:        2 * time.Second,
		},
		Activity: ActivityConfig{
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			SnapshotInterval: time.Minute,
			Port:             8085,
			ServiceURL:       "http://localhost:8085",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DG_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DG_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DG_STORE_SEED_FILE"); v != "" {
		cfg.Store.SeedFile = v
	}
	if v := os.Getenv("DG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DG_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DG_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DG_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DG_RECOMMEND_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recommend.Deadline = d
		}
	}
	if v := os.Getenv("DG_RECOMMEND_STEMMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recommend.Stemming = b
		}
	}
	if v := os.Getenv("DG_ANALYTICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.Port = port
		}
	}
	if v := os.Getenv("DG_ANALYTICS_SERVICE_URL"); v != "" {
		cfg.Analytics.ServiceURL = v
	}
	if v := os.Getenv("DG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

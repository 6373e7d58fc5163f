// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for the HTTP
// server, the backing stores and the index and search engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RequestTimeout bounds the handling of one API request.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of API requests a client IP may make per
	// RateWindow; zero disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and result caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// OpTimeout bounds one cache round trip; a slow Redis must not slow
	// searches down.
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// IndexConfig controls the index writer and the near-real-time reopen loop.
type IndexConfig struct {
	DataDir string `yaml:"dataDir"`
	// Analyzer names the analyzer for text fields: "standard", "whitespace"
	// or "keyword".
	Analyzer         string        `yaml:"analyzer"`
	PrecisionStep    int           `yaml:"precisionStep"`
	MaxBufferedDocs  int           `yaml:"maxBufferedDocs"`
	RefreshInterval  time.Duration `yaml:"refreshInterval"`
	MinStaleInterval time.Duration `yaml:"minStaleInterval"`
	CommitInterval   time.Duration `yaml:"commitInterval"`
}

// SearchConfig controls query execution limits and rewrite heuristics.
type SearchConfig struct {
	MaxResults     int `yaml:"maxResults"`
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxClauseCount int `yaml:"maxClauseCount"`
	// Concurrency bounds the number of segments scored in parallel.
	Concurrency           int     `yaml:"concurrency"`
	AutoRewriteTermCount  int     `yaml:"autoRewriteTermCount"`
	AutoRewriteDocPercent float64 `yaml:"autoRewriteDocPercent"`
	RandomAccessThreshold int     `yaml:"randomAccessThreshold"`
	// MaxCachedFilters bounds the number of distinct filters whose
	// per-segment results are shared between requests.
	MaxCachedFilters int `yaml:"maxCachedFilters"`
}

// AnalyticsConfig controls search event publishing and the query log.
type AnalyticsConfig struct {
	BatchSize      int           `yaml:"batchSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	QueryLogBuffer int           `yaml:"queryLogBuffer"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	// Profiling serves net/http/pprof on the metrics port.
	Profiling bool `yaml:"profiling"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.PrecisionStep < 1 {
		return fmt.Errorf("index.precisionStep must be >= 1, got %d", c.Index.PrecisionStep)
	}
	if c.Search.MaxClauseCount < 1 {
		return fmt.Errorf("search.maxClauseCount must be >= 1, got %d", c.Search.MaxClauseCount)
	}
	if c.Search.AutoRewriteDocPercent < 0 || c.Search.AutoRewriteDocPercent > 100 {
		return fmt.Errorf("search.autoRewriteDocPercent must be within [0, 100], got %v", c.Search.AutoRewriteDocPercent)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must be >= 0, got %d", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rateWindow must be positive when rate limiting is on")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit %d exceeds search.maxResults %d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       600,
			RateWindow:      time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchengine",
			User:            "searchengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchengine-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "search-events",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			OpTimeout: 100 * time.Millisecond,
		},
		Index: IndexConfig{
			DataDir:          "data/index",
			Analyzer:         "standard",
			PrecisionStep:    4,
			MaxBufferedDocs:  1000,
			RefreshInterval:  5 * time.Second,
			MinStaleInterval: 100 * time.Millisecond,
			CommitInterval:   time.Minute,
		},
		Search: SearchConfig{
			MaxResults:            1000,
			DefaultLimit:          10,
			MaxClauseCount:        1024,
			Concurrency:           4,
			AutoRewriteTermCount:  350,
			AutoRewriteDocPercent: 0.1,
			RandomAccessThreshold: 100,
			MaxCachedFilters:      256,
		},
		Analytics: AnalyticsConfig{
			BatchSize:      100,
			FlushInterval:  5 * time.Second,
			QueryLogBuffer: 1024,
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

func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setInt("SP_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setDuration("SP_SERVER_RATE_WINDOW", &cfg.Server.RateWindow)
	setBool("SP_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("SP_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("SP_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SP_INDEX_DATA_DIR", &cfg.Index.DataDir)
	setString("SP_INDEX_ANALYZER", &cfg.Index.Analyzer)
	setInt("SP_INDEX_PRECISION_STEP", &cfg.Index.PrecisionStep)
	setDuration("SP_INDEX_REFRESH_INTERVAL", &cfg.Index.RefreshInterval)
	setInt("SP_SEARCH_MAX_CLAUSE_COUNT", &cfg.Search.MaxClauseCount)
	setInt("SP_SEARCH_CONCURRENCY", &cfg.Search.Concurrency)
	setInt("SP_ANALYTICS_BATCH_SIZE", &cfg.Analytics.BatchSize)
	setDuration("SP_ANALYTICS_FLUSH_INTERVAL", &cfg.Analytics.FlushInterval)
	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("SP_METRICS_PROFILING", &cfg.Metrics.Profiling)
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cachecompare/adapters/bigcache"
	"cachecompare/adapters/jsonfile"
	"cachecompare/adapters/memory"
	"cachecompare/adapters/redis"
	"cachecompare/adapters/ristretto"
	"cachecompare/adapters/sqlx"
	"cachecompare/adapters/synthetic"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Backend adapter names.
const (
	AdapterMemory    = "memory"
	AdapterRedis     = "redis"
	AdapterBigCache  = "bigcache"
	AdapterRistretto = "ristretto"
)

// User source names.
const (
	SourceSynthetic = "synthetic"
	SourceSQL       = "sql"
	SourceFile      = "file"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"CACHECOMPARE_ENV"`

	Server      ServerConfig      `json:"server"`
	Backend     BackendConfig     `json:"backend"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Session     SessionConfig     `json:"session"`
	Users       UsersConfig       `json:"users"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Webhook     WebhookConfig     `json:"webhook"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"CACHECOMPARE_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"CACHECOMPARE_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"CACHECOMPARE_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"CACHECOMPARE_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"CACHECOMPARE_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"CACHECOMPARE_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"CACHECOMPARE_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"CACHECOMPARE_SERVER_SHUTDOWN_TIMEOUT"`
	// MaxConcurrent caps in-flight requests; excess requests get 503. 0 disables the cap.
	MaxConcurrent int `json:"max_concurrent" env:"CACHECOMPARE_SERVER_MAX_CONCURRENT"`
}

// BackendConfig selects and tunes the storage backend shared by all workloads.
type BackendConfig struct {
	Adapter   string           `json:"adapter" env:"CACHECOMPARE_BACKEND_ADAPTER"`
	Codec     string           `json:"codec" env:"CACHECOMPARE_BACKEND_CODEC"`
	OpTimeout time.Duration    `json:"op_timeout" env:"CACHECOMPARE_BACKEND_OP_TIMEOUT"`
	Memory    memory.Config    `json:"memory"`
	Redis     redis.Config     `json:"redis"`
	BigCache  bigcache.Config  `json:"bigcache"`
	Ristretto ristretto.Config `json:"ristretto"`
}

// LeaderboardConfig tunes the ranked workload.
type LeaderboardConfig struct {
	Shards         int  `json:"shards" env:"CACHECOMPARE_LEADERBOARD_SHARDS"`
	MaxTopN        int  `json:"max_top_n" env:"CACHECOMPARE_LEADERBOARD_MAX_TOP_N"`
	RebuildOnStart bool `json:"rebuild_on_start" env:"CACHECOMPARE_LEADERBOARD_REBUILD_ON_START"`
}

// SessionConfig tunes issued sessions.
type SessionConfig struct {
	PayloadSize int           `json:"payload_size" env:"CACHECOMPARE_SESSION_PAYLOAD_SIZE"`
	TTL         time.Duration `json:"ttl" env:"CACHECOMPARE_SESSION_TTL"`
}

// UsersConfig selects the upstream user source and cache lifetime.
type UsersConfig struct {
	Source       string           `json:"source" env:"CACHECOMPARE_USERS_SOURCE"`
	TTL          time.Duration    `json:"ttl" env:"CACHECOMPARE_USERS_TTL"`
	FetchTimeout time.Duration    `json:"fetch_timeout" env:"CACHECOMPARE_USERS_FETCH_TIMEOUT"`
	Synthetic    synthetic.Config `json:"synthetic"`
	SQL          sqlx.Config      `json:"sql"`
	File         jsonfile.Config  `json:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"CACHECOMPARE_LOG_LEVEL"`
	Format     string            `json:"format" env:"CACHECOMPARE_LOG_FORMAT"`
	Output     string            `json:"output" env:"CACHECOMPARE_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"CACHECOMPARE_LOG_ATTRIBUTES"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" env:"CACHECOMPARE_METRICS_ENABLED"`
	Address       string `json:"address" env:"CACHECOMPARE_METRICS_ADDR"`
	Path          string `json:"path" env:"CACHECOMPARE_METRICS_PATH"`
	CollectSystem bool   `json:"collect_system" env:"CACHECOMPARE_METRICS_COLLECT_SYSTEM"`
}

// WebhookConfig forwards engine events to HTTP endpoints. Disabled when no
// endpoints are set; an empty Events list forwards every event type.
type WebhookConfig struct {
	Endpoints []string      `json:"endpoints" env:"CACHECOMPARE_WEBHOOK_ENDPOINTS"`
	Events    []string      `json:"events" env:"CACHECOMPARE_WEBHOOK_EVENTS"`
	Timeout   time.Duration `json:"timeout" env:"CACHECOMPARE_WEBHOOK_TIMEOUT"`
}

// Load reads an optional .env file, then environment variables, and validates.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file; environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration matching the benchmark defaults:
// in-process backend, 10s sessions with 512-byte payloads, 10m user TTL.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxConcurrent:     4096,
		},
		Backend: BackendConfig{
			Adapter:   AdapterMemory,
			Codec:     "msgpack",
			OpTimeout: 2 * time.Second,
			Memory:    memory.DefaultConfig(),
			Redis:     redis.DefaultConfig(),
			BigCache:  bigcache.DefaultConfig(),
			Ristretto: ristretto.DefaultConfig(),
		},
		Leaderboard: LeaderboardConfig{
			Shards:         16,
			MaxTopN:        1000,
			RebuildOnStart: true,
		},
		Session: SessionConfig{
			PayloadSize: 512,
			TTL:         10 * time.Second,
		},
		Users: UsersConfig{
			Source:       SourceSynthetic,
			TTL:          10 * time.Minute,
			FetchTimeout: 5 * time.Second,
			Synthetic:    synthetic.DefaultConfig(),
			SQL:          sqlx.DefaultConfig(sqlx.DriverMySQL),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			Address:       ":9090",
			Path:          "/metrics",
			CollectSystem: true,
		},
		Webhook: WebhookConfig{
			Timeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"backend", c.Backend.Validate},
		{"leaderboard", c.Leaderboard.Validate},
		{"session", c.Session.Validate},
		{"users", c.Users.Validate},
		{"logging", c.Logging.Validate},
		{"metrics", c.Metrics.Validate},
		{"webhook", c.Webhook.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Users.SQL.DSN != "" {
		cfg.Users.SQL.DSN = "[REDACTED]"
	}
	if cfg.Backend.Redis.Password != "" {
		cfg.Backend.Redis.Password = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}

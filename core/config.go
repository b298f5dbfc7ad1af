package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every option recognized by the pipeline, resolved in
// three layers of increasing priority:
//  1. Defaults (struct tags below, applied by DefaultConfig)
//  2. Environment variables (TASKGRAPH_*, applied by LoadFromEnv)
//  3. Functional options (applied last by NewConfig)
type Config struct {
	Name string `json:"name" env:"TASKGRAPH_NAME" default:"taskgraphd"`

	Limits    LimitsConfig    `json:"limits"`
	Cache     CacheConfig     `json:"cache"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	Retry     RetryConfig     `json:"retry"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry"`

	logger Logger `json:"-"`
}

// LimitsConfig bounds the executor's batch dispatch size.
type LimitsConfig struct {
	MaxConcurrency int `json:"maxConcurrency" yaml:"maxConcurrency" env:"TASKGRAPH_MAX_CONCURRENCY" default:"4"`
}

// CacheConfig enables and bounds the task-output memoization layer.
type CacheConfig struct {
	Enabled bool          `json:"enabled" env:"TASKGRAPH_CACHE_ENABLED" default:"true"`
	TTL     time.Duration `json:"ttl" env:"TASKGRAPH_CACHE_TTL" default:"5m"`
}

// RateLimitConfig configures the per-agent throttle. taskgraphd wires
// ratelimit.IntervalGate from IntervalMs alone, admitting one call per
// agent per interval; RequestsPerInterval is validated but not read by
// that gate (ratelimit.NewTokenBucket accepts it, and taskgraphd does not
// construct one).
type RateLimitConfig struct {
	Enabled             bool  `json:"enabled" env:"TASKGRAPH_RATELIMIT_ENABLED" default:"false"`
	RequestsPerInterval int   `json:"requestsPerInterval" yaml:"requestsPerInterval" env:"TASKGRAPH_RATELIMIT_REQUESTS" default:"10"`
	IntervalMs          int64 `json:"intervalMs" yaml:"intervalMs" env:"TASKGRAPH_RATELIMIT_INTERVAL_MS" default:"1000"`
}

// Interval returns the configured interval as a time.Duration for
// ratelimit.NewIntervalGate.
func (c RateLimitConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// RetryConfig gives the backoff delays the executor uses for nodes that
// set Config.Retries > 0. A node with Config.Retries == 0 is called once
// with no retry; for the others the executor replaces MaxAttempts with
// Config.Retries+1.
type RetryConfig struct {
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts" env:"TASKGRAPH_RETRY_MAX_ATTEMPTS" default:"1"`
	BaseDelay   time.Duration `json:"baseDelayMs" yaml:"baseDelayMs" env:"TASKGRAPH_RETRY_BASE_DELAY" default:"100ms"`
	MaxDelay    time.Duration `json:"maxDelayMs" yaml:"maxDelayMs" env:"TASKGRAPH_RETRY_MAX_DELAY" default:"5s"`
}

// HTTPConfig configures the submission surface's listener.
type HTTPConfig struct {
	Port         int           `json:"port" env:"TASKGRAPH_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout" env:"TASKGRAPH_HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"TASKGRAPH_HTTP_WRITE_TIMEOUT" default:"60s"`
}

// LoggingConfig controls the structured logger's verbosity and encoding.
type LoggingConfig struct {
	Level  string `json:"level" env:"TASKGRAPH_LOG_LEVEL" default:"INFO"`
	Format string `json:"format" env:"TASKGRAPH_LOG_FORMAT"`
}

// GatewayConfig points the planner's HTTP gateway client at an LLM
// endpoint when no full planner agent is registered.
type GatewayConfig struct {
	URL     string        `json:"url" env:"TASKGRAPH_GATEWAY_URL"`
	Timeout time.Duration `json:"timeout" env:"TASKGRAPH_GATEWAY_TIMEOUT" default:"30s"`
}

// TelemetryConfig points the planner/executor's OpenTelemetry spans and
// metrics at an OTLP/HTTP collector. Disabled by default: with no
// collector running, exporting would just retry into timeouts.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"TASKGRAPH_TELEMETRY_ENABLED" default:"false"`
	Endpoint string `json:"endpoint" env:"TASKGRAPH_TELEMETRY_ENDPOINT" default:"localhost:4318"`
}

// DefaultConfig returns a Config populated from this struct's `default`
// tags, before any environment or functional-option overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Name: "taskgraphd",
		Limits: LimitsConfig{
			MaxConcurrency: 4,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:             false,
			RequestsPerInterval: 10,
			IntervalMs:          1000,
		},
		Retry: RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		HTTP: HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Gateway: GatewayConfig{
			Timeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4318",
		},
	}
}

// Option mutates a Config at NewConfig time; applied after environment
// overrides so options always win.
type Option func(*Config) error

func WithName(name string) Option {
	return func(c *Config) error { c.Name = name; return nil }
}

func WithMaxConcurrency(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("maxConcurrency must be >= 1, got %d", n)
		}
		c.Limits.MaxConcurrency = n
		return nil
	}
}

func WithCache(enabled bool, ttl time.Duration) Option {
	return func(c *Config) error {
		c.Cache.Enabled = enabled
		c.Cache.TTL = ttl
		return nil
	}
}

func WithRateLimit(enabled bool, requestsPerInterval int, intervalMs int64) Option {
	return func(c *Config) error {
		c.RateLimit.Enabled = enabled
		c.RateLimit.RequestsPerInterval = requestsPerInterval
		c.RateLimit.IntervalMs = intervalMs
		return nil
	}
}

func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) error {
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.BaseDelay = baseDelay
		c.Retry.MaxDelay = maxDelay
		return nil
	}
}

func WithHTTPPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port out of range: %d", port)
		}
		c.HTTP.Port = port
		return nil
	}
}

func WithGatewayURL(url string) Option {
	return func(c *Config) error { c.Gateway.URL = url; return nil }
}

func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Config) error { c.logger = logger; return nil }
}

// NewConfig resolves defaults, then environment variables, then the
// supplied options, in that priority order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewStructuredLogger(cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Logger returns the configured logger, defaulting to a no-op if the
// config was constructed directly rather than via NewConfig.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return NoOpLogger{}
	}
	return c.logger
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Limits.MaxConcurrency < 1 {
		return fmt.Errorf("limits.maxConcurrency must be >= 1")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerInterval < 1 {
		return fmt.Errorf("rateLimit.requestsPerInterval must be >= 1 when enabled")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.maxAttempts must be >= 0")
	}
	return nil
}

// LoadFromEnv overlays TASKGRAPH_* environment variables onto the current
// values, following the env tags declared on each nested config struct.
// TASKGRAPH_RETRY_BASE_DELAY, TASKGRAPH_RETRY_MAX_DELAY,
// TASKGRAPH_HTTP_READ_TIMEOUT, TASKGRAPH_HTTP_WRITE_TIMEOUT and
// TASKGRAPH_GATEWAY_TIMEOUT are declared in tags but not read here.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TASKGRAPH_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("TASKGRAPH_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_MAX_CONCURRENCY: %w", err)
		}
		c.Limits.MaxConcurrency = n
	}
	if v := os.Getenv("TASKGRAPH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("TASKGRAPH_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv("TASKGRAPH_RATELIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("TASKGRAPH_RATELIMIT_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_RATELIMIT_REQUESTS: %w", err)
		}
		c.RateLimit.RequestsPerInterval = n
	}
	if v := os.Getenv("TASKGRAPH_RATELIMIT_INTERVAL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_RATELIMIT_INTERVAL_MS: %w", err)
		}
		c.RateLimit.IntervalMs = n
	}
	if v := os.Getenv("TASKGRAPH_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v := os.Getenv("TASKGRAPH_HTTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKGRAPH_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = n
	}
	if v := os.Getenv("TASKGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToUpper(v)
	}
	if v := os.Getenv("TASKGRAPH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TASKGRAPH_GATEWAY_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("TASKGRAPH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TASKGRAPH_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// LoadFromFile overlays a JSON or YAML config file onto the current
// values, keyed by extension.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension: %s", ext)
	}
	return nil
}

// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"time"

	"github.com/JonMunkholm/thermoextract/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Analysis AnalysisConfig
	Pipeline PipelineConfig
	Registry RegistryConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response. Analyze and
	// batch extraction can run for minutes, so the default is 0 (none).
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`

	// RequestTimeout bounds quick requests such as session reads (default: 30s).
	// Stage routes are bounded by the pipeline timeouts instead.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the session store: postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	// Driver selects the object store: s3 or local (default: local)
	Driver string `env:"STORAGE_DRIVER" default:"local"`

	// Bucket is the S3 bucket holding all artifacts
	Bucket string `env:"S3_BUCKET"`

	// Region is the S3 region (default: us-east-1)
	Region string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`

	// Endpoint overrides the S3 endpoint for MinIO and other compatible stores
	Endpoint string `env:"S3_ENDPOINT"`

	// AccessKey and SecretKey are static credentials. When unset the default
	// AWS credential chain is used.
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`

	// LocalDir is the root directory for the local driver (default: ./data)
	LocalDir string `env:"STORAGE_LOCAL_DIR" default:"./data"`

	// PublicURL is the base URL artifacts are reachable under
	PublicURL string `env:"STORAGE_PUBLIC_URL"`
}

// AnalysisConfig holds settings for the external analysis service.
type AnalysisConfig struct {
	// URL is the analysis service base URL (default: https://api.anthropic.com)
	URL string `env:"ANALYSIS_URL" default:"https://api.anthropic.com"`

	// APIKey authenticates against the analysis service (required)
	APIKey string `env:"ANALYSIS_API_KEY" envAlt:"ANTHROPIC_API_KEY" required:"true"`

	// Model is the model identifier sent with every request
	Model string `env:"ANALYSIS_MODEL"`

	// Timeout bounds one paper analysis call (default: 5m)
	Timeout time.Duration `env:"ANALYSIS_TIMEOUT" default:"5m"`

	// TableTimeout bounds one table extraction call (default: 2m)
	TableTimeout time.Duration `env:"ANALYSIS_TABLE_TIMEOUT" default:"2m"`

	// RetryAttempts is the number of extraction attempts per table (default: 3)
	RetryAttempts int `env:"ANALYSIS_RETRY_ATTEMPTS" default:"3"`

	// RetryInitial is the wait after the first failed attempt (default: 1s)
	RetryInitial time.Duration `env:"ANALYSIS_RETRY_INITIAL" default:"1s"`

	// RetryMax caps any single retry wait (default: 5s)
	RetryMax time.Duration `env:"ANALYSIS_RETRY_MAX" default:"5s"`
}

// PipelineConfig holds stage execution settings.
type PipelineConfig struct {
	// MaxConcurrent is the maximum number of stages running at once (default: 4)
	MaxConcurrent int `env:"PIPELINE_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a stage waits for a slot before rejection (default: 30s)
	MaxWait time.Duration `env:"PIPELINE_MAX_WAIT" default:"30s"`

	// StagingTTL is the age after which orphaned staging artifacts are swept (default: 24h)
	StagingTTL time.Duration `env:"PIPELINE_STAGING_TTL" default:"24h"`

	// SweepSchedule is the cron spec of the staging sweep (default: @every 15m)
	SweepSchedule string `env:"PIPELINE_STAGING_SWEEP" default:"@every 15m"`

	// StuckAfter is the age after which an in-progress session is failed (default: 30m)
	StuckAfter time.Duration `env:"PIPELINE_STUCK_AFTER" default:"30m"`

	// MaxPDFBytes is the largest accepted upload (default: 50MB)
	MaxPDFBytes int64 `env:"PIPELINE_MAX_PDF_BYTES" default:"52428800"`

	// ExtractParallelism is the number of tables extracted at once in a batch (default: 3)
	ExtractParallelism int `env:"PIPELINE_EXTRACT_PARALLELISM" default:"3"`

	// MaxPages bounds PDF text extraction; 0 reads every page (default: 0)
	MaxPages int `env:"PIPELINE_MAX_PAGES" default:"0"`
}

// RegistryConfig holds field mapping registry settings.
type RegistryConfig struct {
	// OverridesPath is an optional YAML file of alias and field overrides
	OverridesPath string `env:"REGISTRY_OVERRIDES"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// StageLimit is requests per minute for upload and stage endpoints (default: 20)
	StageLimit int `env:"RATE_LIMIT_STAGE" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts the metrics endpoint (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// ServiceConfig returns the pipeline tuning passed to core.NewService.
func (c *Config) ServiceConfig() core.ServiceConfig {
	retry := core.DefaultRetryPolicy
	retry.Attempts = c.Analysis.RetryAttempts
	retry.Initial = c.Analysis.RetryInitial
	retry.Max = c.Analysis.RetryMax

	return core.ServiceConfig{
		AnalysisTimeout:    c.Analysis.Timeout,
		TableTimeout:       c.Analysis.TableTimeout,
		MaxPDFBytes:        c.Pipeline.MaxPDFBytes,
		ExtractParallelism: c.Pipeline.ExtractParallelism,
		Retry:              retry,
		StagingTTL:         c.Pipeline.StagingTTL,
		StuckAfter:         c.Pipeline.StuckAfter,
	}
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}

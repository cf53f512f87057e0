package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an explicit variable lookup.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct recursively populates struct fields from the environment.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := strings.TrimSpace(getenv(envName))
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = strings.TrimSpace(getenv(alt))
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		add("SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Database
	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		if c.Database.URL == "" {
			add("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
		if c.Database.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			add("DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	case "memory":
	default:
		add("STORE_DRIVER (%q) must be one of: postgres, memory", c.Database.Driver)
	}

	// Storage
	switch strings.ToLower(c.Storage.Driver) {
	case "s3":
		if c.Storage.Bucket == "" {
			add("S3_BUCKET is required when STORAGE_DRIVER is s3")
		}
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			add("S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
		if c.Storage.Endpoint != "" {
			if u, err := url.Parse(c.Storage.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				add("S3_ENDPOINT (%q) must be an absolute URL", c.Storage.Endpoint)
			}
		}
	case "local":
		if c.Storage.LocalDir == "" {
			add("STORAGE_LOCAL_DIR is required when STORAGE_DRIVER is local")
		}
	default:
		add("STORAGE_DRIVER (%q) must be one of: s3, local", c.Storage.Driver)
	}

	// Analysis
	if u, err := url.Parse(c.Analysis.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("ANALYSIS_URL (%q) must be an absolute URL", c.Analysis.URL)
	}
	if c.Analysis.Timeout <= 0 {
		add("ANALYSIS_TIMEOUT must be positive")
	}
	if c.Analysis.TableTimeout <= 0 {
		add("ANALYSIS_TABLE_TIMEOUT must be positive")
	}
	if c.Analysis.RetryAttempts <= 0 {
		add("ANALYSIS_RETRY_ATTEMPTS must be positive")
	}
	if c.Analysis.RetryInitial < 0 || c.Analysis.RetryMax < c.Analysis.RetryInitial {
		add("ANALYSIS_RETRY_MAX (%s) must be >= ANALYSIS_RETRY_INITIAL (%s)", c.Analysis.RetryMax, c.Analysis.RetryInitial)
	}

	// Pipeline
	if c.Pipeline.MaxConcurrent <= 0 {
		add("PIPELINE_MAX_CONCURRENT must be positive")
	}
	if c.Pipeline.MaxWait <= 0 {
		add("PIPELINE_MAX_WAIT must be positive")
	}
	if c.Pipeline.StagingTTL <= 0 {
		add("PIPELINE_STAGING_TTL must be positive")
	}
	if c.Pipeline.StuckAfter <= 0 {
		add("PIPELINE_STUCK_AFTER must be positive")
	}
	if _, err := cron.ParseStandard(c.Pipeline.SweepSchedule); err != nil {
		add("PIPELINE_STAGING_SWEEP (%q) is not a valid schedule: %v", c.Pipeline.SweepSchedule, err)
	}
	if c.Pipeline.MaxPDFBytes <= 0 {
		add("PIPELINE_MAX_PDF_BYTES must be positive")
	}
	if c.Pipeline.ExtractParallelism <= 0 {
		add("PIPELINE_EXTRACT_PARALLELISM must be positive")
	}
	if c.Pipeline.MaxPages < 0 {
		add("PIPELINE_MAX_PAGES must be non-negative")
	}

	// Rate limits
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.StageLimit <= 0 {
		add("RATE_LIMIT_STAGE must be positive when rate limiting is enabled")
	}

	// Security
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		add("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("METRICS_PATH (%q) must start with /", c.Metrics.Path)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings and credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: %s, MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Storage: {Driver: %q, Bucket: %q, Endpoint: %q, AccessKey: %s, SecretKey: %s, LocalDir: %q}, ",
		c.Storage.Driver, c.Storage.Bucket, c.Storage.Endpoint,
		mask(c.Storage.AccessKey), mask(c.Storage.SecretKey), c.Storage.LocalDir)
	fmt.Fprintf(&b, "Analysis: {URL: %q, APIKey: %s, Model: %q, Timeout: %s, RetryAttempts: %d}, ",
		c.Analysis.URL, mask(c.Analysis.APIKey), c.Analysis.Model, c.Analysis.Timeout, c.Analysis.RetryAttempts)
	fmt.Fprintf(&b, "Pipeline: {MaxConcurrent: %d, MaxWait: %s, StagingTTL: %s, SweepSchedule: %q}, ",
		c.Pipeline.MaxConcurrent, c.Pipeline.MaxWait, c.Pipeline.StagingTTL, c.Pipeline.SweepSchedule)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}

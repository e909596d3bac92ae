// Package config loads process configuration from the environment.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-tunable knob of the service. Zero value of
// an unset field falls back to its `default` tag.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL" default:"redis://127.0.0.1:6379/0"`

	ConvexURLDev  string `env:"CONVEX_URL_DEV"`
	ConvexURLProd string `env:"CONVEX_URL_PROD"`

	MonitoringSharedSecret string `env:"MONITORING_SHARED_SECRET"`
	MonitoringAPISecret    string `env:"MONITORING_API_SECRET"`

	Port string `env:"PORT" default:"3001"`

	SchedulerIntervalMs int64 `env:"SCHEDULER_INTERVAL_MS" default:"10000"`
	SchedulerBatchSize  int64 `env:"SCHEDULER_BATCH_SIZE" default:"500"`
	LockDurationMs      int64 `env:"LOCK_DURATION_MS" default:"30000"`

	WorkerConcurrency int64 `env:"WORKER_CONCURRENCY" default:"10"`

	CheckTimeoutMs      int64 `env:"CHECK_TIMEOUT_MS" default:"10000"`
	DegradedThresholdMs int64 `env:"DEGRADED_THRESHOLD_MS" default:"3000"`

	QueueRateLimitMax        int64 `env:"QUEUE_RATE_LIMIT_MAX" default:"100"`
	QueueRateLimitDurationMs int64 `env:"QUEUE_RATE_LIMIT_DURATION" default:"1000"`

	LogLevel string `env:"LOG_LEVEL" default:"info"`
	Mode     string `env:"MODE" default:"dev"`
	SentryDSN string `env:"SENTRY_DSN"`

	RunAPI       bool `env:"RUN_API" default:"true"`
	RunScheduler bool `env:"RUN_SCHEDULER" default:"true"`
	RunWorker    bool `env:"RUN_WORKER" default:"true"`

	// DBType selects the bun dialect: postgres, mysql, or sqlite. Derived from
	// DATABASE_URL's scheme when empty (see dbTypeFromURL).
	DBType string `env:"DB_TYPE"`
}

// SchedulerInterval returns the tick period as a time.Duration.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalMs) * time.Millisecond
}

// LockDuration returns the scheduler lease horizon as a time.Duration.
func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMs) * time.Millisecond
}

// CheckTimeout returns the probe deadline as a time.Duration.
func (c *Config) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutMs) * time.Millisecond
}

// QueueRateLimitDuration returns the dispatch rate-limit window.
func (c *Config) QueueRateLimitDuration() time.Duration {
	return time.Duration(c.QueueRateLimitDurationMs) * time.Millisecond
}

// Load reads configuration from an optional `.env` file in dir (if present)
// and then overrides with process environment variables, which always win.
// Fields without a provided value fall back to their `default` tag.
func Load(dir string) (Config, error) {
	var cfg Config
	applyDefaults(&cfg)

	fileVars := map[string]string{}
	if dir != "" {
		if err := loadEnvFile(dir+"/.env", fileVars); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read .env: %w", err)
		}
	}
	setFieldsFromMap(&cfg, fileVars)

	envVars := map[string]string{}
	t := reflect.TypeOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		if v, ok := os.LookupEnv(key); ok {
			envVars[key] = v
		}
	}
	setFieldsFromMap(&cfg, envVars)

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DBType == "" {
		cfg.DBType = dbTypeFromURL(cfg.DatabaseURL)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	t := reflect.TypeOf(*cfg)
	v := reflect.ValueOf(cfg).Elem()
	for i := 0; i < t.NumField(); i++ {
		def := t.Field(i).Tag.Get("default")
		if def == "" {
			continue
		}
		setField(v.Field(i), t.Field(i), def)
	}
}

func loadEnvFile(path string, into map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		into[key] = value
	}
	return scanner.Err()
}

func setFieldsFromMap(cfg *Config, values map[string]string) {
	t := reflect.TypeOf(*cfg)
	v := reflect.ValueOf(cfg).Elem()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envKey := field.Tag.Get("env")
		if envKey == "" {
			continue
		}
		value, ok := values[envKey]
		if !ok || value == "" {
			continue
		}
		setField(v.Field(i), field, value)
	}
}

func setField(fieldValue reflect.Value, field reflect.StructField, value string) {
	if !fieldValue.CanSet() {
		return
	}
	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			fmt.Printf("config: skipping %s=%q: %v\n", field.Tag.Get("env"), value, err)
			return
		}
		fieldValue.SetInt(n)
	case reflect.Bool:
		fieldValue.SetBool(value == "true" || value == "1")
	}
}

func dbTypeFromURL(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(url, "mysql://"):
		return "mysql"
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return "sqlite"
	default:
		return "postgres"
	}
}

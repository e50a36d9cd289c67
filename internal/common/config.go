package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that decodes from TOML strings like
// "500ms" or "2m". go-toml only text-unmarshals into types implementing
// encoding.TextUnmarshaler, so plain time.Duration fields reject the
// string form the config files use.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment" validate:"omitempty,oneof=development production"`
	Server      ServerConfig     `toml:"server"`
	Auth        AuthConfig       `toml:"auth"`
	Aggregate   AggregateConfig  `toml:"aggregate"`
	Locks       LocksConfig      `toml:"locks"`
	Jobs        JobsConfig       `toml:"jobs"`
	Dispatch    DispatchConfig   `toml:"dispatch"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Automation  AutomationConfig `toml:"automation"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

// AuthConfig holds the bearer token the worker API requires on job and
// lock endpoints. Health and metrics stay open for probes/scrapers.
type AuthConfig struct {
	BearerToken string `toml:"bearer_token"`
}

// AggregateConfig configures the UI aggregate service client
type AggregateConfig struct {
	BaseURL      string   `toml:"base_url" validate:"omitempty,url"`
	BearerToken  string   `toml:"bearer_token"`
	MaxAttempts  int      `toml:"max_attempts" validate:"gte=1,lte=10"`
	RetryWaitMin Duration `toml:"retry_wait_min"`
	RetryWaitMax Duration `toml:"retry_wait_max"`
	Timeout      Duration `toml:"timeout"`
}

// LocksConfig configures the distributed lock manager
type LocksConfig struct {
	TTL           Duration `toml:"ttl"`            // lock lifetime without refresh
	SweepSchedule string   `toml:"sweep_schedule"` // cron spec for expired-lock purge
}

// JobsConfig configures job execution defaults and retention
type JobsConfig struct {
	DefaultConcurrency int      `toml:"default_concurrency" validate:"gte=1,lte=64"`
	EntityTimeout      Duration `toml:"entity_timeout"`     // per-entity execution bound
	Retention          Duration `toml:"retention"`          // terminal job eviction window
	RetentionSchedule  string   `toml:"retention_schedule"` // cron spec for retention GC
}

// DispatchConfig configures coordinator-side fan-out across the worker pool
type DispatchConfig struct {
	Workers             []string `toml:"workers"`              // worker base URLs, order fixes batch_index
	BearerToken         string   `toml:"bearer_token"`         // token presented to workers
	DispatchConcurrency int      `toml:"dispatch_concurrency" validate:"gte=1,lte=32"`
	RequestsPerSecond   float64  `toml:"requests_per_second"` // outbound pacing, 0 = unlimited
	Timeout             Duration `toml:"timeout"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
	InMemory       bool   `toml:"in_memory"` // tests and throwaway runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output     []string `toml:"output"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

// AutomationConfig selects the automation engine implementation
type AutomationConfig struct {
	Engine     string   `toml:"engine" validate:"omitempty,oneof=chromedp scripted"`
	Headless   bool     `toml:"headless"`
	NavTimeout Duration `toml:"nav_timeout"`
}

// DefaultConfig returns the baseline configuration before file/env/flag overrides
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8385,
			Host: "localhost",
		},
		Aggregate: AggregateConfig{
			MaxAttempts:  4,
			RetryWaitMin: Duration(500 * time.Millisecond),
			RetryWaitMax: Duration(8 * time.Second),
			Timeout:      Duration(30 * time.Second),
		},
		Locks: LocksConfig{
			TTL:           Duration(2 * time.Minute),
			SweepSchedule: "@every 1m",
		},
		Jobs: JobsConfig{
			DefaultConcurrency: 2,
			EntityTimeout:      Duration(10 * time.Minute),
			Retention:          Duration(72 * time.Hour),
			RetentionSchedule:  "@every 1h",
		},
		Dispatch: DispatchConfig{
			DispatchConcurrency: 4,
			Timeout:             Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/drover",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Automation: AutomationConfig{
			Engine:     "scripted",
			Headless:   true,
			NavTimeout: Duration(45 * time.Second),
		},
	}
}

// LoadFromFiles loads configuration in layers: defaults, then each file
// in order (later files override earlier ones), then environment
// variables. Missing files are an error; an empty path list is fine.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("DROVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DROVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if token := os.Getenv("DROVER_AUTH_TOKEN"); token != "" {
		config.Auth.BearerToken = token
	}
	if url := os.Getenv("DROVER_AGGREGATE_URL"); url != "" {
		config.Aggregate.BaseURL = url
	}
	if token := os.Getenv("DROVER_AGGREGATE_TOKEN"); token != "" {
		config.Aggregate.BearerToken = token
	}
	if level := os.Getenv("DROVER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("DROVER_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration against struct constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

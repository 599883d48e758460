// Package config loads sampleflowd settings from a YAML file with
// SAMPLEFLOW_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SAMPLEFLOW_"

type Config struct {
	Backend  BackendConfig  `yaml:"backend" envPrefix:"BACKEND_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Blob     BlobConfig     `yaml:"blob" envPrefix:"BLOB_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
	Workflow WorkflowConfig `yaml:"workflow" envPrefix:"WORKFLOW_"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" env:"DRIVER"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver" env:"DRIVER"`
	FSRoot string   `yaml:"fs_root" env:"FS_ROOT"`
	S3     S3Config `yaml:"s3" envPrefix:"S3_"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Region    string `yaml:"region" env:"REGION"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	PathStyle bool   `yaml:"path_style" env:"PATH_STYLE"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	// Mode is "prod" for JSON output; anything else selects the development encoder.
	Mode string `yaml:"mode" env:"MODE"`
}

type MetricsConfig struct {
	// Driver is "prometheus" (served on /metrics) or "expvar" (served on /debug/vars).
	Driver string `yaml:"driver" env:"DRIVER"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// JSONPath, when set, appends one JSON line per dispatcher operation.
	JSONPath string `yaml:"json_path" env:"JSON_PATH"`
}

type WorkflowConfig struct {
	DefaultMethods []string `yaml:"default_methods" env:"DEFAULT_METHODS" envSeparator:","`
	UndoCapacity   int      `yaml:"undo_capacity" env:"UNDO_CAPACITY"`
	NoticeCapacity int      `yaml:"notice_capacity" env:"NOTICE_CAPACITY"`
}

func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "sampleflow.db",
			RedisAddr:  "localhost:6379",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./exports-data",
			S3:     S3Config{Region: "us-east-1"},
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log:     LogConfig{Mode: "dev"},
		Metrics: MetricsConfig{Driver: "prometheus"},
		Workflow: WorkflowConfig{
			DefaultMethods: []string{"SARA", "IR", "GC-MS"},
			UndoCapacity:   20,
			NoticeCapacity: 50,
		},
	}
}

// Load reads path (a missing file yields the defaults), applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and non-positive capacities and timeouts.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Blob.Driver) {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket: required when blob.driver is s3")
		}
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Metrics.Driver) {
	case "prometheus", "expvar":
	default:
		return fmt.Errorf("metrics.driver: unknown driver %q", c.Metrics.Driver)
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("http.read_header_timeout: must be positive")
	}
	if c.Workflow.UndoCapacity <= 0 {
		return fmt.Errorf("workflow.undo_capacity: must be positive")
	}
	if c.Workflow.NoticeCapacity <= 0 {
		return fmt.Errorf("workflow.notice_capacity: must be positive")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout: must be positive")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

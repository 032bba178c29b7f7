// Package config provides a way to configure the application.
package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageTrain     Stage = "train"
	StageLoad      Stage = "load"
)

type Config struct {
	// Configuration of interaction between the extractor and the dataset API
	API APIConfig `yaml:"api"       env:", prefix=API_"`
	// Settings of one extraction run: batching, output locations
	Run RunConfig `yaml:"run"`
	// Settings related to the persistence writer
	Output OutputConfig `yaml:"output"    env:", prefix=OUTPUT_"`
	// Settings of the cleaning stage
	Transform TransformConfig `yaml:"transform" env:", prefix=TRANSFORM_"`
	// Optional warehouse loader for the cleaned dataset
	Warehouse WarehouseConfig `yaml:"warehouse" env:", prefix=WAREHOUSE_"`
	// Prometheus exposition
	Metrics MetricsConfig `yaml:"metrics"   env:", prefix=METRICS_"`
	// Logger configuration
	Log LogConfig `yaml:"log"       env:", prefix=LOG_"`
}

type APIConfig struct {
	RequestURL string `yaml:"request_url" env:"URL"`
	// Stable ordering key, keeps pagination deterministic across retries
	OrderKey string        `yaml:"order_key"   env:"ORDER_KEY"`
	Timeout  time.Duration `yaml:"timeout"     env:"TIMEOUT"`
	// Retries
	RetryAttempts int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"  env:"RETRY_BACKOFF"`

	// Circuit breaker can be configured to stop hammering the API after
	// a burst of failures.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" env:", prefix=CB_"`
}

type CircuitBreakerConfig struct {
	Enabled             bool          `yaml:"enabled"              env:"ENABLE"`
	MaxRequests         uint32        `yaml:"max_requests"         env:"MAX_REQUESTS"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" env:"CONSECUTIVE_FAILURES"`
	Interval            time.Duration `yaml:"interval"             env:"INTERVAL"`
	Timeout             time.Duration `yaml:"timeout"              env:"TIMEOUT"`
}

type RunConfig struct {
	BatchSize int    `yaml:"batch_size" env:"BATCH_SIZE"`
	RawDir    string `yaml:"raw_dir"    env:"RAW_DIR"`
	EnableTUI bool   `yaml:"enable_tui" env:"ENABLE_TUI"`
}

type OutputConfig struct {
	DatasetName    string `yaml:"dataset_name"    env:"DATASET_NAME"`
	ParquetEnabled bool   `yaml:"parquet_enabled" env:"PARQUET_ENABLED"`
}

type TransformConfig struct {
	// Explicit raw file path; when empty the most recent raw artifact
	// in run.raw_dir is used.
	InputPath    string `yaml:"input_path"    env:"INPUT_PATH"`
	ProcessedDir string `yaml:"processed_dir" env:"PROCESSED_DIR"`
}

type DatabaseCredentials struct {
	Username string `yaml:"username" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type WarehouseConfig struct {
	Enabled     bool   `yaml:"enabled"  env:"ENABLE"`
	Host        string `yaml:"host"     env:"HOST"`
	Port        string `yaml:"port"     env:"PORT"`
	Database    string `yaml:"database" env:"DB"`
	Table       string `yaml:"table"    env:"TABLE"`
	Credentials DatabaseCredentials `yaml:"credentials"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLE"`
	Port    string `yaml:"port"    env:"PORT"`
}

type LogConfig struct {
	Level    zapcore.Level `yaml:"level"    env:"LEVEL"`
	Encoding string        `yaml:"encoding" env:"ENCODING"`
}

const (
	DefaultRequestURL = "https://data.cdc.gov/resource/swc5-untb.csv"
	DefaultOrderKey   = ":id"
	DefaultBatchSize  = 1000
	DefaultRetries    = 3
	DefaultTimeout    = 30 * time.Second
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	_ = godotenv.Load() // load the user-defined `.env` file
}

func Load() (*Config, error) {
	flag.Parse()
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg *Config
	var err error
	if configPath == "" {
		// Environment variables and defaults only
		cfg = &Config{}
	} else {
		cfg, err = LoadFromYAML(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading configuration from %s: %w", configPath, err)
		}
	}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("processing environment overrides: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.API.RequestURL == "" {
		c.API.RequestURL = DefaultRequestURL
	}
	if c.API.OrderKey == "" {
		c.API.OrderKey = DefaultOrderKey
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = DefaultRetries
	}
	if c.Run.BatchSize == 0 {
		c.Run.BatchSize = DefaultBatchSize
	}
	if c.Run.RawDir == "" {
		c.Run.RawDir = "data/raw"
	}
	if c.Output.DatasetName == "" {
		c.Output.DatasetName = "cdc_data"
	}
	if c.Transform.ProcessedDir == "" {
		c.Transform.ProcessedDir = "data/processed"
	}
	if c.Warehouse.Table == "" {
		c.Warehouse.Table = "places_cleaned"
	}
	if c.Metrics.Port == "" {
		c.Metrics.Port = "8000"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.API.RequestURL == "" {
		errs = append(errs, errors.New("api.request_url must be set"))
	}
	if c.Run.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("run.batch_size must be positive, got %d", c.Run.BatchSize))
	}
	if c.API.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("api.retry_attempts must be positive, got %d", c.API.RetryAttempts))
	}
	if c.Warehouse.Enabled && c.Warehouse.Host == "" {
		errs = append(errs, errors.New("warehouse.host must be set when the warehouse loader is enabled"))
	}
	return errors.Join(errs...)
}

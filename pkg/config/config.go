// Package config defines the extractor configuration and loads it from
// YAML, TOML or JSON files.
package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Defaults applied by Load for fields left empty.
const (
	DefaultPageSize       = 1000
	DefaultMaxAttempts    = 5
	DefaultPacingInterval = "2s"
	DefaultRequestTimeout = "300s"
	DefaultDataDir        = "data"
	DefaultScope          = "https://www.googleapis.com/auth/analytics.readonly"
)

var (
	// ErrUnknownFieldSet is returned when a metric or dimension set name has
	// no entry in the fields table.
	ErrUnknownFieldSet = errors.New("unknown field set")

	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the complete extractor configuration.
type Config struct {
	ViewID  string   `yaml:"view_id" toml:"view_id" json:"view_id"`
	KeyFile string   `yaml:"key_file" toml:"key_file" json:"key_file"`
	Scopes  []string `yaml:"scopes" toml:"scopes" json:"scopes"`

	PageSize       int    `yaml:"page_size" toml:"page_size" json:"page_size"`
	MaxAttempts    int    `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	RequestTimeout string `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
	DataDir        string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`

	BigQuery BigQueryConfig `yaml:"bigquery" toml:"bigquery" json:"bigquery"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage" json:"storage"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis" json:"redis"`
	Pacing   PacingConfig   `yaml:"pacing" toml:"pacing" json:"pacing"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" json:"logging"`

	// Fields maps a set name to API field names, e.g. "traffic" -> ["ga:sessions", "ga:users"].
	Fields map[string][]string `yaml:"fields" toml:"fields" json:"fields"`
}

// BigQueryConfig names the warehouse table the artifact is destined for.
// The values travel as object metadata; loading is done downstream.
type BigQueryConfig struct {
	Project string `yaml:"project" toml:"project" json:"project"`
	Dataset string `yaml:"dataset" toml:"dataset" json:"dataset"`
	Table   string `yaml:"table" toml:"table" json:"table"`
}

// StorageConfig configures artifact uploads.
type StorageConfig struct {
	Bucket   string `yaml:"bucket" toml:"bucket" json:"bucket"`
	Region   string `yaml:"region" toml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Compress bool   `yaml:"compress" toml:"compress" json:"compress"`
}

// RedisConfig enables the redis chunk registry and shared pacing when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" json:"addr"`
	Password string `yaml:"password" toml:"password" json:"password"`
	DB       int    `yaml:"db" toml:"db" json:"db"`
}

// PacingConfig controls the delay between page requests.
type PacingConfig struct {
	Interval string `yaml:"interval" toml:"interval" json:"interval"`

	// Shared coordinates pacing across processes through redis.
	Shared bool `yaml:"shared" toml:"shared" json:"shared"`
}

// MetricsConfig configures the Pushgateway.
type MetricsConfig struct {
	PushURL string `yaml:"push_url" toml:"push_url" json:"push_url"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty" json:"pretty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{DefaultScope}
	}
	if c.Pacing.Interval == "" {
		c.Pacing.Interval = DefaultPacingInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// PacingInterval returns the parsed pacing interval.
func (c *Config) PacingInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Pacing.Interval)
	if err != nil {
		return 0, fmt.Errorf("pacing.interval: %w", err)
	}
	return d, nil
}

// Timeout returns the parsed per-request timeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("request_timeout: %w", err)
	}
	return d, nil
}

// Validate checks that the fields required for a run are present and well formed.
func (c *Config) Validate() error {
	var errs []error
	if c.ViewID == "" {
		errs = append(errs, errors.New("view_id is required"))
	}
	if c.KeyFile == "" {
		errs = append(errs, errors.New("key_file is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts))
	}
	if d, err := c.PacingInterval(); err != nil {
		errs = append(errs, err)
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("pacing.interval must be positive, got %s", d))
	}
	if d, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", d))
	}
	if c.Pacing.Shared && c.Redis.Addr == "" {
		errs = append(errs, errors.New("pacing.shared requires redis.addr"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ResolveFields returns the API field names registered under name.
func (c *Config) ResolveFields(name string) ([]string, error) {
	fields, ok := c.Fields[name]
	if !ok || len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownFieldSet, name, c.fieldSetNames())
	}
	return fields, nil
}

func (c *Config) fieldSetNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObjectMetadata returns the metadata attached to uploaded artifacts.
func (c *Config) ObjectMetadata() map[string]string {
	meta := map[string]string{}
	if c.BigQuery.Project != "" {
		meta["bigquery-project"] = c.BigQuery.Project
	}
	if c.BigQuery.Dataset != "" {
		meta["bigquery-dataset"] = c.BigQuery.Dataset
	}
	if c.BigQuery.Table != "" {
		meta["bigquery-table"] = c.BigQuery.Table
	}
	return meta
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

const yamlConfig = `
view_id: "12345"
key_file: /secrets/key.json
bigquery:
  project: analytics
  dataset: ga
  table: sessions
storage:
  bucket: ${TEST_GA_BUCKET}
  compress: true
pacing:
  interval: 500ms
fields:
  traffic: ["ga:sessions", "ga:users"]
  source: ["ga:source", "ga:medium"]
`

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_GA_BUCKET", "ga-exports")
	t.Setenv(EnvViewID, "")

	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ViewID != "12345" {
		t.Errorf("Expected view_id 12345, got %s", cfg.ViewID)
	}
	if cfg.Storage.Bucket != "ga-exports" {
		t.Errorf("Expected bucket from env substitution, got %q", cfg.Storage.Bucket)
	}
	if !cfg.Storage.Compress {
		t.Error("Expected compress to be true")
	}
	if cfg.BigQuery.Table != "sessions" {
		t.Errorf("Expected bigquery table sessions, got %s", cfg.BigQuery.Table)
	}

	interval, err := cfg.PacingInterval()
	if err != nil || interval != 500*time.Millisecond {
		t.Errorf("PacingInterval() = %v, %v; want 500ms", interval, err)
	}

	fields, err := cfg.ResolveFields("traffic")
	if err != nil {
		t.Fatalf("ResolveFields failed: %v", err)
	}
	if !reflect.DeepEqual(fields, []string{"ga:sessions", "ga:users"}) {
		t.Errorf("Unexpected fields %v", fields)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvViewID, "")

	cfg, err := Load(writeFile(t, t.TempDir(), "config.yml", "view_id: v\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PageSize != DefaultPageSize {
		t.Errorf("Expected page size %d, got %d", DefaultPageSize, cfg.PageSize)
	}
	if cfg.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Expected max attempts %d, got %d", DefaultMaxAttempts, cfg.MaxAttempts)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("Expected data dir %q, got %q", DefaultDataDir, cfg.DataDir)
	}
	if !reflect.DeepEqual(cfg.Scopes, []string{DefaultScope}) {
		t.Errorf("Expected default scope, got %v", cfg.Scopes)
	}

	interval, _ := cfg.PacingInterval()
	if interval != 2*time.Second {
		t.Errorf("Expected 2s pacing, got %v", interval)
	}
	timeout, _ := cfg.Timeout()
	if timeout != 300*time.Second {
		t.Errorf("Expected 300s timeout, got %v", timeout)
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv(EnvViewID, "")
	content := `
view_id = "toml-view"
key_file = "key.json"
data_dir = "/var/lib/ga"

[storage]
bucket = "toml-bucket"
region = "eu-central-1"

[redis]
addr = "localhost:6379"
db = 2
`
	cfg, err := Load(writeFile(t, t.TempDir(), "config.toml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ViewID != "toml-view" || cfg.DataDir != "/var/lib/ga" {
		t.Errorf("Unexpected values: view_id=%s data_dir=%s", cfg.ViewID, cfg.DataDir)
	}
	if cfg.Storage.Region != "eu-central-1" {
		t.Errorf("Expected region eu-central-1, got %s", cfg.Storage.Region)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Unexpected redis config %+v", cfg.Redis)
	}
}

func TestLoad_JSON(t *testing.T) {
	t.Setenv(EnvViewID, "")
	content := `{"view_id": "json-view", "metrics": {"push_url": "http://pushgateway:9091"}}`

	cfg, err := Load(writeFile(t, t.TempDir(), "config.json", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ViewID != "json-view" {
		t.Errorf("Expected json-view, got %s", cfg.ViewID)
	}
	if cfg.Metrics.PushURL != "http://pushgateway:9091" {
		t.Errorf("Unexpected push url %q", cfg.Metrics.PushURL)
	}
}

func TestLoad_ViewIDOverride(t *testing.T) {
	t.Setenv(EnvViewID, "from-env")

	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", "view_id: from-file\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ViewID != "from-env" {
		t.Errorf("Expected VIEW_ID to override the file, got %s", cfg.ViewID)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv(EnvViewID, "")
	t.Cleanup(func() { os.Unsetenv("TEST_GA_DOTENV_BUCKET") })

	dir := t.TempDir()
	writeFile(t, dir, ".env", "TEST_GA_DOTENV_BUCKET=dotenv-bucket\n")
	path := writeFile(t, dir, "config.yaml", "storage:\n  bucket: ${TEST_GA_DOTENV_BUCKET}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Bucket != "dotenv-bucket" {
		t.Errorf("Expected bucket from .env, got %q", cfg.Storage.Bucket)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml")},
		{"unsupported extension", writeFile(t, dir, "config.ini", "view_id=x")},
		{"invalid yaml", writeFile(t, dir, "bad.yaml", "view_id: [unclosed")},
		{"invalid json", writeFile(t, dir, "bad.json", "{")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Setenv(EnvViewID, "env-only")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ViewID != "env-only" || cfg.PageSize != DefaultPageSize {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.ViewID = "v"
		cfg.KeyFile = "key.json"
		cfg.Storage.Bucket = "b"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing view id", func(c *Config) { c.ViewID = "" }, "view_id"},
		{"missing key file", func(c *Config) { c.KeyFile = "" }, "key_file"},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"bad interval", func(c *Config) { c.Pacing.Interval = "soon" }, "pacing.interval"},
		{"bad timeout", func(c *Config) { c.RequestTimeout = "5" }, "request_timeout"},
		{"zero interval", func(c *Config) { c.Pacing.Interval = "0s" }, "pacing.interval must be positive"},
		{"negative interval with shared pacing", func(c *Config) {
			c.Pacing.Interval = "-1s"
			c.Pacing.Shared = true
			c.Redis.Addr = "localhost:6379"
		}, "pacing.interval must be positive"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = "0s" }, "request_timeout must be positive"},
		{"shared pacing without redis", func(c *Config) { c.Pacing.Shared = true }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolveFields_Unknown(t *testing.T) {
	cfg := Default()
	cfg.Fields = map[string][]string{"traffic": {"ga:sessions"}}

	_, err := cfg.ResolveFields("revenue")
	if !errors.Is(err, ErrUnknownFieldSet) {
		t.Errorf("Expected ErrUnknownFieldSet, got %v", err)
	}
}

func TestObjectMetadata(t *testing.T) {
	cfg := Default()
	cfg.BigQuery = BigQueryConfig{Project: "p", Dataset: "d", Table: "t"}

	want := map[string]string{"bigquery-project": "p", "bigquery-dataset": "d", "bigquery-table": "t"}
	if got := cfg.ObjectMetadata(); !reflect.DeepEqual(got, want) {
		t.Errorf("ObjectMetadata() = %v, want %v", got, want)
	}
}

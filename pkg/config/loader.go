package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// EnvViewID overrides view_id from the config file.
const EnvViewID = "VIEW_ID"

// Load reads the configuration file at path. A .env file next to it is loaded
// first when present, ${VAR} references are expanded from the environment and
// VIEW_ID overrides view_id. The format is chosen by extension. An empty path
// yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := []byte(os.ExpandEnv(string(data)))

		if err := unmarshal(filepath.Ext(path), expanded, &cfg); err != nil {
			return nil, err
		}
	}

	if viewID := os.Getenv(EnvViewID); viewID != "" {
		cfg.ViewID = viewID
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func unmarshal(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse TOML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %q", ext)
	}
	return nil
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration, read from a YAML file.
type Config struct {
	// APIHost is the backend root, e.g. "https://backend.example.com/api".
	APIHost string `yaml:"api_host"`
	// Database is the SQLite file holding the local state. Defaults to
	// worklog.db next to the config file.
	Database string `yaml:"database"`
	// UserID identifies the acting user.
	UserID int64 `yaml:"user_id"`
	// TimeoutSeconds bounds each backend request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request deadline.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "worklog.yaml"
	}
	return filepath.Join(home, ".worklog", "config.yaml")
}

// LoadConfig reads and validates the configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.APIHost == "" {
		return Config{}, fmt.Errorf("config %s: api_host is required", path)
	}
	if cfg.UserID == 0 {
		return Config{}, fmt.Errorf("config %s: user_id is required", path)
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(filepath.Dir(path), "worklog.db")
	}
	return cfg, nil
}

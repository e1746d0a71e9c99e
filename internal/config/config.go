// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the agent configuration file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/hearth/internal/errors"
)

// Config is the top-level agent configuration.
type Config struct {
	Cloud   CloudConfig   `yaml:"cloud"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`

	FlushInterval time.Duration `yaml:"flush_interval"`
	SyncInterval  time.Duration `yaml:"sync_interval"`
}

// CloudConfig points the agent at the supervision backend.
type CloudConfig struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	DeviceID string `yaml:"device_id"`
}

// APIConfig controls the local status server.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig locates durable state.
type StorageConfig struct {
	StatePath string `yaml:"state_path"`
	RulesPath string `yaml:"rules_path"`
}

// LoggingConfig mirrors logging.Config in file form.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration. Paths are relative to the
// state directory so a bare config file still works.
func Default(stateDir string) *Config {
	return &Config{
		Cloud: CloudConfig{
			BaseURL: "https://hearth.grimm.is",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8420",
		},
		Storage: StorageConfig{
			StatePath: filepath.Join(stateDir, "hearth.db"),
			RulesPath: filepath.Join(stateDir, "rules.json"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		FlushInterval: 30 * time.Second,
		SyncInterval:  15 * time.Minute,
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults apply.
func Load(path, stateDir string) (*Config, error) {
	cfg := Default(stateDir)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.Cloud.BaseURL == "" {
		return errors.New(errors.KindValidation, "cloud.base_url is required")
	}
	if c.FlushInterval <= 0 {
		return errors.New(errors.KindValidation, "flush_interval must be positive")
	}
	if c.SyncInterval <= 0 {
		return errors.New(errors.KindValidation, "sync_interval must be positive")
	}
	return nil
}

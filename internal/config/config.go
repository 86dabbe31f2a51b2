// Package config loads diskctl configuration from flags, environment, and
// an optional config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Builder selects the builder image preset, "centos" or "rhel".
	Builder string `mapstructure:"builder"`

	// PodmanPath is the podman binary to invoke.
	PodmanPath string `mapstructure:"podman-path"`

	// Connection is the engine connection display name, used to resolve
	// the podman machine identifier.
	Connection string `mapstructure:"connection"`

	// HistoryPath is the build history file.
	HistoryPath string `mapstructure:"history-path"`

	// FSMDBPath backs the lifecycle state machine.
	FSMDBPath string `mapstructure:"fsm-db-path"`

	// AWSCredentialsDir overrides the host AWS credentials directory
	// mounted for AMI uploads.
	AWSCredentialsDir string `mapstructure:"aws-credentials-dir"`

	// BuildTimeout bounds one build, zero meaning no limit. Enforced by
	// the caller's context, not by the engine.
	BuildTimeout time.Duration `mapstructure:"build-timeout"`
}

// Load reads configuration from environment, config file, and defaults.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".diskctl")

	viper.SetDefault("builder", "centos")
	viper.SetDefault("podman-path", "podman")
	viper.SetDefault("connection", "Podman Machine")
	viper.SetDefault("history-path", filepath.Join(stateDir, "history.json"))
	viper.SetDefault("fsm-db-path", filepath.Join(stateDir, "fsm.db"))
	viper.SetDefault("aws-credentials-dir", "")
	viper.SetDefault("build-timeout", time.Duration(0))

	// Environment variables (DISKCTL_BUILDER, DISKCTL_PODMAN_PATH, ...)
	viper.SetEnvPrefix("DISKCTL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(stateDir)
	viper.AddConfigPath(".")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Bound flags with empty defaults shadow SetDefault, so path defaults
	// are filled in here.
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = filepath.Join(stateDir, "history.json")
	}
	if cfg.FSMDBPath == "" {
		cfg.FSMDBPath = filepath.Join(stateDir, "fsm.db")
	}

	return &cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Builder != "centos" && c.Builder != "rhel" {
		return fmt.Errorf("builder must be centos or rhel, got %q", c.Builder)
	}
	if c.PodmanPath == "" {
		return fmt.Errorf("podman-path cannot be empty")
	}
	if c.HistoryPath == "" {
		return fmt.Errorf("history-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.BuildTimeout < 0 {
		return fmt.Errorf("build-timeout must be non-negative")
	}
	return nil
}

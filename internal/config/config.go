// Package config handles configuration loading for crew.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for crew.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Session    SessionConfig    `mapstructure:"session"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Selection  SelectionConfig  `mapstructure:"selection"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StorageConfig holds on-disk locations. Empty directories are derived
// from DataDir by Resolve.
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	SessionsDir    string `mapstructure:"sessions_dir"`
	CheckpointsDir string `mapstructure:"checkpoints_dir"`
	DBPath         string `mapstructure:"db_path"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	Retention        time.Duration `mapstructure:"retention"`
}

// CheckpointConfig holds checkpoint trigger and retention settings.
type CheckpointConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MessageThreshold int           `mapstructure:"message_threshold"`
	MaxPerSession    int           `mapstructure:"max_per_session"`
	Retention        time.Duration `mapstructure:"retention"`
	ErrorThreshold   int           `mapstructure:"error_threshold"`
}

// RecoveryConfig holds recovery tuning.
type RecoveryConfig struct {
	KeepMessages     int     `mapstructure:"keep_messages"`
	MaxAgentContexts int     `mapstructure:"max_agent_contexts"`
	Jitter           float64 `mapstructure:"jitter"`
	// PatternsPath is an optional JSON file of extra error patterns.
	PatternsPath string `mapstructure:"patterns_path"`
}

// SelectionConfig holds team selection settings.
type SelectionConfig struct {
	DefaultStrategy string `mapstructure:"default_strategy"`
}

// CatalogConfig points at an optional YAML agent catalog.
type CatalogConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// TelemetryConfig holds metrics export settings.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CREW_SESSION_AUTOSAVE_INTERVAL and so on)
// 2. Project config (.crew.yaml in current directory or parent)
// 3. User config (~/.config/crew/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file. Environment
// variables still override the file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Resolve()
	return cfg, nil
}

// Resolve expands environment references in paths and derives unset
// storage locations from DataDir.
func (c *Config) Resolve() {
	c.Storage.DataDir = expandPath(c.Storage.DataDir)
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = getDataDir()
	}
	c.Storage.SessionsDir = orDefault(expandPath(c.Storage.SessionsDir), filepath.Join(c.Storage.DataDir, "sessions"))
	c.Storage.CheckpointsDir = orDefault(expandPath(c.Storage.CheckpointsDir), filepath.Join(c.Storage.DataDir, "checkpoints"))
	c.Storage.DBPath = orDefault(expandPath(c.Storage.DBPath), filepath.Join(c.Storage.DataDir, "crew.db"))
	c.Catalog.Path = expandPath(c.Catalog.Path)
	c.Recovery.PatternsPath = expandPath(c.Recovery.PatternsPath)
	c.Logging.DebugLog = expandPath(c.Logging.DebugLog)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("storage.data_dir", "")
	v.SetDefault("storage.sessions_dir", "")
	v.SetDefault("storage.checkpoints_dir", "")
	v.SetDefault("storage.db_path", "")

	v.SetDefault("session.autosave_interval", d.Session.AutosaveInterval.String())
	v.SetDefault("session.retention", d.Session.Retention.String())

	v.SetDefault("checkpoint.interval", d.Checkpoint.Interval.String())
	v.SetDefault("checkpoint.message_threshold", d.Checkpoint.MessageThreshold)
	v.SetDefault("checkpoint.max_per_session", d.Checkpoint.MaxPerSession)
	v.SetDefault("checkpoint.retention", d.Checkpoint.Retention.String())
	v.SetDefault("checkpoint.error_threshold", d.Checkpoint.ErrorThreshold)

	v.SetDefault("recovery.keep_messages", d.Recovery.KeepMessages)
	v.SetDefault("recovery.max_agent_contexts", d.Recovery.MaxAgentContexts)
	v.SetDefault("recovery.jitter", d.Recovery.Jitter)
	v.SetDefault("recovery.patterns_path", "")

	v.SetDefault("selection.default_strategy", d.Selection.DefaultStrategy)

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)

	v.SetDefault("telemetry.metrics_addr", d.Telemetry.MetricsAddr)

	v.SetDefault("logging.debug_log", "")
}

// getUserConfigDir returns the XDG config directory for crew.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "crew")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "crew")
	}
	return filepath.Join(home, ".config", "crew")
}

// getDataDir returns the XDG data directory for crew.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "crew")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".crew")
	}
	return filepath.Join(home, ".local", "share", "crew")
}

// findProjectConfig searches for .crew.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".crew.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandPath expands ${VAR} references and a leading ~/.
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Default returns a Config with default values. Storage paths are left
// empty until Resolve.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			AutosaveInterval: 30 * time.Second,
			Retention:        720 * time.Hour,
		},
		Checkpoint: CheckpointConfig{
			Interval:         5 * time.Minute,
			MessageThreshold: 20,
			MaxPerSession:    50,
			Retention:        168 * time.Hour,
			ErrorThreshold:   3,
		},
		Recovery: RecoveryConfig{
			KeepMessages:     10,
			MaxAgentContexts: 3,
			Jitter:           0.2,
		},
		Selection: SelectionConfig{
			DefaultStrategy: "specialized_team",
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9464",
		},
	}
}

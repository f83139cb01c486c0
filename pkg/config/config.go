package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/codec"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel      string        `yaml:"log_level"`
	Timeout       time.Duration `yaml:"timeout" default:"3s"`
	Format        string        `yaml:"format" default:"utf8"`
	RetryInterval time.Duration `yaml:"retry_interval" default:"200ms"`
	SettleDelay   time.Duration `yaml:"settle_delay" default:"200ms"`
	NotifyBuffer  int           `yaml:"notify_buffer" default:"64"`
	LogDir        string        `yaml:"log_dir" default:"."`
	Scan          ScanConfig    `yaml:"scan"`
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	AllowDuplicates bool          `yaml:"allow_duplicates"`
	RestartDelay    time.Duration `yaml:"restart_delay" default:"2s"`
	AllowList       []string      `yaml:"allow_list"`
	BlockList       []string      `yaml:"block_list"`
}

// DefaultPath returns ~/.config/blecon/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "blecon", "config.yaml")
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. Missing fields keep their defaults. When
// optional is set a missing file yields the defaults.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.LogDir = expandTilde(cfg.LogDir)
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Timeout < time.Second || c.Timeout > 59*time.Second {
		return fmt.Errorf("timeout must be between 1s and 59s, got %s", c.Timeout)
	}
	if _, err := codec.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be > 0")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if c.NotifyBuffer <= 0 {
		return fmt.Errorf("notify_buffer must be > 0")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to a logrus level. An empty name is
// panic level, which keeps normal operation silent.
func ParseLevel(name string) (logrus.Level, error) {
	switch strings.ToLower(name) {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.PanicLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

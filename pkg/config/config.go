// Package config holds application configuration loaded from YAML with
// struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Address and Token identify the paired device. Token is empty until
	// the first pairing; the caller owns persisting it.
	Address string `yaml:"address"`
	Token   string `yaml:"token"`

	ScanTimeout time.Duration `yaml:"scan_timeout" default:"30s"`
	// ConnectTimeout of zero means no timeout, matching the driver default.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryCount     int           `yaml:"retry_count" default:"5"`

	Calibration CalibrationConfig `yaml:"calibration"`
}

// CalibrationConfig carries the default actuator tuning.
type CalibrationConfig struct {
	Mode     string        `yaml:"mode" default:"normal"`
	Depth    int           `yaml:"depth" default:"50"`
	Duration time.Duration `yaml:"duration"`
}

// DefaultConfig returns configuration with struct-tag defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured from the config's log level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

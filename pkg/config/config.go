// Package config loads adaboard settings from a YAML file on top of struct-tag defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	OutputFormat   string        `yaml:"output_format" default:"text"` // text, json

	History     HistoryConfig     `yaml:"history"`
	Animation   AnimationConfig   `yaml:"animation"`
	Orientation OrientationConfig `yaml:"orientation"`

	// Services are enabled by stream when no --sensor flag is given.
	Services []string `yaml:"services"`
}

type HistoryConfig struct {
	Capacity int      `yaml:"capacity" default:"1000"`
	Services []string `yaml:"services"`
}

type AnimationConfig struct {
	FPS        int     `yaml:"fps" default:"10"`
	Speed      float64 `yaml:"speed" default:"0.3"`
	Brightness float64 `yaml:"brightness" default:"0.25"`
}

type OrientationConfig struct {
	// KeepRaw disables the flip of motion data on boards mounted upside down.
	KeepRaw bool `yaml:"keep_raw"`
}

// DefaultServices are streamed when neither the flags nor the file choose.
var DefaultServices = []string{"temperature", "light", "accelerometer", "buttons"}

// DefaultConfigPath returns ~/.config/adaboard/config.yaml, or "" without a home directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "adaboard", "config.yaml")
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	defaults.SetDefaults(&cfg.History)
	defaults.SetDefaults(&cfg.Animation)
	cfg.Services = append([]string(nil), DefaultServices...)
	for _, k := range board.DefaultHistoryKinds {
		cfg.History.Services = append(cfg.History.Services, string(k))
	}
	return cfg
}

// Load reads a YAML config file; fields it does not set keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or the default path when path is empty. A missing
// default file is not an error; a missing explicit file is.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	path = DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0")
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("output_format must be \"text\" or \"json\", got %q", c.OutputFormat)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be > 0")
	}
	if c.Animation.FPS <= 0 || c.Animation.FPS > 60 {
		return fmt.Errorf("animation.fps must be in 1..60, got %d", c.Animation.FPS)
	}
	if c.Animation.Speed <= 0 {
		return fmt.Errorf("animation.speed must be > 0")
	}
	if c.Animation.Brightness <= 0 || c.Animation.Brightness > 1 {
		return fmt.Errorf("animation.brightness must be in (0, 1], got %g", c.Animation.Brightness)
	}

	catalog := service.DefaultCatalog()
	for _, name := range c.Services {
		if _, err := catalog.ParseKind(name); err != nil {
			return fmt.Errorf("services: %w", err)
		}
	}
	for _, name := range c.History.Services {
		if _, err := catalog.ParseKind(name); err != nil {
			return fmt.Errorf("history.services: %w", err)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return logrus.ParseLevel(c.LogLevel)
	default:
		return logrus.PanicLevel, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
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

// BoardOptions maps the config onto board.Options.
func (c *Config) BoardOptions() board.Options {
	opts := board.Options{
		HistoryCapacity:     c.History.Capacity,
		KeepRawOrientation:  c.Orientation.KeepRaw,
		AnimationFPS:        c.Animation.FPS,
		AnimationSpeed:      c.Animation.Speed,
		AnimationBrightness: c.Animation.Brightness,
		History:             []service.Kind{},
	}
	for _, name := range c.History.Services {
		opts.History = append(opts.History, service.Kind(name))
	}
	return opts
}

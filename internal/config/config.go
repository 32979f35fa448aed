// Package config loads the qv user configuration stored at ~/.qv/config.yaml
// (or config.json), then applies .env files and QV_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for CLI state.
const DefaultConfigDir = ".qv"

// Config file names within the config directory. JSON wins when both exist.
const (
	DefaultConfigFile = "config.yaml"
	JSONConfigFile    = "config.json"
)

// Environment variables that override file settings.
const (
	EnvTimeout      = "QV_TIMEOUT"
	EnvRetries      = "QV_RETRIES"
	EnvConcurrency  = "QV_CONCURRENCY"
	EnvLogLevel     = "QV_LOG_LEVEL"
	EnvFailExitCode = "QV_FAIL_EXIT_CODE"
	EnvManifest     = "QV_MANIFEST"
)

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Config represents the contents of ~/.qv/config.yaml.
type Config struct {
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	Retries      int      `yaml:"retries" json:"retries"`
	Concurrency  int      `yaml:"concurrency" json:"concurrency"`
	LogLevel     string   `yaml:"log_level" json:"log_level"`
	FailExitCode int      `yaml:"fail_exit_code" json:"fail_exit_code"`
	ShowAll      bool     `yaml:"show_all" json:"show_all"`
	Manifest     string   `yaml:"manifest,omitempty" json:"manifest,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Timeout:      Duration(10 * time.Second),
		Retries:      2,
		Concurrency:  1,
		LogLevel:     "info",
		FailExitCode: 1,
		Manifest:     "qv.yaml",
	}
}

// configDir returns the path to the config directory.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// Load reads ~/.qv/config.json or ~/.qv/config.yaml, loads .env from the
// working directory, and applies QV_* overrides. Missing files are not an
// error.
func Load() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, JSONConfigFile)
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, DefaultConfigFile)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads a config file, choosing the decoder by extension.
// Returns defaults if the file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from QV_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvTimeout); v != "" {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvRetries, &c.Retries},
		{EnvConcurrency, &c.Concurrency},
		{EnvFailExitCode, &c.FailExitCode},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", e.name, v)
		}
		*e.dst = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvManifest); v != "" {
		c.Manifest = v
	}
	return nil
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", time.Duration(c.Timeout))
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.FailExitCode < 1 || c.FailExitCode > 125 {
		return fmt.Errorf("fail_exit_code must be between 1 and 125, got %d", c.FailExitCode)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration { return time.Duration(c.Timeout) }

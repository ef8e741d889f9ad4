// Package config loads the tape-guide-mcp configuration from a YAML file, with
// environment overrides and safe defaults for every value.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/tape-guide-mcp/internal/detection"
)

// Environment variables read by Load and ResolvePath.
const (
	EnvConfigPath = "TAPE_GUIDE_CONFIG"
	EnvLogLevel   = "TAPE_GUIDE_LOG_LEVEL"
)

// DefaultMaxBodyBytes limits HTTP request bodies (32 MiB).
const DefaultMaxBodyBytes = 32 << 20

// Config is the full runtime configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Backend selects the detector implementation: "native" or "opencv".
	Backend   string           `yaml:"backend"`
	Detection detection.Config `yaml:"detection"`
	Server    ServerConfig     `yaml:"server"`
}

// ServerConfig holds front-end settings.
type ServerConfig struct {
	// BatchWorkers bounds concurrent frames in tape_detect_batch. 0 means one
	// per CPU.
	BatchWorkers int `yaml:"batch_workers"`
	// HTTPAddr, when set, serves the HTTP API instead of MCP over stdio.
	HTTPAddr string `yaml:"http_addr"`
	// MaxBodyBytes limits HTTP request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Backend:   detection.BackendNative,
		Detection: detection.DefaultConfig(),
		Server: ServerConfig{
			BatchWorkers: runtime.NumCPU(),
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
	}
}

// Validate normalizes values to safe ranges. It returns an error only for
// settings that cannot be repaired.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if _, err := parseLevel(c.LogLevel); err != nil {
		c.LogLevel = "info"
	}

	switch c.Backend {
	case "":
		c.Backend = detection.BackendNative
	case detection.BackendNative, detection.BackendOpenCV:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	if c.Server.BatchWorkers <= 0 {
		c.Server.BatchWorkers = runtime.NumCPU()
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return nil
}

// SlogLevel returns the configured level for slog handlers.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// ResolvePath returns flagPath if set, otherwise the TAPE_GUIDE_CONFIG
// environment variable (possibly empty).
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(EnvConfigPath)
}

// Load reads the YAML configuration at path on top of the defaults, applies
// environment overrides and validates the result. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

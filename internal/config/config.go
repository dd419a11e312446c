// Package config loads runner configuration from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the runner configuration.
type Config struct {
	// RunBase is the directory under which run directories are created.
	RunBase string `toml:"run_base"`

	// Backend selects task isolation: "docker" or "process".
	Backend string `toml:"backend"`

	// DefaultImage is the container image for tasks that do not declare one.
	DefaultImage string `toml:"default_image"`

	// MaxParallel caps concurrently running tasks. 0 means the logical CPU
	// count.
	MaxParallel int `toml:"max_parallel"`

	// Defaults are per-task resource reservations used when a task's
	// runtime section is silent.
	Defaults ResourceDefaults `toml:"defaults"`

	// Serve configures the REST API.
	Serve ServeConfig `toml:"serve"`
}

// ResourceDefaults are fallback task resource reservations.
type ResourceDefaults struct {
	// Memory is a size string such as "1G".
	Memory string `toml:"memory"`
	// CPU is the reserved core count.
	CPU int `toml:"cpu"`
}

// ServeConfig configures the flowrun serve listener.
type ServeConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RunBase:      defaultRunBase(),
		Backend:      "docker",
		DefaultImage: "ubuntu:22.04",
		MaxParallel:  runtime.NumCPU(),
		Defaults: ResourceDefaults{
			Memory: "1G",
			CPU:    1,
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8321"},
	}
}

// DefaultPath returns the config file path, honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "flowrun", "config.toml")
}

func defaultRunBase() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "flowrun-runs"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "flowrun", "runs")
}

// DataDir returns the directory holding the run database.
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "flowrun-data"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "flowrun")
}

// Load reads the config file at path. Missing fields fall back to
// defaults; FLOWRUN_* environment variables override afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.validate()
}

// LoadOrDefault loads the default config path, falling back to defaults
// when the file does not exist.
func LoadOrDefault() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, cfg.validate()
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWRUN_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("FLOWRUN_DEFAULT_IMAGE"); v != "" {
		c.DefaultImage = v
	}
	if v := os.Getenv("FLOWRUN_RUN_BASE"); v != "" {
		c.RunBase = v
	}
	if v := os.Getenv("FLOWRUN_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxParallel = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case "docker", "process":
	default:
		return fmt.Errorf("invalid backend %q (want docker or process)", c.Backend)
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be nonnegative")
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = runtime.NumCPU()
	}
	return nil
}

// ExpandHome resolves a leading ~ in a path.
func ExpandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

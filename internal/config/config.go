// Package config loads schedtrace settings from ~/.schedtrace/config.yaml
// and the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/schedtrace/internal/bench"
	"github.com/majorcontext/schedtrace/internal/green"
	"github.com/majorcontext/schedtrace/internal/log"
)

// Config holds schedtrace settings.
type Config struct {
	Pool  green.Config `yaml:"pool"`
	Store StoreConfig  `yaml:"store"`
	OTLP  OTLPConfig   `yaml:"otlp"`
	Debug DebugConfig  `yaml:"debug"`

	Ring   bench.RingConfig   `yaml:"ring"`
	Shared bench.SharedConfig `yaml:"shared"`
	Fanout bench.FanoutConfig `yaml:"fanout"`
}

// StoreConfig locates the trace database.
type StoreConfig struct {
	// Path of the SQLite database. Empty means traces.db under the home dir.
	Path string `yaml:"path"`
}

// OTLPConfig holds span export settings.
type OTLPConfig struct {
	// Endpoint is a host:port or URL of an OTLP/HTTP collector. Empty
	// disables export.
	Endpoint string `yaml:"endpoint"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// RetentionDays is how long debug log files are kept.
	RetentionDays int `yaml:"retention_days"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Pool:   green.DefaultConfig(),
		Debug:  DebugConfig{RetentionDays: 14},
		Ring:   bench.DefaultRing,
		Shared: bench.DefaultShared,
		Fanout: bench.DefaultFanout,
	}
}

// Load reads config.yaml from the home dir and applies environment
// overrides. A missing or malformed file leaves the defaults in place.
func Load() *Config {
	cfg := Default()

	path := filepath.Join(HomeDir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		parsed := Default()
		if err := yaml.Unmarshal(data, parsed); err != nil {
			log.Warn("ignoring malformed config file", "path", path, "error", err)
		} else {
			cfg = parsed
		}
	}

	if n, ok := envInt("SCHEDTRACE_WORKERS"); ok && n > 0 {
		cfg.Pool.Workers = n
	}
	if n, ok := envInt("SCHEDTRACE_MAX_TASKS"); ok && n >= 0 {
		cfg.Pool.MaxTasks = n
	}
	if v := os.Getenv("SCHEDTRACE_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SCHEDTRACE_OTLP_ENDPOINT"); v != "" {
		cfg.OTLP.Endpoint = v
	}
	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("ignoring invalid environment value", "key", key, "value", v)
		return 0, false
	}
	return n, true
}

// DBPath returns the trace database path.
func (c *Config) DBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(HomeDir(), "traces.db")
}

// HomeDir returns $SCHEDTRACE_HOME, or ~/.schedtrace.
func HomeDir() string {
	if dir := os.Getenv("SCHEDTRACE_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".schedtrace")
	}
	return filepath.Join(homeDir, ".schedtrace")
}

// DebugDir returns the directory debug logs are written to.
func DebugDir() string {
	return filepath.Join(HomeDir(), "debug")
}

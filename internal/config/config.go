package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the uxsync daemon configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Seed      SeedConfig      `yaml:"seed"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig selects and tunes the durable key-value backend.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // memory, file, redis (default: memory)
	Dir              string   `yaml:"dir"`    // file driver data directory
	Addrs            []string `yaml:"addrs"`  // redis driver addresses
	Password         string   `yaml:"password"`
	PollIntervalMS   int      `yaml:"poll_interval_ms"` // file driver change-poll interval
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// WorkspaceConfig tunes the workspace state store.
type WorkspaceConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// OutboxConfig tunes the mutation queue.
type OutboxConfig struct {
	QueueSize     int `yaml:"queue_size"`
	MaxAttempts   int `yaml:"max_attempts"`
	BaseBackoffMS int `yaml:"base_backoff_ms"`
	MaxBackoffMS  int `yaml:"max_backoff_ms"`
}

// OptimizerConfig tunes the capture optimization pipeline.
type OptimizerConfig struct {
	MaxDimension int     `yaml:"max_dimension"`
	Quality      float32 `yaml:"quality"`
	Workers      int     `yaml:"workers"`
	QueueSize    int     `yaml:"queue_size"`
}

// SeedConfig controls first-run demo content.
type SeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Storage.PollIntervalMS <= 0 {
		c.Storage.PollIntervalMS = 500
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Workspace.DebounceMS <= 0 {
		c.Workspace.DebounceMS = 200
	}
	if c.Outbox.QueueSize <= 0 {
		c.Outbox.QueueSize = 256
	}
	if c.Outbox.MaxAttempts <= 0 {
		c.Outbox.MaxAttempts = 5
	}
	if c.Outbox.BaseBackoffMS <= 0 {
		c.Outbox.BaseBackoffMS = 100
	}
	if c.Outbox.MaxBackoffMS <= 0 {
		c.Outbox.MaxBackoffMS = 5000
	}
	if c.Optimizer.MaxDimension <= 0 {
		c.Optimizer.MaxDimension = 2048
	}
	if c.Optimizer.Quality <= 0 {
		c.Optimizer.Quality = 82
	}
	if c.Optimizer.Workers <= 0 {
		c.Optimizer.Workers = 2
	}
	if c.Optimizer.QueueSize <= 0 {
		c.Optimizer.QueueSize = 16
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case "memory", "file":
		// ok
	case "redis":
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver must be \"memory\", \"file\" or \"redis\", got %q", c.Storage.Driver)
	}
	if c.Optimizer.Quality > 100 {
		return fmt.Errorf("optimizer.quality must be between 0 and 100, got %v", c.Optimizer.Quality)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

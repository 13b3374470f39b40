package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable. Keys are
// PREFIX_SECTION_FIELD, e.g. CTRSIM_LOG_LEVEL.
const Prefix = "CTRSIM"

const pageSize = 0x1000

// Config holds all simulator configuration.
type Config struct {
	Kernel    KernelConfig    `envconfig:"KERNEL"`
	SharedMem SharedMemConfig `envconfig:"SHM"`
	Debug     DebugConfig     `envconfig:"DEBUG"`
	Demo      DemoConfig      `envconfig:"DEMO"`
	Logging   LogConfig       `envconfig:"LOG"`
}

// KernelConfig holds simulated kernel configuration.
type KernelConfig struct {
	LayoutFile string `envconfig:"LAYOUT"`
	PoolSize   int    `envconfig:"POOL_SIZE" default:"64"`
}

// SharedMemConfig bounds the address window used to map memory blocks.
type SharedMemConfig struct {
	WindowStart uint32 `envconfig:"START" default:"0x10000000"`
	WindowEnd   uint32 `envconfig:"END" default:"0x14000000"`
}

// DebugConfig holds the introspection server configuration.
type DebugConfig struct {
	Addr    string `envconfig:"ADDR" default:"127.0.0.1:8089"`
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Metrics bool   `envconfig:"METRICS" default:"true"`
}

// DemoConfig drives the built-in client application.
type DemoConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"1s"`
	Rounds   int           `envconfig:"ROUNDS" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			PoolSize: 64,
		},
		SharedMem: SharedMemConfig{
			WindowStart: 0x10000000,
			WindowEnd:   0x14000000,
		},
		Debug: DebugConfig{
			Addr:    "127.0.0.1:8089",
			Enabled: true,
			Metrics: true,
		},
		Demo: DemoConfig{
			Enabled:  true,
			Interval: time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	s, e := c.SharedMem.WindowStart, c.SharedMem.WindowEnd
	if s%pageSize != 0 || e%pageSize != 0 {
		return fmt.Errorf("shared memory window %#x-%#x is not page aligned", s, e)
	}
	if s >= e {
		return fmt.Errorf("shared memory window %#x-%#x is empty", s, e)
	}
	if c.Kernel.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.Kernel.PoolSize)
	}
	if c.Demo.Enabled && c.Demo.Interval <= 0 {
		return fmt.Errorf("demo interval must be positive, got %s", c.Demo.Interval)
	}
	return nil
}

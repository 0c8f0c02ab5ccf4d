// Package config loads the marketplace node configuration from a YAML file,
// with environment-independent defaults for every section.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete node configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Pricing   PricingConfig   `yaml:"pricing"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Listen      string `yaml:"listen"`       // e.g., ":8090"
	MetricsPath string `yaml:"metrics_path"` // defaults to /metrics
}

// StoreConfig holds the persistence configuration
type StoreConfig struct {
	Type            string `yaml:"type"` // memory, sqlite, postgres
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"` // e.g., "5m"
}

// EngineConfig holds marketplace engine parameters
type EngineConfig struct {
	LeaseDuration      string `yaml:"lease_duration"`       // e.g., "30m"
	AdmissionWindow    string `yaml:"admission_window"`     // e.g., "24h"
	MaxActivePerOwner  int    `yaml:"max_active_per_owner"` // 0 uses the default
	AutoReleaseExpired *bool  `yaml:"auto_release_expired"` // defaults to true
	SweepInterval      string `yaml:"sweep_interval"`       // e.g., "1m"
	SweepGrace         string `yaml:"sweep_grace"`          // e.g., "5m"
}

// AutoRelease reports whether the lease sweeper should run
func (e EngineConfig) AutoRelease() bool {
	return e.AutoReleaseExpired == nil || *e.AutoReleaseExpired
}

// PricingConfig allows overriding the per-category base rates
type PricingConfig struct {
	BaseRates map[string]float64 `yaml:"base_rates"`
}

// RateLimitConfig holds per-caller rate limiting parameters
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	ToFile bool   `yaml:"to_file"`
}

// Load reads configuration from a YAML file and applies defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(config)
	return config, nil
}

// Default returns the built-in configuration
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func applyDefaults(c *Config) {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Engine.LeaseDuration == "" {
		c.Engine.LeaseDuration = "30m"
	}
	if c.Engine.AdmissionWindow == "" {
		c.Engine.AdmissionWindow = "24h"
	}
	if c.Engine.SweepInterval == "" {
		c.Engine.SweepInterval = "1m"
	}
	if c.Engine.SweepGrace == "" {
		c.Engine.SweepGrace = "5m"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}
}

// ParseDuration parses a duration field, returning fallback for empty or
// invalid values
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

package config

import (
	"errors"
	"time"
)

// Config represents the router service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Shard   ShardConfig   `mapstructure:"shard"`
	Router  RouterConfig  `mapstructure:"router"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents the HTTP command/admin surface configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ShardConfig represents shard connection pool configuration
type ShardConfig struct {
	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
}

// RouterConfig represents session-tracking policy configuration
type RouterConfig struct {
	AutoSplit      bool    `mapstructure:"auto_split"`
	DefaultDB      string  `mapstructure:"default_db"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Shard.CommandTimeout <= 0 {
		return errors.New("shard.command_timeout must be positive")
	}
	if c.Shard.MaxIdleConnsPerHost <= 0 {
		return errors.New("shard.max_idle_conns_per_host must be positive")
	}
	if c.Router.DefaultDB == "" {
		return errors.New("router.default_db is required")
	}
	if c.Router.RateLimitRPS <= 0 {
		return errors.New("router.rate_limit_rps must be positive")
	}
	if c.Router.RateLimitBurst <= 0 {
		return errors.New("router.rate_limit_burst must be positive")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !isValidLogLevel(c.Logging.Level) {
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errors.New("logging.format must be json or console")
	}
	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            27020,
			ShutdownTimeout: 30 * time.Second,
		},
		Shard: ShardConfig{
			CommandTimeout:      30 * time.Second,
			MaxIdleConnsPerHost: 4,
		},
		Router: RouterConfig{
			AutoSplit:      true,
			DefaultDB:      "admin",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9100,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

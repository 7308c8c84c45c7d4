package config

import (
	"time"

	"github.com/medquiz/keeper/internal/infra/postgres"
	redisclient "github.com/medquiz/keeper/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
	Logging    LoggingConfig      `yaml:"logging"`
	Retry      RetryConfig        `yaml:"retry"`
	Autosave   AutosaveConfig     `yaml:"autosave"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	ErrorLog   ErrorLogConfig     `yaml:"error_log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig holds the default retry policy for network-facing calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// AutosaveConfig holds the autosave cadence.
type AutosaveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MonitoringConfig holds the external monitoring endpoint for CRITICAL
// records. Empty URL disables forwarding.
type MonitoringConfig struct {
	URL string `yaml:"url"`
}

// ErrorLogConfig holds buffer bounds.
type ErrorLogConfig struct {
	Capacity         int `yaml:"capacity"`
	CriticalCapacity int `yaml:"critical_capacity"`
}

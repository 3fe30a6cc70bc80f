// Package container provides dependency injection and lifecycle management
// for the expense approval server.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lock backend configuration
	Lock LockConfig

	// Lark messaging configuration
	Lark LarkConfig

	// Exchange rate and country API configuration
	Currency CurrencyConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// LockConfig selects how decisions on one expense are serialized.
type LockConfig struct {
	// Redis enables the distributed locker; otherwise locks are process-local
	Redis bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL bounds how long a crashed holder can block an expense
	TTL time.Duration

	KeyPrefix string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled sends approver notifications through Lark; otherwise they are logged
	Enabled bool

	AppID     string
	AppSecret string
	BaseURL   string
}

// CurrencyConfig holds the currency clients' endpoints and limits.
type CurrencyConfig struct {
	RatesBaseURL      string
	CountriesBaseURL  string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxFailures       uint32
	OpenTimeout       time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lock: LockConfig{
			RedisAddr: "localhost:6379",
			TTL:       30 * time.Second,
			KeyPrefix: "expense-approval:",
		},
		Currency: CurrencyConfig{
			RatesBaseURL:      "https://api.exchangerate-api.com/v4/latest",
			CountriesBaseURL:  "https://restcountries.com/v3.1",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
			MaxFailures:       5,
			OpenTimeout:       30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Version:      "dev",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lock.Redis && c.Lock.RedisAddr == "" {
		return fmt.Errorf("redis address is required when the redis locker is enabled")
	}

	// Validate Lark configuration
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Currency.RatesBaseURL == "" || c.Currency.CountriesBaseURL == "" {
		return fmt.Errorf("currency API base URLs are required")
	}

	return nil
}

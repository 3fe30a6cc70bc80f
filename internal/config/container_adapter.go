package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Lock: container.LockConfig{
			Redis:         c.Redis.Enabled,
			RedisAddr:     c.Redis.Addr,
			RedisPassword: c.Redis.Password,
			RedisDB:       c.Redis.DB,
			TTL:           c.Redis.LockTTL,
			KeyPrefix:     c.Redis.KeyPrefix,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Currency: container.CurrencyConfig{
			RatesBaseURL:      c.Currency.RatesBaseURL,
			CountriesBaseURL:  c.Currency.CountriesBaseURL,
			Timeout:           c.Currency.Timeout,
			RequestsPerSecond: c.Currency.RequestsPerSecond,
			Burst:             c.Currency.Burst,
			MaxFailures:       c.Currency.MaxFailures,
			OpenTimeout:       c.Currency.OpenTimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			Version:      version,
		},
	}
}

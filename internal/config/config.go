package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ClientBuffer       int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	History            HistoryConfig `mapstructure:"history" yaml:"history"`
	Store              StoreConfig   `mapstructure:"store" yaml:"store"`
}

// HistoryConfig bounds the history kept in memory and returned on request.
type HistoryConfig struct {
	CacheLimit int `mapstructure:"cache_limit" yaml:"cache_limit"`
	QueryLimit int `mapstructure:"query_limit" yaml:"query_limit"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	BadgerDir   string        `mapstructure:"badger_dir" yaml:"badger_dir"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":5050",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		ClientBuffer:       64,
		History: HistoryConfig{
			CacheLimit: 100,
			QueryLimit: 20,
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "wirechat.db",
			BadgerDir:  "data/badger",
			Timeout:    5 * time.Second,
			QueueSize:  256,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for driver %q", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for driver %q", c.Store.Driver)
		}
	case DriverBadger, DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

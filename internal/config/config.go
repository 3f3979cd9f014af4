package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// DatabasePath is the SQLite file backing the room store. Ignored
	// when Dev is set, which swaps in the in-memory store.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	Dev          bool   `mapstructure:"dev" yaml:"dev"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Bearer tokens are validated only; issuance stays with the
	// external identity service.
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// Session behavior for websocket room feeds.
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff" yaml:"reconnect_backoff"`

	// WSConnLimit caps websocket upgrades per minute; zero disables.
	WSConnLimit int `mapstructure:"ws_conn_limit" yaml:"ws_conn_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":5000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "meetsync.db",
		LogLevel:          "info",
		FetchTimeout:      5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectBackoff:  500 * time.Millisecond,
		WSConnLimit:       120,
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Dev {
		c.Dev = true
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.FetchTimeout != 0 {
		c.FetchTimeout = other.FetchTimeout
	}
	if other.ReconnectAttempts != 0 {
		c.ReconnectAttempts = other.ReconnectAttempts
	}
	if other.ReconnectBackoff != 0 {
		c.ReconnectBackoff = other.ReconnectBackoff
	}
	if other.WSConnLimit != 0 {
		c.WSConnLimit = other.WSConnLimit
	}
}

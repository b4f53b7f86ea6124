// Package config loads ledgerd's runtime configuration: which ledger
// backend to open, where the metrics server listens, and log verbosity.
package config

// Config is ledgerd's complete runtime configuration.
type Config struct {
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Logging LoggingConfig `toml:"logging" mapstructure:"logging"`

	// configPath is the file this config was loaded from, if any.
	configPath string `toml:"-" mapstructure:"-"`
}

// StoreConfig selects and configures the ledger.Store backend.
type StoreConfig struct {
	// Backend is one of "postgres", "sqlite", "kvstore".
	Backend string `toml:"backend" mapstructure:"backend"`
	// DSN is the postgres connection string (backend = "postgres").
	DSN string `toml:"dsn" mapstructure:"dsn"`
	// Path is the sqlite file path or kvstore directory (backend =
	// "sqlite" or "kvstore").
	Path string `toml:"path" mapstructure:"path"`
}

// ServerConfig configures the long-running process's ambient surfaces.
// The payment engine itself has no HTTP API (spec.md §1 Non-goal); this
// only covers the metrics endpoint.
type ServerConfig struct {
	MetricsAddr string `toml:"metrics_addr" mapstructure:"metrics_addr"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `toml:"level" mapstructure:"level"`
}

// GetConfigPath returns the file this config was loaded from, or "" if
// it was loaded from defaults/environment only.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

package config

import "fmt"

var validBackends = map[string]bool{"postgres": true, "sqlite": true, "kvstore": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ValidateConfig checks that every section of config is internally
// consistent before it's handed to the DI container.
func ValidateConfig(config *Config) error {
	if err := validateStoreConfig(&config.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if config.Server.MetricsAddr == "" {
		return fmt.Errorf("server config: metrics_addr must not be empty")
	}
	return nil
}

func validateStoreConfig(s *StoreConfig) error {
	if !validBackends[s.Backend] {
		return fmt.Errorf("backend %q must be one of postgres, sqlite, kvstore", s.Backend)
	}
	switch s.Backend {
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for backend %q", s.Backend)
		}
	case "sqlite", "kvstore":
		if s.Path == "" {
			return fmt.Errorf("path is required for backend %q", s.Backend)
		}
	}
	return nil
}

func validateLoggingConfig(l *LoggingConfig) error {
	if !validLogLevels[l.Level] {
		return fmt.Errorf("level %q must be one of debug, info, warn, error", l.Level)
	}
	return nil
}

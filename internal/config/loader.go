package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from, in priority order: (1) defaults,
// (2) the TOML file at configPath if it exists, (3) LEDGERD_-prefixed
// environment variables. configPath may be "" to skip the file layer
// entirely (environment + defaults only, e.g. in tests).
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if err := loadFile(v, configPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.configPath = configPath

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func loadFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// LoadDefaultConfig is the CLI's fallback when --conf is unset: it loads
// ./ledgerd.toml if that file exists, and otherwise environment and
// defaults only.
func LoadDefaultConfig() (*Config, error) {
	const defaultPath = "ledgerd.toml"
	if _, err := os.Stat(defaultPath); err == nil {
		return LoadConfig(defaultPath)
	}
	return LoadConfig("")
}

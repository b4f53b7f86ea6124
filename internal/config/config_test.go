package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "ledgerd.db", cfg.Store.Path)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.MetricsAddr)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgerd.toml")
	contents := `
[store]
backend = "postgres"
dsn = "postgres://localhost/ledgerd"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Store.Backend)
	require.Equal(t, "postgres://localhost/ledgerd", cfg.Store.DSN)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, path, cfg.GetConfigPath())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LEDGERD_STORE_BACKEND", "kvstore")
	t.Setenv("LEDGERD_STORE_PATH", "/var/lib/ledgerd")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "kvstore", cfg.Store.Backend)
	require.Equal(t, "/var/lib/ledgerd", cfg.Store.Path)
}

func TestValidateConfigRejectsUnknownBackend(t *testing.T) {
	cfg := Config{Store: StoreConfig{Backend: "mongo", Path: "x"}, Server: ServerConfig{MetricsAddr: "x"}, Logging: LoggingConfig{Level: "info"}}
	require.Error(t, ValidateConfig(&cfg))
}

func TestValidateConfigRequiresDSNForPostgres(t *testing.T) {
	cfg := Config{Store: StoreConfig{Backend: "postgres"}, Server: ServerConfig{MetricsAddr: "x"}, Logging: LoggingConfig{Level: "info"}}
	require.Error(t, ValidateConfig(&cfg))
}

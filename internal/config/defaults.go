package config

import "github.com/spf13/viper"

// setDefaults installs ledgerd's baseline configuration before any file
// or environment override is applied.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "ledgerd.db")

	v.SetDefault("server.metrics_addr", "127.0.0.1:9090")

	v.SetDefault("logging.level", "info")
}

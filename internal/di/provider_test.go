package di

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/config"
)

func TestProviderWiresSqliteEngine(t *testing.T) {
	cfg := &config.Config{
		Store:   config.StoreConfig{Backend: "sqlite", Path: ":memory:"},
		Server:  config.ServerConfig{MetricsAddr: "127.0.0.1:0"},
		Logging: config.LoggingConfig{Level: "info"},
	}

	c := New()
	p := NewProvider(c, cfg)
	require.NoError(t, p.RegisterAll())

	require.Equal(t, cfg, p.GetConfig())

	e, err := p.GetEngine()
	require.NoError(t, err)
	require.NotNil(t, e)

	// The engine builder should have resolved and cached the same store
	// instance the engine itself was wired against.
	store, err := p.GetStore()
	require.NoError(t, err)
	require.NotNil(t, store)

	m, err := p.GetMetrics()
	require.NoError(t, err)
	require.NotNil(t, m)
}

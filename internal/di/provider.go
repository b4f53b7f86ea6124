package di

import (
	"context"
	"fmt"

	"github.com/mutualcredit/ledgerd/internal/config"
	"github.com/mutualcredit/ledgerd/internal/core/engine"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/kvstore"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/postgres"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/sqlite"
	"github.com/mutualcredit/ledgerd/internal/observability"
)

// Provider configures and registers ledgerd's services in the
// container.
type Provider struct {
	container *Container
	config    *config.Config
}

// NewProvider creates a new service provider.
func NewProvider(container *Container, cfg *config.Config) *Provider {
	return &Provider{
		container: container,
		config:    cfg,
	}
}

// RegisterAll registers all services as lazy builders; nothing is
// actually opened until the first Get.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)
	p.registerMetricsBuilder()
	p.registerStoreBuilder()
	p.registerEngineBuilder()
	return nil
}

func (p *Provider) registerMetricsBuilder() {
	p.container.RegisterBuilder(ServiceMetrics, func(c *Container) (interface{}, error) {
		return observability.New(), nil
	})
}

// registerStoreBuilder opens the ledger.Store chosen by config.Store.Backend.
func (p *Provider) registerStoreBuilder() {
	p.container.RegisterBuilder(ServiceStore, func(c *Container) (interface{}, error) {
		ctx := context.Background()
		switch p.config.Store.Backend {
		case "postgres":
			return postgres.Open(ctx, p.config.Store.DSN)
		case "sqlite":
			return sqlite.Open(ctx, p.config.Store.Path)
		case "kvstore":
			return kvstore.Open(p.config.Store.Path)
		default:
			return nil, fmt.Errorf("di: unknown store backend %q", p.config.Store.Backend)
		}
	})
}

func (p *Provider) registerEngineBuilder() {
	p.container.RegisterBuilder(ServiceEngine, func(c *Container) (interface{}, error) {
		store, err := p.GetStore()
		if err != nil {
			return nil, err
		}
		return engine.New(context.Background(), store)
	})
}

// GetStore returns the ledger.Store from the container.
func (p *Provider) GetStore() (ledger.Store, error) {
	svc, err := p.container.Get(ServiceStore)
	if err != nil {
		return nil, err
	}
	return svc.(ledger.Store), nil
}

// GetEngine returns the wired Engine from the container.
func (p *Provider) GetEngine() (engine.Engine, error) {
	svc, err := p.container.Get(ServiceEngine)
	if err != nil {
		return nil, err
	}
	return svc.(engine.Engine), nil
}

// GetMetrics returns the observability.Metrics instance from the container.
func (p *Provider) GetMetrics() (*observability.Metrics, error) {
	svc, err := p.container.Get(ServiceMetrics)
	if err != nil {
		return nil, err
	}
	return svc.(*observability.Metrics), nil
}

// GetConfig returns the configuration from the container.
func (p *Provider) GetConfig() *config.Config {
	return p.config
}

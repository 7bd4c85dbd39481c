// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/di"
	"github.com/fd1az/flashloan-arb/internal/health"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/postgres"
	"github.com/fd1az/flashloan-arb/internal/redisx"
)

// Monolith is the shared infrastructure handed to every module. Optional
// clients are nil when no configured backend needs them.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	Tokens() *asset.Registry
	Redis() *redisx.Client
	DB() *postgres.Client
	Services() di.ServiceRegistry
}

// Module is a bounded context that registers services and starts up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	ethClient *ethclient.Client
	tokens    *asset.Registry
	redis     *redisx.Client
	db        *postgres.Client
	container di.Container
}

// New dials the clients the configuration asks for and seeds the container.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	tokens, err := TokensFromConfig(cfg.Tokens)
	if err != nil {
		return nil, err
	}

	a := &app{
		config:    cfg,
		logger:    log,
		tokens:    tokens,
		container: di.NewContainer(),
	}

	if needsEthereum(cfg) {
		a.ethClient, err = ethclient.DialContext(ctx, cfg.Ethereum.HTTPURL)
		if err != nil {
			return nil, fmt.Errorf("ethereum: dial %s: %w", cfg.Ethereum.HTTPURL, err)
		}
		log.Info(ctx, "ethereum client connected", "url", cfg.Ethereum.HTTPURL)
	}

	if needsRedis(cfg) {
		a.redis, err = redisx.New(ctx, redisx.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info(ctx, "redis connected", "addr", cfg.Redis.Addr)
	}

	if needsPostgres(cfg) {
		a.db, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.db.RunMigrations(ctx); err != nil {
			a.Close()
			return nil, err
		}
		log.Info(ctx, "postgres connected, migrations applied")
	}

	a.container.Register("config", cfg)
	a.container.Register("logger", log)
	a.container.Register("tokens", tokens)
	if a.ethClient != nil {
		a.container.Register("ethClient", a.ethClient)
	}
	if a.redis != nil {
		a.container.Register("redis", a.redis)
	}
	if a.db != nil {
		a.container.Register("db", a.db)
	}
	return a, nil
}

// TokensFromConfig builds the token registry from the validated table.
func TokensFromConfig(tokens map[string]config.TokenConfig) (*asset.Registry, error) {
	reg, err := asset.NewRegistry()
	if err != nil {
		return nil, err
	}
	for sym, t := range tokens {
		if err := reg.Register(asset.Token{
			Symbol:          sym,
			Address:         t.AddressHex(),
			Decimals:        t.Decimals,
			LiquidityHolder: t.LiquidityHolderHex(),
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func needsEthereum(cfg *config.Config) bool {
	if cfg.Ethereum.HTTPURL == "" {
		return false
	}
	if strings.EqualFold(cfg.Gas.Mode, "live") {
		return true
	}
	for _, v := range cfg.Venues {
		if v.Kind == config.VenueKindUniswapV3 {
			return true
		}
	}
	for _, t := range cfg.Tokens {
		if t.LiquidityHolder != "" {
			return true
		}
	}
	return false
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Execution.LockBackend == "redis" || cfg.Pricing.Cache.Backend == "redis"
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.Execution.HistoryBackend == "postgres" || cfg.Control.Backend == "postgres"
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) EthClient() *ethclient.Client   { return a.ethClient }
func (a *app) Tokens() *asset.Registry        { return a.tokens }
func (a *app) Redis() *redisx.Client          { return a.redis }
func (a *app) DB() *postgres.Client           { return a.db }
func (a *app) Services() di.ServiceRegistry   { return a.container }

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// RegisterHealthChecks adds a check per live client.
func (a *app) RegisterHealthChecks(h *health.Server) {
	if a.redis != nil {
		h.RegisterCheck("redis", func(ctx context.Context) (bool, string) {
			if err := a.redis.Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		})
	}
	if a.db != nil {
		h.RegisterCheck("postgres", func(ctx context.Context) (bool, string) {
			if err := a.db.Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		})
	}
	if a.ethClient != nil {
		h.RegisterCheck("ethereum", func(ctx context.Context) (bool, string) {
			if _, err := a.ethClient.BlockNumber(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		})
	}
}

// Close releases every client.
func (a *app) Close() error {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

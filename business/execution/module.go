// Package execution implements the execution bounded context: the
// precondition pipeline, the circuit breaker and atomic settlement.
package execution

import (
	"context"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	arbDomain "github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/business/execution/app"
	execDI "github.com/fd1az/flashloan-arb/business/execution/di"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/business/execution/infra/chain"
	"github.com/fd1az/flashloan-arb/business/execution/infra/history"
	"github.com/fd1az/flashloan-arb/business/execution/infra/lock"
	"github.com/fd1az/flashloan-arb/business/execution/infra/settlement"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/di"
	"github.com/fd1az/flashloan-arb/internal/evm"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/monolith"
	"github.com/fd1az/flashloan-arb/internal/postgres"
	"github.com/fd1az/flashloan-arb/internal/redisx"
)

const lockKeyPrefix = "flashloan-arb:"

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Breaker (public - surfaced in reports and health)
	di.RegisterToken(c, execDI.Breaker, func(sr di.ServiceRegistry) *circuitbreaker.Gate {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return circuitbreaker.NewGate(circuitbreaker.GateConfig{
			Name:                   "execution",
			MaxConsecutiveFailures: uint32(cfg.Breaker.MaxConsecutiveFailures),
			Cooldown:               cfg.Breaker.Cooldown(),
			OnStateChange: func(from, to circuitbreaker.State) {
				log.Warn(context.Background(), "execution breaker state changed",
					"from", string(from),
					"to", string(to),
				)
			},
		})
	})

	// Register LiquidityOracle - private dependency
	di.RegisterToken(c, execDI.Oracle, func(sr di.ServiceRegistry) app.LiquidityOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		oracle, err := chain.NewOracle(ethCaller(sr), sr.Get("tokens").(*asset.Registry),
			cfg.Arbitrage.MaxTradeNotionalDecimal(), log)
		if err != nil {
			panic("failed to create liquidity oracle: " + err.Error())
		}
		return oracle
	})

	// Register ApprovalChecker - private dependency
	di.RegisterToken(c, execDI.Approvals, func(sr di.ServiceRegistry) app.ApprovalChecker {
		cfg := sr.Get("config").(*config.Config)

		routers := make([]common.Address, 0, len(cfg.Venues))
		for _, vc := range cfg.Venues {
			routers = append(routers, vc.RouterAddress())
		}
		live := strings.EqualFold(cfg.Execution.Mode, "LIVE")
		approvals, err := chain.NewApprovals(ethCaller(sr), cfg.Ethereum.ExecutorAddressHex(), routers, !live)
		if err != nil {
			panic("failed to create approval checker: " + err.Error())
		}
		return approvals
	})

	// Register SettlementPrimitive - private dependency, nil in SIMULATED mode
	di.RegisterToken(c, execDI.Settlement, func(sr di.ServiceRegistry) app.SettlementPrimitive {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Execution.SettlementURL == "" {
			return nil
		}
		relay, err := settlement.NewRelay(settlement.Config{
			URL:      cfg.Execution.SettlementURL,
			APIKey:   cfg.Execution.SettlementAPIKey,
			Executor: cfg.Ethereum.ExecutorAddressHex(),
			ChainID:  cfg.Ethereum.ChainID,
			Timeout:  cfg.Execution.CallTimeout,
		}, log)
		if err != nil {
			panic("failed to create settlement relay: " + err.Error())
		}
		return relay
	})

	// Register PairLocker - private dependency
	di.RegisterToken(c, execDI.Locker, func(sr di.ServiceRegistry) app.PairLocker {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Execution.LockBackend == "redis" {
			return lock.NewRedisLocker(sr.Get("redis").(*redisx.Client).Underlying(), lockKeyPrefix, log)
		}
		return lock.NewMemoryLocker()
	})

	// Register HistoryStore (public - read by reporting)
	di.RegisterToken(c, execDI.History, func(sr di.ServiceRegistry) app.HistoryStore {
		cfg := sr.Get("config").(*config.Config)

		if cfg.Execution.HistoryBackend == "postgres" {
			return history.NewPostgresStore(sr.Get("db").(*postgres.Client).Pool())
		}
		return history.NewRingStore(cfg.Execution.HistorySize)
	})

	// Register Coordinator (public - exposed to other modules)
	di.RegisterToken(c, execDI.Coordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		coordCfg, err := coordinatorConfig(cfg)
		if err != nil {
			panic("failed to build coordinator config: " + err.Error())
		}

		coord, err := app.NewCoordinator(
			coordCfg,
			execDI.GetBreaker(sr),
			di.GetToken(sr, execDI.Oracle),
			di.GetToken(sr, execDI.Approvals),
			di.GetToken(sr, execDI.Settlement),
			di.GetToken(sr, execDI.Locker),
			execDI.GetHistory(sr),
			log,
		)
		if err != nil {
			panic("failed to create coordinator: " + err.Error())
		}
		return coord
	})

	return nil
}

// ethCaller returns the shared node client, or nil when none was dialled.
func ethCaller(sr di.ServiceRegistry) evm.Caller {
	c, ok := sr.(di.Container)
	if !ok || !c.Has("ethClient") {
		return nil
	}
	return sr.Get("ethClient").(*ethclient.Client)
}

func coordinatorConfig(cfg *config.Config) (app.CoordinatorConfig, error) {
	mode, err := domain.ParseMode(cfg.Execution.Mode)
	if err != nil {
		return app.CoordinatorConfig{}, err
	}

	simGas := make(map[arbDomain.GasClass]uint64, len(cfg.Execution.SimulatedGasUnits))
	for name, units := range cfg.Execution.SimulatedGasUnits {
		class, err := arbDomain.ParseGasClass(name)
		if err != nil {
			return app.CoordinatorConfig{}, err
		}
		simGas[class] = units
	}

	routes := app.Routes{
		Routers: make(map[pricingDomain.VenueID]common.Address, len(cfg.Venues)),
		Tokens:  make(map[string]domain.Token, len(cfg.Tokens)),
	}
	for id, vc := range cfg.Venues {
		routes.Routers[pricingDomain.VenueID(id)] = vc.RouterAddress()
	}
	for sym, tc := range cfg.Tokens {
		routes.Tokens[sym] = domain.Token{Symbol: sym, Address: tc.AddressHex(), Decimals: tc.Decimals}
	}

	return app.CoordinatorConfig{
		Mode:              mode,
		MaxOpportunityAge: cfg.Execution.MaxOpportunityAge,
		CallTimeout:       cfg.Execution.CallTimeout,
		LockTTL:           cfg.Execution.LockTTL,
		SimulatedGas:      simGas,
		Routes:            routes,
	}, nil
}

// Startup resolves the coordinator so wiring errors surface before the
// first cycle.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	coord := execDI.GetCoordinator(mono.Services())
	gate := execDI.GetBreaker(mono.Services())

	venues := make([]string, 0, len(mono.Config().Venues))
	for id := range mono.Config().Venues {
		venues = append(venues, id)
	}
	sort.Strings(venues)

	log.Info(ctx, "execution module started",
		"mode", coord.Mode().String(),
		"breaker", string(gate.State()),
		"venues", venues,
	)
	return nil
}

// Package blockchain implements the blockchain bounded context: live gas
// pricing from the Ethereum node.
package blockchain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	arbDomain "github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/business/blockchain/app"
	blockchainDI "github.com/fd1az/flashloan-arb/business/blockchain/di"
	"github.com/fd1az/flashloan-arb/business/blockchain/infra/ethereum"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/di"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
// Both services resolve to nil unless gas.mode is live.
func (m *Module) RegisterServices(c di.Container) error {
	// Register GasOracle (private - internal dependency)
	di.RegisterToken(c, blockchainDI.GasOracle, func(sr di.ServiceRegistry) app.GasOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if !liveGas(cfg) || !c.Has("ethClient") {
			return nil
		}

		oracleCfg := ethereum.DefaultGasOracleConfig()
		oracleCfg.CacheTTL = cfg.Gas.CacheTTL
		oracle, err := ethereum.NewGasOracle(sr.Get("ethClient").(*ethclient.Client), oracleCfg, log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	// Register GasService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.GasService, func(sr di.ServiceRegistry) *app.GasService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		oracle := blockchainDI.GetGasOracle(sr)
		if oracle == nil {
			return nil
		}

		units := make(map[arbDomain.GasClass]uint64, len(cfg.Gas.Units))
		for name, u := range cfg.Gas.Units {
			class, err := arbDomain.ParseGasClass(name)
			if err != nil {
				panic("invalid gas.units: " + err.Error())
			}
			units[class] = u
		}

		svc, err := app.NewGasService(oracle, app.GasServiceConfig{
			Units:     units,
			NativeUSD: decimal.NewFromFloat(cfg.Gas.NativeUSD),
		}, log)
		if err != nil {
			panic("failed to create gas service: " + err.Error())
		}
		return svc
	})

	return nil
}

func liveGas(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Gas.Mode, "live")
}

// Startup warms the gas price so a broken node shows up in the logs before
// the first cycle.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := blockchainDI.GetGasService(mono.Services())
	if svc == nil {
		if liveGas(mono.Config()) {
			log.Warn(ctx, "gas.mode is live but no ethereum client is configured, using static schedule")
		}
		log.Info(ctx, "blockchain module started", "gas", "static")
		return nil
	}

	if _, err := svc.Schedule(ctx); err != nil {
		log.Error(ctx, "initial gas price fetch failed", "error", err)
	}

	if closer, ok := blockchainDI.GetGasOracle(mono.Services()).(interface{ Close() error }); ok {
		go func() {
			<-ctx.Done()
			_ = closer.Close()
		}()
	}

	log.Info(ctx, "blockchain module started", "gas", "live")
	return nil
}

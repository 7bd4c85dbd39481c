// Package arbitrage implements the arbitrage bounded context: scoring,
// ranking and the scan loop that drives execution.
package arbitrage

import (
	"context"
	"os"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/arbitrage/app"
	arbDI "github.com/fd1az/flashloan-arb/business/arbitrage/di"
	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/business/arbitrage/infra"
	"github.com/fd1az/flashloan-arb/business/arbitrage/infra/control"
	blockchainDI "github.com/fd1az/flashloan-arb/business/blockchain/di"
	execDI "github.com/fd1az/flashloan-arb/business/execution/di"
	pricingDI "github.com/fd1az/flashloan-arb/business/pricing/di"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/di"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/monolith"
	"github.com/fd1az/flashloan-arb/internal/postgres"
)

const reportRows = 10

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Scorer - private dependency
	di.RegisterToken(c, arbDI.Scorer, func(sr di.ServiceRegistry) *app.Scorer {
		log := sr.Get("logger").(logger.LoggerInterface)

		scorer, err := app.NewScorer(log)
		if err != nil {
			panic("failed to create scorer: " + err.Error())
		}
		return scorer
	})

	// Register MetricsStore (public - read by the health endpoint)
	di.RegisterToken(c, arbDI.Metrics, func(sr di.ServiceRegistry) *app.MetricsStore {
		store, err := app.NewMetricsStore()
		if err != nil {
			panic("failed to create metrics store: " + err.Error())
		}
		return store
	})

	// Register ControlStore (public - written by the operator command)
	di.RegisterToken(c, arbDI.Control, func(sr di.ServiceRegistry) app.ControlStore {
		cfg := sr.Get("config").(*config.Config)

		if cfg.Control.Backend == "postgres" {
			return control.NewPostgresStore(sr.Get("db").(*postgres.Client).Pool())
		}
		return control.NewMemoryStore()
	})

	// Register Reporter - private dependency
	di.RegisterToken(c, arbDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		return infra.NewConsoleReporter(os.Stdout, reportRows)
	})

	// Register Engine (public - run by the entry point)
	di.RegisterToken(c, arbDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		engineCfg, err := engineConfig(cfg)
		if err != nil {
			panic("failed to build engine config: " + err.Error())
		}

		// A nil *GasService must stay a nil interface.
		var gas app.GasPricer
		if svc := blockchainDI.GetGasService(sr); svc != nil {
			gas = svc
		}
		coord := execDI.GetCoordinator(sr)

		engine, err := app.NewEngine(
			engineCfg,
			pricingDI.GetAggregator(sr),
			di.GetToken(sr, arbDI.Scorer),
			coord,
			arbDI.GetControl(sr),
			di.GetToken(sr, arbDI.Reporter),
			gas,
			execDI.GetBreaker(sr),
			arbDI.GetMetrics(sr),
			log,
		)
		if err != nil {
			panic("failed to create engine: " + err.Error())
		}
		return engine
	})

	return nil
}

func engineConfig(cfg *config.Config) (app.EngineConfig, error) {
	params, err := scoringParams(cfg)
	if err != nil {
		return app.EngineConfig{}, err
	}

	pairs := make([]app.PairTarget, 0, len(cfg.Arbitrage.Pairs))
	for _, pc := range cfg.Arbitrage.Pairs {
		pair, err := pricingDomain.ParsePair(pc.Pair)
		if err != nil {
			return app.EngineConfig{}, err
		}
		venues := make([]pricingDomain.VenueID, 0, len(pc.Venues))
		for _, v := range pc.Venues {
			venues = append(venues, pricingDomain.VenueID(v))
		}
		pairs = append(pairs, app.PairTarget{
			Pair:     pair,
			Notional: pc.NotionalDecimal(),
			Venues:   venues,
		})
	}

	return app.EngineConfig{
		Pairs:            pairs,
		Scoring:          params,
		ScanInterval:     cfg.Arbitrage.ScanInterval(),
		MaxTradeNotional: cfg.Arbitrage.MaxTradeNotionalDecimal(),
	}, nil
}

func scoringParams(cfg *config.Config) (domain.ScoringParams, error) {
	fees := make(map[pricingDomain.VenueID]decimal.Decimal, len(cfg.Venues))
	complexity := make(map[pricingDomain.VenueID]domain.GasClass, len(cfg.Venues))
	for id, vc := range cfg.Venues {
		class, err := domain.ParseGasClass(vc.Complexity)
		if err != nil {
			return domain.ScoringParams{}, err
		}
		fees[pricingDomain.VenueID(id)] = vc.FeeDecimal()
		complexity[pricingDomain.VenueID(id)] = class
	}

	premium := decimal.NewFromFloat(cfg.Arbitrage.LoanPremiumRate)
	if premium.IsZero() {
		premium = domain.DefaultLoanPremiumRate
	}

	return domain.ScoringParams{
		MinProfit:       cfg.Arbitrage.MinProfitDecimal(),
		MaxProfit:       cfg.Arbitrage.MaxProfitDecimal(),
		LoanPremiumRate: premium,
		Gas: domain.GasSchedule{
			Simple:  decimal.NewFromFloat(cfg.Gas.SimpleUSD),
			Medium:  decimal.NewFromFloat(cfg.Gas.MediumUSD),
			Complex: decimal.NewFromFloat(cfg.Gas.ComplexUSD),
		},
		VenueFees:       fees,
		VenueComplexity: complexity,
		ImpactCap:       decimal.NewFromFloat(cfg.Arbitrage.ImpactCap),
		SweetSpotMin:    decimal.NewFromFloat(cfg.Arbitrage.SweetSpotMin),
		SweetSpotMax:    decimal.NewFromFloat(cfg.Arbitrage.SweetSpotMax),
		MaxQuoteAge:     cfg.Arbitrage.MaxQuoteAge,
	}, nil
}

// Startup resolves the engine so wiring errors surface at boot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	arbDI.GetEngine(mono.Services())

	log.Info(ctx, "arbitrage module started",
		"pairs", len(cfg.Arbitrage.Pairs),
		"scan_interval", cfg.Arbitrage.ScanInterval().String(),
		"min_profit", cfg.Arbitrage.MinProfit,
		"max_profit", cfg.Arbitrage.MaxProfit,
		"gas_mode", cfg.Gas.Mode,
	)
	return nil
}

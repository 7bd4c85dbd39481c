// Package pricing implements the pricing bounded context: venue quote
// sources and the concurrent aggregator over them.
package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	pricingDI "github.com/fd1az/flashloan-arb/business/pricing/di"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/business/pricing/infra/memcache"
	"github.com/fd1az/flashloan-arb/business/pricing/infra/quoteapi"
	"github.com/fd1az/flashloan-arb/business/pricing/infra/rediscache"
	"github.com/fd1az/flashloan-arb/business/pricing/infra/stream"
	"github.com/fd1az/flashloan-arb/business/pricing/infra/uniswap"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/di"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/monolith"
	"github.com/fd1az/flashloan-arb/internal/redisx"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register quote sources, one per configured venue - private dependency
	di.RegisterToken(c, pricingDI.QuoteSources, func(sr di.ServiceRegistry) []app.QuoteSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		tokens := sr.Get("tokens").(*asset.Registry)

		sources, err := buildSources(cfg, sr, tokens, log)
		if err != nil {
			panic("failed to create quote sources: " + err.Error())
		}
		return sources
	})

	// Register QuoteCache - private dependency, nil when disabled
	di.RegisterToken(c, pricingDI.QuoteCache, func(sr di.ServiceRegistry) app.QuoteCache {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		switch cfg.Pricing.Cache.Backend {
		case "redis":
			return rediscache.New(sr.Get("redis").(*redisx.Client), log)
		case "memory":
			return memcache.New(time.Minute)
		default:
			return nil
		}
	})

	// Register Aggregator (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.Aggregator, func(sr di.ServiceRegistry) *app.Aggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		agg, err := app.NewAggregator(
			pricingDI.GetQuoteSources(sr),
			app.AggregatorConfig{
				VenueTimeout: cfg.Pricing.VenueTimeout,
				MaxParallel:  cfg.Pricing.MaxParallel,
				CacheTTL:     cfg.Pricing.Cache.TTL,
			},
			pricingDI.GetQuoteCache(sr),
			log,
		)
		if err != nil {
			panic("failed to create aggregator: " + err.Error())
		}
		return agg
	})

	return nil
}

func buildSources(cfg *config.Config, sr di.ServiceRegistry, tokens *asset.Registry, log logger.LoggerInterface) ([]app.QuoteSource, error) {
	ids := make([]string, 0, len(cfg.Venues))
	for id := range cfg.Venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := make([]app.QuoteSource, 0, len(ids))
	for _, id := range ids {
		vc := cfg.Venues[id]
		var (
			src app.QuoteSource
			err error
		)
		switch vc.Kind {
		case config.VenueKindUniswapV3:
			src, err = uniswap.NewVenue(sr.Get("ethClient").(*ethclient.Client), uniswap.Config{
				ID:           domain.VenueID(id),
				Quoter:       vc.QuoterAddress(),
				Factory:      vc.FactoryAddress(),
				FeeTier:      uint32(vc.FeeTier),
				RateLimitRPM: vc.RateLimitRPM,
			}, tokens, log)
		case config.VenueKindQuoteAPI:
			src, err = quoteapi.NewVenue(quoteapi.Config{
				ID:           domain.VenueID(id),
				BaseURL:      vc.URL,
				APIKey:       vc.APIKey,
				Timeout:      cfg.Pricing.VenueTimeout,
				RateLimitRPM: vc.RateLimitRPM,
			}, log)
		case config.VenueKindStream:
			src, err = stream.NewVenue(stream.Config{
				ID:           domain.VenueID(id),
				URL:          vc.URL,
				Pairs:        pairsFor(cfg, id),
				Fee:          vc.FeeDecimal(),
				StaleTimeout: vc.StaleTimeout,
			}, log)
		}
		if err != nil {
			return nil, err
		}
		if src != nil {
			sources = append(sources, src)
		}
	}
	return sources, nil
}

// pairsFor lists the configured pairs that route through venue id.
func pairsFor(cfg *config.Config, id string) []domain.Pair {
	var out []domain.Pair
	for _, pc := range cfg.Arbitrage.Pairs {
		for _, v := range pc.Venues {
			if v != id {
				continue
			}
			if p, err := domain.ParsePair(pc.Pair); err == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

type connector interface {
	Connect(context.Context) error
	ConnectWithRetry(context.Context) error
	Close() error
}

// Startup connects streaming venues. A failed connection is retried in the
// background and never blocks startup.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	for _, src := range pricingDI.GetQuoteSources(mono.Services()) {
		conn, ok := src.(connector)
		if !ok {
			continue
		}
		venue := src.Venue()

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := conn.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Warn(ctx, "stream connection failed, will retry in background", "venue", venue, "error", err)
			go retryConnect(ctx, conn, venue, log)
		}

		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
	}

	log.Info(ctx, "pricing module started")
	return nil
}

func retryConnect(ctx context.Context, conn connector, venue domain.VenueID, log logger.LoggerInterface) {
	if err := conn.ConnectWithRetry(ctx); err != nil {
		if ctx.Err() == nil {
			log.Warn(ctx, "stream retry gave up", "venue", venue, "error", err)
		}
		return
	}
	log.Info(ctx, "stream connected", "venue", venue)
}

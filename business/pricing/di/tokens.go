// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Aggregator = di.NewToken[*app.Aggregator]("pricing.Aggregator")
)

// Private dependency tokens - internal to pricing module
var (
	QuoteSources = di.NewToken[[]app.QuoteSource]("pricing:quoteSources")
	QuoteCache   = di.NewToken[app.QuoteCache]("pricing:quoteCache")
)

// Helper functions for type-safe access
func GetAggregator(c di.ServiceRegistry) *app.Aggregator {
	return di.GetToken(c, Aggregator)
}

func GetQuoteSources(c di.ServiceRegistry) []app.QuoteSource {
	return di.GetToken(c, QuoteSources)
}

func GetQuoteCache(c di.ServiceRegistry) app.QuoteCache {
	return di.GetToken(c, QuoteCache)
}

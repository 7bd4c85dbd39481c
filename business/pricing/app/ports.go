// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// QuoteSource is one venue able to price a pair for a notional.
type QuoteSource interface {
	// Venue returns the configured id of this source.
	Venue() domain.VenueID

	// Quote prices notional (in quote token units) of pair.
	Quote(ctx context.Context, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error)
}

// QuoteCache stores recent quotes keyed by (venue, pair).
type QuoteCache interface {
	Get(ctx context.Context, venue domain.VenueID, pair domain.Pair) (domain.Quote, bool)
	Set(ctx context.Context, quote domain.Quote, ttl time.Duration) error
}

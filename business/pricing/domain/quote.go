package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

var one = decimal.NewFromInt(1)

// QuoteParams carries the raw fields a venue reports.
type QuoteParams struct {
	Venue      VenueID
	Pair       Pair
	Price      decimal.Decimal // quote token per base token
	Liquidity  decimal.Decimal // in quote token units
	Fee        decimal.Decimal // fraction, 0.003 = 30 bps
	Confidence decimal.Decimal // source-reported, [0,1]
	Notional   decimal.Decimal // size the price is valid for
	Timestamp  time.Time
}

// Quote is an immutable venue price for one pair and notional.
type Quote struct {
	venue      VenueID
	pair       Pair
	price      decimal.Decimal
	liquidity  decimal.Decimal
	fee        decimal.Decimal
	confidence decimal.Decimal
	notional   decimal.Decimal
	timestamp  time.Time
	cached     bool
}

// NewQuote validates p and builds a Quote.
func NewQuote(p QuoteParams) (Quote, error) {
	switch {
	case p.Venue == "":
		return Quote{}, invalidQuote("missing venue")
	case p.Pair.Base == "" || p.Pair.Quote == "":
		return Quote{}, invalidQuote("missing pair")
	case !p.Price.IsPositive():
		return Quote{}, invalidQuote("price must be positive")
	case p.Liquidity.IsNegative():
		return Quote{}, invalidQuote("liquidity must not be negative")
	case p.Fee.IsNegative() || p.Fee.GreaterThanOrEqual(one):
		return Quote{}, invalidQuote("fee must be in [0,1)")
	case p.Confidence.IsNegative() || p.Confidence.GreaterThan(one):
		return Quote{}, invalidQuote("confidence must be in [0,1]")
	case p.Notional.IsNegative():
		return Quote{}, invalidQuote("notional must not be negative")
	case p.Timestamp.IsZero():
		return Quote{}, invalidQuote("missing timestamp")
	}

	return Quote{
		venue:      p.Venue,
		pair:       p.Pair,
		price:      p.Price,
		liquidity:  p.Liquidity,
		fee:        p.Fee,
		confidence: p.Confidence,
		notional:   p.Notional,
		timestamp:  p.Timestamp,
	}, nil
}

func invalidQuote(reason string) error {
	return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext(reason))
}

func (q Quote) Venue() VenueID              { return q.venue }
func (q Quote) Pair() Pair                  { return q.pair }
func (q Quote) Price() decimal.Decimal      { return q.price }
func (q Quote) Liquidity() decimal.Decimal  { return q.liquidity }
func (q Quote) Fee() decimal.Decimal        { return q.fee }
func (q Quote) Confidence() decimal.Decimal { return q.confidence }
func (q Quote) Notional() decimal.Decimal   { return q.notional }
func (q Quote) Timestamp() time.Time        { return q.timestamp }

// Cached reports whether the quote was served from a cache.
func (q Quote) Cached() bool { return q.cached }

// Age returns how old the quote is at now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.timestamp)
}

// WithCached returns a copy flagged as cached. The timestamp is kept.
func (q Quote) WithCached() Quote {
	q.cached = true
	return q
}

// Params returns the fields the quote was built from, for cache round-trips.
func (q Quote) Params() QuoteParams {
	return QuoteParams{
		Venue:      q.venue,
		Pair:       q.pair,
		Price:      q.price,
		Liquidity:  q.liquidity,
		Fee:        q.fee,
		Confidence: q.confidence,
		Notional:   q.notional,
		Timestamp:  q.timestamp,
	}
}

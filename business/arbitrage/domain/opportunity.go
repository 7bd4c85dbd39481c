package domain

import (
	"time"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// Opportunity is a scored cross-venue trade. It is a value: never mutated
// after scoring, and GrossProfit - Costs.Total() == NetProfit exactly.
type Opportunity struct {
	ID        string
	Pair      pricingDomain.Pair
	BuyVenue  pricingDomain.VenueID
	SellVenue pricingDomain.VenueID
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Notional  decimal.Decimal

	GrossProfit decimal.Decimal
	Costs       Costs
	NetProfit   decimal.Decimal

	Confidence   decimal.Decimal // [0,1]
	Risk         RiskTier
	Priority     int
	Complexity   GasClass
	ImpactFactor decimal.Decimal

	QuotedAt  time.Time // oldest quote used
	CreatedAt time.Time
}

// Route returns the buy/sell direction.
func (o Opportunity) Route() Route {
	return Route{Buy: o.BuyVenue, Sell: o.SellVenue}
}

// Age returns how old the underlying quotes are at now.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.QuotedAt)
}

// SpreadPct returns (sell - buy) / buy.
func (o Opportunity) SpreadPct() decimal.Decimal {
	if o.BuyPrice.IsZero() {
		return decimal.Zero
	}
	return o.SellPrice.Sub(o.BuyPrice).Div(o.BuyPrice)
}

// Balanced reports whether the stored net equals gross minus costs.
func (o Opportunity) Balanced() bool {
	return o.GrossProfit.Sub(o.Costs.Total()).Equal(o.NetProfit)
}

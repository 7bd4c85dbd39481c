package domain

import (
	"time"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// ScoringParams is the immutable input of one scoring pass. Now is injected
// so scoring never reads the clock.
type ScoringParams struct {
	MinProfit       decimal.Decimal
	MaxProfit       decimal.Decimal
	LoanPremiumRate decimal.Decimal
	Gas             GasSchedule

	VenueFees       map[pricingDomain.VenueID]decimal.Decimal
	VenueComplexity map[pricingDomain.VenueID]GasClass

	ImpactCap    decimal.Decimal
	SweetSpotMin decimal.Decimal
	SweetSpotMax decimal.Decimal
	MaxQuoteAge  time.Duration
	Now          time.Time
}

// DefaultLoanPremiumRate is the lending protocol's published flash-loan fee.
var DefaultLoanPremiumRate = decimal.RequireFromString("0.0009")

// InWindow reports MinProfit <= net <= MaxProfit.
func (p ScoringParams) InWindow(net decimal.Decimal) bool {
	return net.GreaterThanOrEqual(p.MinProfit) && net.LessThanOrEqual(p.MaxProfit)
}

// SweetSpotBoost returns 1 when net falls in the sweet-spot range, else 0.
func (p ScoringParams) SweetSpotBoost(net decimal.Decimal) int {
	if p.SweetSpotMax.IsZero() && p.SweetSpotMin.IsZero() {
		return 0
	}
	if net.GreaterThanOrEqual(p.SweetSpotMin) && net.LessThanOrEqual(p.SweetSpotMax) {
		return 1
	}
	return 0
}

// FeeRate returns the quote's fee when positive, else the configured schedule.
func (p ScoringParams) FeeRate(q pricingDomain.Quote) decimal.Decimal {
	if q.Fee().IsPositive() {
		return q.Fee()
	}
	return p.VenueFees[q.Venue()]
}

// ComplexityOf returns the configured gas class of venue.
func (p ScoringParams) ComplexityOf(venue pricingDomain.VenueID) GasClass {
	return p.VenueComplexity[venue]
}

// WithGas returns a copy with a different gas schedule.
func (p ScoringParams) WithGas(g GasSchedule) ScoringParams {
	p.Gas = g
	return p
}

// At returns a copy evaluated at now.
func (p ScoringParams) At(now time.Time) ScoringParams {
	p.Now = now
	return p
}

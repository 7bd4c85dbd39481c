package domain

import (
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// Route is the trade direction of an opportunity: buy the base token on one
// venue, sell it on another.
type Route struct {
	Buy  pricingDomain.VenueID
	Sell pricingDomain.VenueID
}

// String returns a human-readable description of the route.
func (r Route) String() string {
	return "buy@" + string(r.Buy) + " → sell@" + string(r.Sell)
}

package app

import (
	"cmp"
	"slices"

	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
)

// Rank returns a sorted copy of opps: priority descending, then net profit
// descending, then pair, buy venue, sell venue, notional and id ascending.
// The order is total, so it does not depend on input order. opps is not
// modified.
func Rank(opps []domain.Opportunity) []domain.Opportunity {
	ranked := slices.Clone(opps)
	slices.SortStableFunc(ranked, compareOpportunities)
	return ranked
}

func compareOpportunities(a, b domain.Opportunity) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := b.NetProfit.Cmp(a.NetProfit); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Pair.String(), b.Pair.String()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BuyVenue, b.BuyVenue); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SellVenue, b.SellVenue); c != 0 {
		return c
	}
	if c := a.Notional.Cmp(b.Notional); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

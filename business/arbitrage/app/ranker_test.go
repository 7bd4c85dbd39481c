package app

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

func opp(pair string, buy, sell pricingDomain.VenueID, priority int, net string) domain.Opportunity {
	p, _ := pricingDomain.ParsePair(pair)
	return domain.Opportunity{
		Pair:      p,
		BuyVenue:  buy,
		SellVenue: sell,
		Priority:  priority,
		NetProfit: decimal.RequireFromString(net),
	}
}

func TestRank(t *testing.T) {
	input := []domain.Opportunity{
		opp("WETH/USDC", "a", "b", 2, "12"),
		opp("WETH/USDC", "c", "d", 3, "5"),
		opp("WBTC/USDC", "b", "a", 2, "12"),
		opp("WETH/USDC", "a", "c", 2, "12"),
		opp("WETH/USDC", "a", "b", 2, "15"),
	}
	original := make([]domain.Opportunity, len(input))
	copy(original, input)

	ranked := Rank(input)

	want := []struct {
		pair      string
		buy, sell pricingDomain.VenueID
		net       string
	}{
		{"WETH/USDC", "c", "d", "5"},  // highest priority wins regardless of profit
		{"WETH/USDC", "a", "b", "15"}, // then net profit
		{"WBTC/USDC", "b", "a", "12"}, // ties broken by pair
		{"WETH/USDC", "a", "b", "12"}, // then buy venue, then sell venue
		{"WETH/USDC", "a", "c", "12"},
	}
	if len(ranked) != len(want) {
		t.Fatalf("len = %d, want %d", len(ranked), len(want))
	}
	for i, w := range want {
		got := ranked[i]
		if got.Pair.String() != w.pair || got.BuyVenue != w.buy || got.SellVenue != w.sell || !got.NetProfit.Equal(decimal.RequireFromString(w.net)) {
			t.Errorf("ranked[%d] = %s %s→%s %s, want %s %s→%s %s",
				i, got.Pair, got.BuyVenue, got.SellVenue, got.NetProfit, w.pair, w.buy, w.sell, w.net)
		}
	}

	for i := range input {
		if input[i].BuyVenue != original[i].BuyVenue || input[i].Priority != original[i].Priority ||
			!input[i].NetProfit.Equal(original[i].NetProfit) {
			t.Fatalf("input reordered at %d", i)
		}
	}
}

func TestRank_Empty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Errorf("Rank(nil) = %v", got)
	}
}

func TestRank_IndependentOfInputOrder(t *testing.T) {
	withNotional := func(o domain.Opportunity, id, notional string) domain.Opportunity {
		o.ID = id
		o.Notional = decimal.RequireFromString(notional)
		return o
	}
	set := []domain.Opportunity{
		withNotional(opp("WETH/USDC", "a", "b", 2, "12"), "id-1", "10000"),
		withNotional(opp("WETH/USDC", "a", "b", 2, "12"), "id-2", "5000"),
		withNotional(opp("WETH/USDC", "a", "b", 2, "12"), "id-3", "5000"),
		withNotional(opp("WBTC/USDC", "a", "b", 2, "12"), "id-4", "5000"),
		withNotional(opp("WETH/USDC", "c", "d", 3, "4"), "id-5", "5000"),
	}

	ids := func(opps []domain.Opportunity) []string {
		out := make([]string, len(opps))
		for i, o := range opps {
			out[i] = o.ID
		}
		return out
	}
	want := []string{"id-5", "id-4", "id-2", "id-3", "id-1"}

	var permute func(k int)
	permute = func(k int) {
		if k == len(set) {
			input := slices.Clone(set)
			if got := ids(Rank(input)); !slices.Equal(got, want) {
				t.Fatalf("Rank(%v) = %v, want %v", ids(input), got, want)
			}
			return
		}
		for i := k; i < len(set); i++ {
			set[k], set[i] = set[i], set[k]
			permute(k + 1)
			set[k], set[i] = set[i], set[k]
		}
	}
	permute(0)
}

package infra

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/arbitrage/app"
	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
)

func TestConsoleReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, 1)
	pair := pricingDomain.NewPair("WETH", "USDC")
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	opps := []domain.Opportunity{
		{Pair: pair, BuyVenue: "univ3", SellVenue: "desk", NetProfit: decimal.RequireFromString("10.5"),
			GrossProfit: decimal.NewFromInt(80), Confidence: decimal.RequireFromString("0.68"), Risk: domain.RiskMedium, Priority: 3},
		{Pair: pair, BuyVenue: "desk", SellVenue: "stream", NetProfit: decimal.NewFromInt(5)},
	}
	res := execDomain.NewFailure(execDomain.Attempt{Pair: pair, BuyVenue: "univ3", SellVenue: "desk", StartedAt: at},
		nil, at)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Report(context.Background(), app.CycleReport{
		Cycle:     7,
		StartedAt: at,
		Pairs: []app.PairReport{
			{Pair: pair, Notional: decimal.NewFromInt(10000), Quotes: 3, Opportunities: 2},
			{Pair: pricingDomain.NewPair("WBTC", "USDC"), Err: "INSUFFICIENT_QUOTES"},
		},
		Opportunities: opps,
		Execution:     &res,
		Breaker:       circuitbreaker.GateState{State: circuitbreaker.StateOpen},
		Metrics:       app.MetricsSnapshot{OpportunitiesFound: 2, Cycles: 7, TotalProfit: decimal.Zero},
	})
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"CYCLE #7",
		"OPEN",
		"WBTC/USDC",
		"skipped: INSUFFICIENT_QUOTES",
		"univ3 → desk",
		"$10.50",
		"MEDIUM",
		"1 more",
		"NOT EXECUTED",
		"UNKNOWN",
		"cycles 7",
		"Stopped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "desk → stream") {
		t.Errorf("rows beyond maxRows rendered:\n%s", out)
	}
}

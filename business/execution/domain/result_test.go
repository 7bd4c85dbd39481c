package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
)

func TestKindFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"stale", apperror.New(apperror.CodeStalePrice), KindStalePrice},
		{"circuit", apperror.New(apperror.CodeCircuitOpen), KindCircuitOpen},
		{"liquidity", apperror.New(apperror.CodeInsufficientLiquidity), KindInsufficientLiquidity},
		{"approval", apperror.New(apperror.CodeApprovalInvalid), KindApproval},
		{"settlement", apperror.New(apperror.CodeSettlementFailed), KindSettlement},
		{"locked", apperror.New(apperror.CodeExecutionInProgress), KindPairLocked},
		{"wrapped", fmt.Errorf("outer: %w", apperror.New(apperror.CodeSettlementFailed)), KindSettlement},
		{"plain error", errors.New("boom"), KindUnknown},
		{"other code", apperror.New(apperror.CodeStorageError), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindFromError(tt.err); got != tt.want {
				t.Errorf("KindFromError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	attempt := Attempt{
		OpportunityID:   "opp-1",
		Pair:            pricingDomain.NewPair("WETH", "USDC"),
		BuyVenue:        "a",
		SellVenue:       "b",
		Mode:            ModeSimulated,
		EstimatedProfit: decimal.RequireFromString("10.50"),
		StartedAt:       start,
	}

	ok := NewSuccess(attempt, SettlementReceipt{ProfitRealized: decimal.RequireFromString("9.9"), GasUsed: 250000}, start.Add(time.Second))
	if !ok.Success || ok.ErrorKind != KindNone || ok.Duration != time.Second || ok.ID == "" {
		t.Errorf("unexpected success result: %+v", ok)
	}

	fail := NewFailure(attempt, apperror.New(apperror.CodeSettlementFailed), start)
	if fail.Success || fail.ErrorKind != KindSettlement || !fail.RealizedProfit.IsZero() || fail.ErrorMessage == "" {
		t.Errorf("unexpected failure result: %+v", fail)
	}

	if k := NewFailure(attempt, nil, start).ErrorKind; k != KindUnknown {
		t.Errorf("nil error failure kind = %s, want UNKNOWN", k)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"simulated": ModeSimulated, "LIVE": ModeLive, " live ": ModeLive} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode(""); err == nil {
		t.Error("empty mode must be rejected")
	}
	if KindCircuitOpen.Skipped() != true || KindSettlement.Skipped() {
		t.Error("Skipped() misclassifies kinds")
	}
}

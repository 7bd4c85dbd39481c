// Package app contains the execution coordinator and its ports.
package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/execution/domain"
)

// LiquidityOracle reports how much of a token the lender can flash-borrow.
type LiquidityOracle interface {
	AvailableLiquidity(ctx context.Context, token domain.Token) (decimal.Decimal, error)
}

// SettlementPrimitive borrows amount of borrow, runs both legs and repays in
// one atomic transaction.
type SettlementPrimitive interface {
	ExecuteAtomicSwap(ctx context.Context, borrow domain.Token, amount decimal.Decimal, leg1, leg2 domain.SwapLeg) (domain.SettlementReceipt, error)
}

// ApprovalChecker verifies routers are whitelisted and allowances cover the legs.
type ApprovalChecker interface {
	CheckApprovals(ctx context.Context, legs ...domain.SwapLeg) error
}

// PairLocker guards a pair across processes. A held lock returns an
// EXECUTION_IN_PROGRESS error.
type PairLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// HistoryStore records every execution result.
type HistoryStore interface {
	Append(ctx context.Context, r domain.ExecutionResult) error
	Recent(ctx context.Context, limit int) ([]domain.ExecutionResult, error)
}

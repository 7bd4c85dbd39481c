package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// ErrorKind classifies why an execution did not succeed.
type ErrorKind string

const (
	KindNone                  ErrorKind = "NONE"
	KindStalePrice            ErrorKind = "STALE_PRICE"
	KindCircuitOpen           ErrorKind = "CIRCUIT_OPEN"
	KindInsufficientLiquidity ErrorKind = "INSUFFICIENT_LIQUIDITY"
	KindApproval              ErrorKind = "APPROVAL"
	KindSettlement            ErrorKind = "SETTLEMENT"
	KindUnknown               ErrorKind = "UNKNOWN"
	KindPairLocked            ErrorKind = "PAIR_LOCKED"
)

// Skipped reports kinds where nothing was attempted against the chain.
func (k ErrorKind) Skipped() bool {
	return k == KindCircuitOpen || k == KindPairLocked || k == KindStalePrice
}

// ParseErrorKind is the inverse of string(kind); unknown values map to UNKNOWN.
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case KindNone, KindStalePrice, KindCircuitOpen, KindInsufficientLiquidity,
		KindApproval, KindSettlement, KindUnknown, KindPairLocked:
		return k
	}
	return KindUnknown
}

// KindFromError maps an apperror code to its execution kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return KindUnknown
	}
	switch appErr.Code {
	case apperror.CodeStalePrice:
		return KindStalePrice
	case apperror.CodeCircuitOpen:
		return KindCircuitOpen
	case apperror.CodeInsufficientLiquidity:
		return KindInsufficientLiquidity
	case apperror.CodeApprovalInvalid:
		return KindApproval
	case apperror.CodeSettlementFailed:
		return KindSettlement
	case apperror.CodeExecutionInProgress:
		return KindPairLocked
	default:
		return KindUnknown
	}
}

// Attempt identifies what was executed and when.
type Attempt struct {
	OpportunityID   string
	Pair            pricingDomain.Pair
	BuyVenue        pricingDomain.VenueID
	SellVenue       pricingDomain.VenueID
	Mode            Mode
	EstimatedProfit decimal.Decimal
	StartedAt       time.Time
}

// ExecutionResult is the immutable record of one execution attempt.
type ExecutionResult struct {
	ID              string
	OpportunityID   string
	Pair            pricingDomain.Pair
	BuyVenue        pricingDomain.VenueID
	SellVenue       pricingDomain.VenueID
	Mode            Mode
	Success         bool
	EstimatedProfit decimal.Decimal
	RealizedProfit  decimal.Decimal
	GasUsed         uint64
	TxID            string
	ErrorKind       ErrorKind
	ErrorMessage    string
	StartedAt       time.Time
	Duration        time.Duration
}

// NewSuccess records a settled (or simulated) execution.
func NewSuccess(a Attempt, receipt SettlementReceipt, finishedAt time.Time) ExecutionResult {
	r := newResult(a, finishedAt)
	r.Success = true
	r.RealizedProfit = receipt.ProfitRealized
	r.GasUsed = receipt.GasUsed
	r.TxID = receipt.TxID
	r.ErrorKind = KindNone
	return r
}

// NewFailure records a failed or skipped execution. Realized profit is zero.
func NewFailure(a Attempt, err error, finishedAt time.Time) ExecutionResult {
	r := newResult(a, finishedAt)
	r.RealizedProfit = decimal.Zero
	r.ErrorKind = KindFromError(err)
	if r.ErrorKind == KindNone {
		r.ErrorKind = KindUnknown
	}
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

func newResult(a Attempt, finishedAt time.Time) ExecutionResult {
	return ExecutionResult{
		ID:              uuid.NewString(),
		OpportunityID:   a.OpportunityID,
		Pair:            a.Pair,
		BuyVenue:        a.BuyVenue,
		SellVenue:       a.SellVenue,
		Mode:            a.Mode,
		EstimatedProfit: a.EstimatedProfit,
		StartedAt:       a.StartedAt,
		Duration:        finishedAt.Sub(a.StartedAt),
	}
}

// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
)

// QuoteFetcher gathers quotes for one pair from a set of venues.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, pair pricingDomain.Pair, notional decimal.Decimal, venues []pricingDomain.VenueID) (map[pricingDomain.VenueID]pricingDomain.Quote, error)
}

// Executor runs one opportunity to completion. It never returns an error;
// failures are carried in the result.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) execDomain.ExecutionResult
}

// ControlSource reads the operator's admin record.
type ControlSource interface {
	Read(ctx context.Context) (execDomain.Control, error)
}

// ControlStore persists the admin record.
type ControlStore interface {
	ControlSource
	Write(ctx context.Context, c execDomain.Control) error
}

// GasPricer prices the gas schedule from the live network.
type GasPricer interface {
	Schedule(ctx context.Context) (domain.GasSchedule, error)
}

// BreakerStatus exposes the execution breaker for reporting.
type BreakerStatus interface {
	Snapshot() circuitbreaker.GateState
}

// Reporter defines the interface for reporting cycle outcomes.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// Report renders one completed cycle.
	Report(ctx context.Context, report CycleReport)

	// Stop gracefully shuts down the reporter.
	Stop() error
}

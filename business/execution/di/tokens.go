// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/flashloan-arb/business/execution/app"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Coordinator = di.NewToken[*app.Coordinator]("execution.Coordinator")
	Breaker     = di.NewToken[*circuitbreaker.Gate]("execution.Breaker")
	History     = di.NewToken[app.HistoryStore]("execution.History")
)

// Private dependency tokens - internal to execution module
var (
	Oracle     = di.NewToken[app.LiquidityOracle]("execution:oracle")
	Approvals  = di.NewToken[app.ApprovalChecker]("execution:approvals")
	Settlement = di.NewToken[app.SettlementPrimitive]("execution:settlement")
	Locker     = di.NewToken[app.PairLocker]("execution:locker")
)

// Helper functions for type-safe access
func GetCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, Coordinator)
}

func GetBreaker(c di.ServiceRegistry) *circuitbreaker.Gate {
	return di.GetToken(c, Breaker)
}

func GetHistory(c di.ServiceRegistry) app.HistoryStore {
	return di.GetToken(c, History)
}

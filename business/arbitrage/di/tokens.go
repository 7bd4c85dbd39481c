// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fd1az/flashloan-arb/business/arbitrage/app"
	"github.com/fd1az/flashloan-arb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine  = di.NewToken[*app.Engine]("arbitrage.Engine")
	Control = di.NewToken[app.ControlStore]("arbitrage.Control")
	Metrics = di.NewToken[*app.MetricsStore]("arbitrage.Metrics")
)

// Private dependency tokens - internal to arbitrage module
var (
	Scorer   = di.NewToken[*app.Scorer]("arbitrage:scorer")
	Reporter = di.NewToken[app.Reporter]("arbitrage:reporter")
)

// Helper functions for type-safe access
func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetControl(c di.ServiceRegistry) app.ControlStore {
	return di.GetToken(c, Control)
}

func GetMetrics(c di.ServiceRegistry) *app.MetricsStore {
	return di.GetToken(c, Metrics)
}

// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Costs itemizes everything subtracted from gross profit, in quote units.
type Costs struct {
	BuyFee      decimal.Decimal
	SellFee     decimal.Decimal
	LoanPremium decimal.Decimal
	Gas         decimal.Decimal
	PriceImpact decimal.Decimal
}

// Total sums every cost term.
func (c Costs) Total() decimal.Decimal {
	return c.BuyFee.Add(c.SellFee).Add(c.LoanPremium).Add(c.Gas).Add(c.PriceImpact)
}

// GasCost represents the gas cost for an on-chain execution.
type GasCost struct {
	GasLimit uint64
	GasPrice *big.Int // in wei
	TotalWei *big.Int // gasLimit * gasPrice
	Native   decimal.Decimal
	USD      decimal.Decimal // converted using the native coin price
}

// NewGasCost creates a GasCost from gas parameters.
func NewGasCost(gasLimit uint64, gasPriceWei *big.Int, nativePriceUSD decimal.Decimal) GasCost {
	if gasPriceWei == nil {
		gasPriceWei = new(big.Int)
	}
	totalWei := new(big.Int).Mul(gasPriceWei, new(big.Int).SetUint64(gasLimit))

	// 1 native = 10^18 wei
	native := decimal.NewFromBigInt(totalWei, -18)

	return GasCost{
		GasLimit: gasLimit,
		GasPrice: gasPriceWei,
		TotalWei: totalWei,
		Native:   native,
		USD:      native.Mul(nativePriceUSD),
	}
}

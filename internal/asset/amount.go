package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("asset: negative amount")
	ErrTooManyDecimals = errors.New("asset: too many decimal places for token")
)

// ToUnits converts a human amount to the token's smallest unit. Fractions
// finer than the token's precision are rejected.
func ToUnits(t Token, d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(int32(t.Decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s %s", ErrTooManyDecimals, d, t.Symbol)
	}
	return scaled.BigInt(), nil
}

// ToUnitsFloor is ToUnits but truncates excess precision.
func ToUnitsFloor(t Token, d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return d.Shift(int32(t.Decimals)).Truncate(0).BigInt(), nil
}

// FromUnits converts a raw on-chain amount to a human decimal.
func FromUnits(t Token, raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}

// Format renders "1.5 WETH".
func Format(t Token, d decimal.Decimal) string {
	return d.String() + " " + t.Symbol
}

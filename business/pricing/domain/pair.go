// Package domain contains the core domain types for the pricing context.
package domain

import (
	"strings"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// VenueID identifies a configured trading venue.
type VenueID string

// Pair is a trading pair of token symbols (e.g., WETH/USDC).
type Pair struct {
	Base  string
	Quote string
}

// NewPair upper-cases both legs.
func NewPair(base, quote string) Pair {
	return Pair{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
}

// ParsePair accepts "BASE/QUOTE" or "BASE-QUOTE".
func ParsePair(s string) (Pair, error) {
	sep := "/"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	base, quote, ok := strings.Cut(strings.TrimSpace(s), sep)
	base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
	if !ok || base == "" || quote == "" {
		return Pair{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("pair must look like BASE/QUOTE: "+s))
	}
	return NewPair(base, quote), nil
}

// String returns the pair symbol (e.g., "WETH/USDC").
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// GasClass is the execution complexity of a route.
type GasClass int

const (
	GasSimple GasClass = iota
	GasMedium
	GasComplex
)

// String returns the config spelling.
func (g GasClass) String() string {
	switch g {
	case GasMedium:
		return "medium"
	case GasComplex:
		return "complex"
	default:
		return "simple"
	}
}

// ParseGasClass accepts simple, medium or complex. Empty means simple.
func ParseGasClass(s string) (GasClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return GasSimple, nil
	case "medium":
		return GasMedium, nil
	case "complex":
		return GasComplex, nil
	}
	return GasSimple, fmt.Errorf("unknown gas class %q", s)
}

// MaxGasClass returns the more complex of a and b.
func MaxGasClass(a, b GasClass) GasClass {
	if a > b {
		return a
	}
	return b
}

// GasSchedule is the USD gas estimate per complexity class.
type GasSchedule struct {
	Simple  decimal.Decimal
	Medium  decimal.Decimal
	Complex decimal.Decimal
}

// For returns the estimate for class.
func (s GasSchedule) For(class GasClass) decimal.Decimal {
	switch class {
	case GasMedium:
		return s.Medium
	case GasComplex:
		return s.Complex
	default:
		return s.Simple
	}
}

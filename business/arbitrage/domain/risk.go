package domain

import "github.com/shopspring/decimal"

// RiskTier classifies an opportunity.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
)

func (r RiskTier) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	default:
		return "HIGH"
	}
}

// Priority base per tier. Higher is executed first.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// BasePriority maps a tier to its priority base: LOW risk ranks highest.
func (r RiskTier) BasePriority() int {
	switch r {
	case RiskLow:
		return PriorityHigh
	case RiskMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Risk thresholds. Coverage is min venue liquidity divided by notional.
var (
	LowRiskMinConfidence  = decimal.RequireFromString("0.70")
	LowRiskMaxImpact      = decimal.RequireFromString("0.005")
	LowRiskMinCoverage    = decimal.NewFromInt(20)
	HighRiskMaxConfidence = decimal.RequireFromString("0.40")
	HighRiskMinImpact     = decimal.RequireFromString("0.02")
	HighRiskMaxCoverage   = decimal.NewFromInt(5)
)

// ClassifyRisk derives the tier from confidence, impact factor and coverage.
// HIGH wins over LOW when both match.
func ClassifyRisk(confidence, impactFactor, coverage decimal.Decimal) RiskTier {
	if confidence.LessThan(HighRiskMaxConfidence) ||
		impactFactor.GreaterThan(HighRiskMinImpact) ||
		coverage.LessThan(HighRiskMaxCoverage) {
		return RiskHigh
	}
	if confidence.GreaterThanOrEqual(LowRiskMinConfidence) &&
		impactFactor.LessThanOrEqual(LowRiskMaxImpact) &&
		coverage.GreaterThanOrEqual(LowRiskMinCoverage) {
		return RiskLow
	}
	return RiskMedium
}

package app

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

// Confidence weights and saturation points.
var (
	weightSpread    = decimal.RequireFromString("0.4")
	weightLiquidity = decimal.RequireFromString("0.3")
	weightStability = decimal.RequireFromString("0.2")
	weightFreshness = decimal.RequireFromString("0.1")

	// SpreadSaturation is the spread (1%) at which the spread factor maxes out.
	SpreadSaturation = decimal.RequireFromString("0.01")
	// LiquiditySaturation is the coverage (liquidity / notional) at which the
	// liquidity factor maxes out.
	LiquiditySaturation = decimal.NewFromInt(50)
	// ImpactPenaltyScale steepens the stability penalty for price impact.
	ImpactPenaltyScale = decimal.NewFromInt(100)
)

const confidencePlaces = 4

// opportunityNamespace seeds deterministic opportunity ids.
var opportunityNamespace = uuid.MustParse("6f1c2f5e-8d0b-4a8e-9d5c-2b7f0e1a9c44")

var one = decimal.NewFromInt(1)

// Scorer turns one pair's quotes into profitable opportunities. Score does no
// I/O and never reads the clock: identical inputs yield identical output.
type Scorer struct {
	logger   logger.LoggerInterface
	filtered metric.Int64Counter
}

// NewScorer creates a Scorer.
func NewScorer(log logger.LoggerInterface) (*Scorer, error) {
	filtered, err := otel.Meter(meterName).Int64Counter(
		"arbitrage_candidates_filtered_total",
		metric.WithDescription("Candidate routes rejected during scoring"),
	)
	if err != nil {
		return nil, err
	}
	return &Scorer{logger: log, filtered: filtered}, nil
}

// Score enumerates every ordered (buy, sell) venue pair where the sell price is
// above the buy price and returns those whose net profit falls in the window.
// Output is ordered by buy venue, then sell venue.
func (s *Scorer) Score(ctx context.Context, pair pricingDomain.Pair, quotes map[pricingDomain.VenueID]pricingDomain.Quote, notional decimal.Decimal, params domain.ScoringParams) []domain.Opportunity {
	if !notional.IsPositive() || len(quotes) < 2 {
		return nil
	}

	venues := make([]pricingDomain.VenueID, 0, len(quotes))
	for id, q := range quotes {
		if params.MaxQuoteAge > 0 && q.Age(params.Now) > params.MaxQuoteAge {
			s.reject(ctx, apperror.CodeStalePrice, pair, id, "")
			continue
		}
		venues = append(venues, id)
	}
	slices.Sort(venues)

	var out []domain.Opportunity
	for _, buyID := range venues {
		for _, sellID := range venues {
			if buyID == sellID {
				continue
			}
			buy, sell := quotes[buyID], quotes[sellID]
			if !sell.Price().GreaterThan(buy.Price()) {
				continue
			}

			opp := evaluate(pair, buy, sell, notional, params)
			if !params.InWindow(opp.NetProfit) {
				s.reject(ctx, apperror.CodeInsufficientProfit, pair, buyID, sellID,
					"net_profit", opp.NetProfit.StringFixed(2))
				continue
			}
			out = append(out, opp)
		}
	}
	return out
}

func (s *Scorer) reject(ctx context.Context, code apperror.Code, pair pricingDomain.Pair, buy, sell pricingDomain.VenueID, args ...any) {
	s.filtered.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(code))))
	fields := append([]any{"reason", code, "pair", pair.String(), "buy", buy, "sell", sell}, args...)
	s.logger.Debug(ctx, "candidate filtered", fields...)
}

// evaluate computes the full cost breakdown for one route.
func evaluate(pair pricingDomain.Pair, buy, sell pricingDomain.Quote, notional decimal.Decimal, p domain.ScoringParams) domain.Opportunity {
	buyPrice, sellPrice := buy.Price(), sell.Price()

	gross := notional.Mul(sellPrice.Sub(buyPrice)).Div(buyPrice)

	minLiq := decimal.Min(buy.Liquidity(), sell.Liquidity())
	impactFactor := p.ImpactCap
	if minLiq.IsPositive() {
		impactFactor = decimal.Min(notional.Div(minLiq), p.ImpactCap)
	}

	complexity := domain.MaxGasClass(p.ComplexityOf(buy.Venue()), p.ComplexityOf(sell.Venue()))

	costs := domain.Costs{
		BuyFee:      notional.Mul(p.FeeRate(buy)),
		SellFee:     notional.Mul(p.FeeRate(sell)),
		LoanPremium: notional.Mul(p.LoanPremiumRate),
		Gas:         p.Gas.For(complexity),
		PriceImpact: notional.Mul(impactFactor),
	}
	net := gross.Sub(costs.Total())

	coverage := minLiq.Div(notional)
	confidence := scoreConfidence(buy, sell, coverage, impactFactor, p)
	risk := domain.ClassifyRisk(confidence, impactFactor, coverage)

	quotedAt := buy.Timestamp()
	if sell.Timestamp().Before(quotedAt) {
		quotedAt = sell.Timestamp()
	}

	return domain.Opportunity{
		ID:           opportunityID(pair, buy.Venue(), sell.Venue(), notional, p.Now),
		Pair:         pair,
		BuyVenue:     buy.Venue(),
		SellVenue:    sell.Venue(),
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
		Notional:     notional,
		GrossProfit:  gross,
		Costs:        costs,
		NetProfit:    net,
		Confidence:   confidence,
		Risk:         risk,
		Priority:     risk.BasePriority() + p.SweetSpotBoost(net),
		Complexity:   complexity,
		ImpactFactor: impactFactor,
		QuotedAt:     quotedAt,
		CreatedAt:    p.Now,
	}
}

// scoreConfidence combines spread, liquidity, stability and freshness into [0,1].
func scoreConfidence(buy, sell pricingDomain.Quote, coverage, impactFactor decimal.Decimal, p domain.ScoringParams) decimal.Decimal {
	spreadPct := sell.Price().Sub(buy.Price()).Div(buy.Price())
	spread := clamp01(spreadPct.Div(SpreadSaturation))
	liquidity := clamp01(coverage.Div(LiquiditySaturation))
	stability := one.Div(one.Add(ImpactPenaltyScale.Mul(impactFactor)))

	freshness := one
	if p.MaxQuoteAge > 0 {
		age := buy.Age(p.Now)
		if a := sell.Age(p.Now); a > age {
			age = a
		}
		if age < 0 {
			age = 0
		}
		ratio := decimal.NewFromInt(int64(age)).Div(decimal.NewFromInt(int64(p.MaxQuoteAge)))
		freshness = clamp01(one.Sub(ratio))
	}
	freshness = freshness.Mul(decimal.Min(buy.Confidence(), sell.Confidence()))

	c := weightSpread.Mul(spread).
		Add(weightLiquidity.Mul(liquidity)).
		Add(weightStability.Mul(stability)).
		Add(weightFreshness.Mul(freshness))
	return clamp01(c).Round(confidencePlaces)
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

// opportunityID is a name-based UUID so rescoring the same inputs yields the
// same id.
func opportunityID(pair pricingDomain.Pair, buy, sell pricingDomain.VenueID, notional decimal.Decimal, at time.Time) string {
	key := pair.String() + "|" + string(buy) + "|" + string(sell) + "|" + notional.String() + "|" + at.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(opportunityNamespace, []byte(key)).String()
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	arbDomain "github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"

	DefaultMaxOpportunityAge = 30 * time.Second
	defaultCallTimeout       = 20 * time.Second
	defaultLockTTL           = 60 * time.Second
)

// Simulated realized profit is net * (varianceBase + varianceSlope * confidence).
var (
	varianceBase  = decimal.RequireFromString("0.85")
	varianceSlope = decimal.RequireFromString("0.15")
)

// Routes are the typed venue and token tables used to build swap legs.
type Routes struct {
	Routers map[pricingDomain.VenueID]common.Address
	Tokens  map[string]domain.Token
}

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	Mode              domain.Mode
	MaxOpportunityAge time.Duration
	CallTimeout       time.Duration
	LockTTL           time.Duration
	SimulatedGas      map[arbDomain.GasClass]uint64
	Routes            Routes
}

type coordinatorMetrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

// Coordinator runs one opportunity through the precondition checks and
// settlement. It executes at most one opportunity at a time and never retries.
type Coordinator struct {
	cfg        CoordinatorConfig
	gate       *circuitbreaker.Gate
	oracle     LiquidityOracle
	approvals  ApprovalChecker
	settlement SettlementPrimitive
	locker     PairLocker
	history    HistoryStore
	logger     logger.LoggerInterface
	now        func() time.Time

	mu sync.Mutex

	tracer  trace.Tracer
	metrics *coordinatorMetrics
}

// NewCoordinator creates a Coordinator. settlement may be nil in SIMULATED mode.
func NewCoordinator(
	cfg CoordinatorConfig,
	gate *circuitbreaker.Gate,
	oracle LiquidityOracle,
	approvals ApprovalChecker,
	settlement SettlementPrimitive,
	locker PairLocker,
	history HistoryStore,
	log logger.LoggerInterface,
) (*Coordinator, error) {
	if cfg.Mode == domain.ModeLive && settlement == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("LIVE mode requires a settlement primitive"))
	}
	if gate == nil || oracle == nil || approvals == nil || locker == nil || history == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("coordinator dependencies are required"))
	}
	if cfg.MaxOpportunityAge <= 0 {
		cfg.MaxOpportunityAge = DefaultMaxOpportunityAge
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	c := &Coordinator{
		cfg:        cfg,
		gate:       gate,
		oracle:     oracle,
		approvals:  approvals,
		settlement: settlement,
		locker:     locker,
		history:    history,
		logger:     log,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return c, nil
}

func (c *Coordinator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &coordinatorMetrics{}

	c.metrics.executions, err = meter.Int64Counter(
		"execution_results_total",
		metric.WithDescription("Execution results by kind"),
	)
	if err != nil {
		return err
	}

	c.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_ms",
		metric.WithDescription("Execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Mode returns the configured settlement mode.
func (c *Coordinator) Mode() domain.Mode { return c.cfg.Mode }

// Breaker returns the execution gate.
func (c *Coordinator) Breaker() *circuitbreaker.Gate { return c.gate }

// Execute runs opp. Precondition order: pair lock, breaker, staleness,
// liquidity, approvals, settlement. Every failure past the breaker feeds it;
// a held pair lock and an open breaker do not. Every result is appended to
// history.
func (c *Coordinator) Execute(ctx context.Context, opp arbDomain.Opportunity) domain.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "execution.execute",
		trace.WithAttributes(
			attribute.String("opportunity_id", opp.ID),
			attribute.String("pair", opp.Pair.String()),
			attribute.String("buy", string(opp.BuyVenue)),
			attribute.String("sell", string(opp.SellVenue)),
			attribute.String("mode", c.cfg.Mode.String()),
		),
	)
	defer span.End()

	attempt := domain.Attempt{
		OpportunityID:   opp.ID,
		Pair:            opp.Pair,
		BuyVenue:        opp.BuyVenue,
		SellVenue:       opp.SellVenue,
		Mode:            c.cfg.Mode,
		EstimatedProfit: opp.NetProfit,
		StartedAt:       c.now(),
	}

	res := c.execute(ctx, opp, attempt)

	c.metrics.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(res.ErrorKind)),
		attribute.String("mode", res.Mode.String()),
	))
	c.metrics.duration.Record(ctx, float64(res.Duration.Milliseconds()))

	if res.Success {
		span.SetStatus(codes.Ok, "executed")
	} else {
		span.SetAttributes(attribute.String("error_kind", string(res.ErrorKind)))
		span.SetStatus(codes.Error, res.ErrorMessage)
	}

	if err := c.history.Append(ctx, res); err != nil {
		c.logger.Error(ctx, "failed to record execution", "id", res.ID, "error", err)
	}
	return res
}

func (c *Coordinator) execute(ctx context.Context, opp arbDomain.Opportunity, attempt domain.Attempt) domain.ExecutionResult {
	release, err := c.locker.Acquire(ctx, lockKey(opp.Pair), c.cfg.LockTTL)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeExecutionInProgress) {
			return c.fail(ctx, attempt, err)
		}
		// The lock store itself failed.
		done, gateErr := c.gate.Allow()
		if gateErr != nil {
			return c.fail(ctx, attempt, gateErr)
		}
		done(false)
		return c.fail(ctx, attempt, err)
	}
	defer release()

	done, err := c.gate.Allow()
	if err != nil {
		return c.fail(ctx, attempt, err)
	}

	if age := attempt.StartedAt.Sub(opp.QuotedAt); age > c.cfg.MaxOpportunityAge {
		done(false)
		return c.fail(ctx, attempt, apperror.New(apperror.CodeStalePrice,
			apperror.WithContext(fmt.Sprintf("opportunity is %s old, max %s", age.Round(time.Millisecond), c.cfg.MaxOpportunityAge))))
	}

	receipt, err := c.run(ctx, opp)
	done(err == nil)
	if err != nil {
		return c.fail(ctx, attempt, err)
	}
	return domain.NewSuccess(attempt, receipt, c.now())
}

func (c *Coordinator) fail(ctx context.Context, attempt domain.Attempt, err error) domain.ExecutionResult {
	res := domain.NewFailure(attempt, err, c.now())
	c.logger.Debug(ctx, "execution not completed",
		"pair", attempt.Pair.String(),
		"kind", res.ErrorKind,
		"error", err,
	)
	return res
}

// run performs the breaker-guarded steps. A panic in a collaborator becomes
// UNKNOWN_EXECUTION_ERROR.
func (c *Coordinator) run(ctx context.Context, opp arbDomain.Opportunity) (receipt domain.SettlementReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.New(apperror.CodeUnknownExecution,
				apperror.WithContext(fmt.Sprintf("recovered panic: %v", r)))
		}
	}()

	borrow, leg1, leg2, err := c.buildLegs(opp)
	if err != nil {
		return receipt, err
	}

	available, err := c.oracle.AvailableLiquidity(ctx, borrow)
	if err != nil {
		return receipt, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithCause(err),
			apperror.WithContext("liquidity check failed for "+borrow.Symbol))
	}
	if available.LessThan(opp.Notional) {
		return receipt, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext(fmt.Sprintf("%s available %s < notional %s", borrow.Symbol, available, opp.Notional)))
	}

	if err := c.approvals.CheckApprovals(ctx, leg1, leg2); err != nil {
		if !apperror.HasCode(err, apperror.CodeApprovalInvalid) {
			err = apperror.New(apperror.CodeApprovalInvalid, apperror.WithCause(err))
		}
		return receipt, err
	}

	if c.cfg.Mode == domain.ModeSimulated {
		return c.simulate(opp), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	receipt, err = c.settlement.ExecuteAtomicSwap(callCtx, borrow, opp.Notional, leg1, leg2)
	if err != nil {
		if !apperror.HasCode(err, apperror.CodeSettlementFailed) {
			err = apperror.New(apperror.CodeSettlementFailed, apperror.WithCause(err))
		}
		return domain.SettlementReceipt{}, err
	}
	return receipt, nil
}

// simulate derives realized profit deterministically from the opportunity's
// confidence. No settlement call is made.
func (c *Coordinator) simulate(opp arbDomain.Opportunity) domain.SettlementReceipt {
	return domain.SettlementReceipt{
		TxID:           "sim-" + opp.ID,
		ProfitRealized: opp.NetProfit.Mul(VarianceFactor(opp.Confidence)),
		GasUsed:        c.cfg.SimulatedGas[opp.Complexity],
	}
}

// VarianceFactor is 0.85 + 0.15 * confidence.
func VarianceFactor(confidence decimal.Decimal) decimal.Decimal {
	return varianceBase.Add(varianceSlope.Mul(confidence))
}

// buildLegs borrows the quote token, buys base on the buy venue and sells it
// back on the sell venue.
func (c *Coordinator) buildLegs(opp arbDomain.Opportunity) (domain.Token, domain.SwapLeg, domain.SwapLeg, error) {
	base, ok := c.cfg.Routes.Tokens[opp.Pair.Base]
	if !ok {
		return domain.Token{}, domain.SwapLeg{}, domain.SwapLeg{}, unknownRoute("token " + opp.Pair.Base)
	}
	quote, ok := c.cfg.Routes.Tokens[opp.Pair.Quote]
	if !ok {
		return domain.Token{}, domain.SwapLeg{}, domain.SwapLeg{}, unknownRoute("token " + opp.Pair.Quote)
	}
	if !opp.BuyPrice.IsPositive() {
		return domain.Token{}, domain.SwapLeg{}, domain.SwapLeg{}, unknownRoute("non-positive buy price")
	}

	leg1 := domain.SwapLeg{
		Venue:         opp.BuyVenue,
		Router:        c.cfg.Routes.Routers[opp.BuyVenue],
		TokenIn:       quote,
		TokenOut:      base,
		AmountIn:      opp.Notional,
		ExpectedPrice: opp.BuyPrice,
	}
	leg2 := domain.SwapLeg{
		Venue:         opp.SellVenue,
		Router:        c.cfg.Routes.Routers[opp.SellVenue],
		TokenIn:       base,
		TokenOut:      quote,
		AmountIn:      opp.Notional.Div(opp.BuyPrice).Truncate(int32(base.Decimals)),
		ExpectedPrice: opp.SellPrice,
	}
	return quote, leg1, leg2, nil
}

func unknownRoute(what string) error {
	return apperror.New(apperror.CodeUnknownExecution, apperror.WithContext("no route for "+what))
}

func lockKey(pair pricingDomain.Pair) string {
	return "lock:pair:" + pair.String()
}

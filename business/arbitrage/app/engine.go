package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

const (
	tracerName = "arbitrage"
	meterName  = "arbitrage"
)

// ErrStopRequested is returned by RunCycle when the operator asked to stop.
var ErrStopRequested = apperror.New(apperror.CodeStopRequested)

// PairTarget is one configured pair to scan.
type PairTarget struct {
	Pair     pricingDomain.Pair
	Notional decimal.Decimal
	Venues   []pricingDomain.VenueID
}

// EngineConfig holds configuration for the engine.
type EngineConfig struct {
	Pairs            []PairTarget
	Scoring          domain.ScoringParams
	ScanInterval     time.Duration
	MaxTradeNotional decimal.Decimal
}

// PairReport summarizes one pair's scan.
type PairReport struct {
	Pair          pricingDomain.Pair
	Notional      decimal.Decimal
	Quotes        int
	Opportunities int
	Err           string
}

// CycleReport is everything one cycle observed and did.
type CycleReport struct {
	Cycle         int64
	StartedAt     time.Time
	Duration      time.Duration
	Pairs         []PairReport
	Opportunities []domain.Opportunity // ranked
	Execution     *execDomain.ExecutionResult
	Paused        bool
	Gas           domain.GasSchedule
	Breaker       circuitbreaker.GateState
	Metrics       MetricsSnapshot
}

type engineMetrics struct {
	cycleLatency metric.Float64Histogram
	pairErrors   metric.Int64Counter
}

// Engine runs the scan → score → rank → execute loop.
type Engine struct {
	cfg      EngineConfig
	quotes   QuoteFetcher
	scorer   *Scorer
	executor Executor
	control  ControlSource
	reporter Reporter
	gas      GasPricer     // nil for the static schedule
	breaker  BreakerStatus // nil when not reported
	store    *MetricsStore
	logger   logger.LoggerInterface
	now      func() time.Time

	mu          sync.Mutex
	cycle       int64
	lastControl execDomain.Control

	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine creates a new Engine.
func NewEngine(
	cfg EngineConfig,
	quotes QuoteFetcher,
	scorer *Scorer,
	executor Executor,
	control ControlSource,
	reporter Reporter,
	gas GasPricer,
	breaker BreakerStatus,
	store *MetricsStore,
	log logger.LoggerInterface,
) (*Engine, error) {
	if cfg.ScanInterval <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("scan interval must be positive"))
	}
	e := &Engine{
		cfg:      cfg,
		quotes:   quotes,
		scorer:   scorer,
		executor: executor,
		control:  control,
		reporter: reporter,
		gas:      gas,
		breaker:  breaker,
		store:    store,
		logger:   log,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.cycleLatency, err = meter.Float64Histogram(
		"arbitrage_cycle_duration_ms",
		metric.WithDescription("Engine cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	e.metrics.pairErrors, err = meter.Int64Counter(
		"arbitrage_pair_scan_errors_total",
		metric.WithDescription("Pairs skipped because quoting failed"),
	)
	return err
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *MetricsStore { return e.store }

// Run starts the reporter, runs a cycle immediately and then one per scan
// interval. It returns nil when ctx is cancelled or the operator stops it.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info(ctx, "starting arbitrage engine",
		"pairs", len(e.cfg.Pairs),
		"scan_interval", e.cfg.ScanInterval.String(),
	)

	if err := e.reporter.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := e.reporter.Stop(); err != nil {
			e.logger.Warn(ctx, "reporter stop failed", "error", err)
		}
	}()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			e.logger.Info(ctx, "engine stopping", "reason", ctx.Err())
			return nil
		}

		if _, err := e.RunCycle(ctx); err != nil {
			if apperror.HasCode(err, apperror.CodeStopRequested) {
				e.logger.Info(ctx, "stop requested by operator, engine exiting")
				return nil
			}
			e.logger.Error(ctx, "cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "engine stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full scan. A cycle completes and reports even when
// every venue is down; the only error is ErrStopRequested.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cycle++
	started := e.now()
	report := CycleReport{Cycle: e.cycle, StartedAt: started}

	ctx, span := e.tracer.Start(ctx, "arbitrage.cycle",
		trace.WithAttributes(attribute.Int64("cycle", e.cycle)),
	)
	defer span.End()

	ctrl := e.readControl(ctx)
	if ctrl.Stop {
		span.SetStatus(codes.Ok, "stop requested")
		return report, ErrStopRequested
	}

	params := e.cfg.Scoring.At(started)
	if e.gas != nil {
		sched, err := e.gas.Schedule(ctx)
		if err != nil {
			e.logger.Warn(ctx, "live gas refresh failed, using static schedule", "error", err)
		} else {
			params = params.WithGas(sched)
		}
	}
	report.Gas = params.Gas

	var found []domain.Opportunity
	for _, target := range e.cfg.Pairs {
		pr, opps := e.scanPair(ctx, target, params)
		report.Pairs = append(report.Pairs, pr)
		found = append(found, opps...)
	}

	ranked := Rank(found)
	report.Opportunities = ranked
	e.store.IncrementFound(len(ranked))

	switch {
	case ctrl.Pause:
		report.Paused = true
		if len(ranked) > 0 {
			e.logger.Info(ctx, "paused, not executing", "opportunities", len(ranked))
		}
	case len(ranked) > 0:
		res := e.executor.Execute(ctx, ranked[0])
		report.Execution = &res
		e.record(ctx, res)
	}

	e.store.IncrementCycles()
	if e.breaker != nil {
		report.Breaker = e.breaker.Snapshot()
	}
	report.Metrics = e.store.Snapshot()
	report.Duration = e.now().Sub(started)

	e.metrics.cycleLatency.Record(ctx, float64(report.Duration.Milliseconds()))
	span.SetAttributes(
		attribute.Int("opportunities", len(ranked)),
		attribute.Bool("paused", report.Paused),
		attribute.Bool("executed", report.Execution != nil),
	)
	span.SetStatus(codes.Ok, "cycle complete")

	e.reporter.Report(ctx, report)
	return report, nil
}

func (e *Engine) scanPair(ctx context.Context, target PairTarget, params domain.ScoringParams) (PairReport, []domain.Opportunity) {
	pr := PairReport{Pair: target.Pair, Notional: target.Notional}

	if e.cfg.MaxTradeNotional.IsPositive() && target.Notional.GreaterThan(e.cfg.MaxTradeNotional) {
		pr.Err = "notional above max trade notional"
		e.logger.Warn(ctx, "pair skipped", "pair", target.Pair.String(), "reason", pr.Err)
		return pr, nil
	}

	quotes, err := e.quotes.FetchQuotes(ctx, target.Pair, target.Notional, target.Venues)
	if err != nil {
		pr.Err = err.Error()
		e.metrics.pairErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pair", target.Pair.String()),
			attribute.String("code", string(apperror.GetCode(err))),
		))
		e.logger.Warn(ctx, "pair skipped", "pair", target.Pair.String(), "error", err)
		return pr, nil
	}
	pr.Quotes = len(quotes)

	opps := e.scorer.Score(ctx, target.Pair, quotes, target.Notional, params)
	pr.Opportunities = len(opps)
	return pr, opps
}

// readControl polls the admin record once. A read error reuses the last
// known record.
func (e *Engine) readControl(ctx context.Context) execDomain.Control {
	if e.control == nil {
		return e.lastControl
	}
	ctrl, err := e.control.Read(ctx)
	if err != nil {
		e.logger.Warn(ctx, "control read failed, using last known state", "error", err,
			"pause", e.lastControl.Pause, "stop", e.lastControl.Stop)
		return e.lastControl
	}
	if ctrl.Pause != e.lastControl.Pause {
		e.logger.Info(ctx, "control changed", "pause", ctrl.Pause)
	}
	e.lastControl = ctrl
	return ctrl
}

func (e *Engine) record(ctx context.Context, res execDomain.ExecutionResult) {
	switch {
	case res.Success:
		e.store.IncrementExecuted(1)
		e.store.AddProfit(res.RealizedProfit)
		e.logger.Info(ctx, "execution succeeded",
			"pair", res.Pair.String(),
			"buy", res.BuyVenue,
			"sell", res.SellVenue,
			"mode", res.Mode.String(),
			"estimated", res.EstimatedProfit.StringFixed(2),
			"realized", res.RealizedProfit.StringFixed(2),
			"tx", res.TxID,
		)
	case res.ErrorKind.Skipped():
		e.store.IncrementSkipped(1)
		e.logger.Info(ctx, "execution skipped", "pair", res.Pair.String(), "kind", res.ErrorKind)
	default:
		e.store.IncrementFailed(1)
		e.logger.Warn(ctx, "execution failed",
			"pair", res.Pair.String(),
			"kind", res.ErrorKind,
			"error", res.ErrorMessage,
		)
	}
}

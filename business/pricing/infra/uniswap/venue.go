// Package uniswap implements a QuoteSource over a Uniswap V3 style AMM.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/evm"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/ratelimit"
)

const (
	tracerName = "uniswap"
	meterName  = "uniswap"
)

// Ensure Venue implements QuoteSource.
var _ app.QuoteSource = (*Venue)(nil)

type venueMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Config describes one AMM deployment.
type Config struct {
	ID           domain.VenueID
	Quoter       common.Address
	Factory      common.Address
	FeeTier      uint32
	RateLimitRPM int
}

// Venue quotes a pair by simulating an exact-input swap of the notional
// (quote token) into the base token through QuoterV2.
//
// The reported price is the ask side (quote -> base) and is used for both
// legs. When this venue is the sell leg the real base -> quote proceeds are
// lower by roughly the pool fee plus the round-trip impact, so the sell
// price is optimistic by that amount. The fee itself is still charged once
// through the reported Fee.
type Venue struct {
	cfg        Config
	caller     evm.Caller
	quoterABI  abi.ABI
	factoryABI abi.ABI
	erc20      *evm.ERC20
	tokens     *asset.Registry

	poolsMu sync.RWMutex
	pools   map[domain.Pair]common.Address

	logger logger.LoggerInterface
	now    func() time.Time

	tracer  trace.Tracer
	metrics *venueMetrics
}

// NewVenue creates a Venue. Every RPC goes through a rate limiter and a
// circuit breaker.
func NewVenue(client evm.Caller, cfg Config, tokens *asset.Registry, log logger.LoggerInterface) (*Venue, error) {
	if cfg.FeeTier == 0 {
		cfg.FeeTier = FeeTier030
	}

	quoterABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	factoryABI, err := abi.JSON(strings.NewReader(FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}

	caller := &guardedCaller{
		inner:   client,
		cb:      circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswap-" + string(cfg.ID))),
		limiter: ratelimit.New(cfg.RateLimitRPM),
	}
	erc20, err := evm.NewERC20(caller)
	if err != nil {
		return nil, err
	}

	v := &Venue{
		cfg:        cfg,
		caller:     caller,
		quoterABI:  quoterABI,
		factoryABI: factoryABI,
		erc20:      erc20,
		tokens:     tokens,
		pools:      make(map[domain.Pair]common.Address),
		logger:     log,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	if err := v.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return v, nil
}

func (v *Venue) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	v.metrics = &venueMetrics{}

	v.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswap_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	v.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswap_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	v.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswap_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

// Venue returns the configured id.
func (v *Venue) Venue() domain.VenueID { return v.cfg.ID }

// Quote prices notional of pair.Quote into pair.Base.
func (v *Venue) Quote(ctx context.Context, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error) {
	ctx, span := v.tracer.Start(ctx, "uniswap.quote",
		trace.WithAttributes(
			attribute.String("venue", string(v.cfg.ID)),
			attribute.String("pair", pair.String()),
			attribute.String("notional", notional.String()),
			attribute.Int("fee_tier", int(v.cfg.FeeTier)),
		),
	)
	defer span.End()

	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("venue", string(v.cfg.ID)))
	v.metrics.quotesTotal.Add(ctx, 1, attrs)

	q, err := v.quote(ctx, pair, notional)
	v.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		v.metrics.quoteErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return domain.Quote{}, err
	}

	span.SetAttributes(
		attribute.String("price", q.Price().String()),
		attribute.String("liquidity", q.Liquidity().String()),
	)
	span.SetStatus(codes.Ok, "quote received")
	return q, nil
}

func (v *Venue) quote(ctx context.Context, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error) {
	base, ok := v.tokens.Get(pair.Base)
	if !ok {
		return domain.Quote{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("unknown token "+pair.Base))
	}
	quote, ok := v.tokens.Get(pair.Quote)
	if !ok {
		return domain.Quote{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("unknown token "+pair.Quote))
	}

	pool, err := v.pool(ctx, pair, base.Address, quote.Address)
	if err != nil {
		return domain.Quote{}, err
	}

	amountIn, err := asset.ToUnitsFloor(quote, notional)
	if err != nil {
		return domain.Quote{}, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}

	res, err := v.quoteExactInputSingle(ctx, quote.Address, base.Address, amountIn)
	if err != nil {
		return domain.Quote{}, err
	}
	baseOut := asset.FromUnits(base, res.AmountOut)
	if !baseOut.IsPositive() {
		return domain.Quote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quoter returned zero output for "+pair.String()))
	}

	balance, err := v.erc20.BalanceOf(ctx, quote.Address, pool)
	if err != nil {
		return domain.Quote{}, err
	}

	fee := FeeFraction(v.cfg.FeeTier)
	// The quoter output is net of the pool fee; the fee is reported separately.
	price := notional.Mul(decimal.NewFromInt(1).Sub(fee)).Div(baseOut)

	v.logger.Debug(ctx, "uniswap quote",
		"venue", v.cfg.ID,
		"pair", pair.String(),
		"amount_in", amountIn.String(),
		"amount_out", res.AmountOut.String(),
		"gas_estimate", res.GasEstimate.String(),
		"pool", pool.Hex(),
	)

	return domain.NewQuote(domain.QuoteParams{
		Venue:      v.cfg.ID,
		Pair:       pair,
		Price:      price,
		Liquidity:  asset.FromUnits(quote, balance),
		Fee:        fee,
		Confidence: decimal.NewFromInt(1),
		Notional:   notional,
		Timestamp:  v.now(),
	})
}

// pool resolves and memoizes the pool address for pair.
func (v *Venue) pool(ctx context.Context, pair domain.Pair, tokenA, tokenB common.Address) (common.Address, error) {
	v.poolsMu.RLock()
	addr, ok := v.pools[pair]
	v.poolsMu.RUnlock()
	if ok {
		return addr, nil
	}

	callData, err := v.factoryABI.Pack("getPool", tokenA, tokenB, big.NewInt(int64(v.cfg.FeeTier)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to encode getPool: %w", err)
	}
	out, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &v.cfg.Factory, Data: callData}, nil)
	if err != nil {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("getPool "+pair.String()))
	}
	values, err := v.factoryABI.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getPool: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected getPool output length: %d", len(values))
	}
	addr, ok = values[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, apperror.New(apperror.CodePoolNotFound,
			apperror.WithContext(fmt.Sprintf("%s fee tier %d", pair, v.cfg.FeeTier)))
	}

	v.poolsMu.Lock()
	v.pools[pair] = addr
	v.poolsMu.Unlock()
	return addr, nil
}

// quoteExactInputSingle calls QuoterV2.quoteExactInputSingle at the configured fee tier.
func (v *Venue) quoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*QuoteResult, error) {
	callData, err := v.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(v.cfg.FeeTier)),
		SqrtPriceLimitX96: big.NewInt(0), // No price limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &v.cfg.Quoter, Data: callData}, nil)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", v.cfg.FeeTier)))
	}

	outputs, err := v.quoterABI.Unpack("quoteExactInputSingle", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if len(outputs) < 4 {
		return nil, fmt.Errorf("unexpected output length: %d", len(outputs))
	}

	return &QuoteResult{
		AmountOut:               outputs[0].(*big.Int),
		SqrtPriceX96After:       outputs[1].(*big.Int),
		InitializedTicksCrossed: outputs[2].(uint32),
		GasEstimate:             outputs[3].(*big.Int),
	}, nil
}

// guardedCaller rate-limits eth_call and runs it through a circuit breaker.
type guardedCaller struct {
	inner   evm.Caller
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	limiter *ratelimit.Limiter
}

func (g *guardedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.cb.Execute(func() ([]byte, error) {
		return g.inner.CallContract(ctx, msg, block)
	})
}

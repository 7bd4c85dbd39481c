// Package chain reads lender liquidity and router allowances from ERC20
// contracts.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/flashloan-arb/business/execution/app"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/internal/apm"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/evm"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

const tracerName = "chain"

var (
	_ app.LiquidityOracle = (*Oracle)(nil)
	_ app.ApprovalChecker = (*Approvals)(nil)
)

// Oracle reports the borrowable balance as the token's balanceOf the
// configured liquidity holder.
type Oracle struct {
	erc20    *evm.ERC20
	tokens   *asset.Registry
	fallback decimal.Decimal
	logger   logger.LoggerInterface
	tracer   apm.Tracer
}

// NewOracle creates an Oracle. caller may be nil; tokens without a caller or
// a liquidity holder report fallback.
func NewOracle(caller evm.Caller, tokens *asset.Registry, fallback decimal.Decimal, log logger.LoggerInterface) (*Oracle, error) {
	o := &Oracle{tokens: tokens, fallback: fallback, logger: log, tracer: apm.NewTracer(tracerName)}
	if caller != nil {
		erc20, err := evm.NewERC20(caller)
		if err != nil {
			return nil, err
		}
		o.erc20 = erc20
	}
	return o, nil
}

// AvailableLiquidity returns the holder's balance of token.
func (o *Oracle) AvailableLiquidity(ctx context.Context, token domain.Token) (decimal.Decimal, error) {
	t, ok := o.tokens.Get(token.Symbol)
	if !ok || o.erc20 == nil || t.LiquidityHolder == (common.Address{}) {
		return o.fallback, nil
	}

	ctx, span := o.tracer.StartSpanFromContext(ctx, "chain.available_liquidity")
	defer span.End()
	span.SetAttributes(
		attribute.String("token", t.Symbol),
		attribute.String("holder", t.LiquidityHolder.Hex()),
	)

	raw, err := o.erc20.BalanceOf(ctx, t.Address, t.LiquidityHolder)
	if err != nil {
		span.NoticeError(err)
		return decimal.Zero, err
	}
	available := asset.FromUnits(t, raw)
	span.SetAttributes(attribute.String("available", available.String()))
	o.logger.Debug(ctx, "lender liquidity",
		"token", t.Symbol,
		"holder", t.LiquidityHolder.Hex(),
		"available", available.String(),
	)
	return available, nil
}

package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/internal/apm"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/evm"
)

// Approvals checks that each leg's router is whitelisted and that the
// executor has approved it for the leg's input amount.
type Approvals struct {
	erc20         *evm.ERC20
	executor      common.Address
	routers       map[common.Address]struct{}
	allowUnrouted bool
	tracer        apm.Tracer
}

// NewApprovals creates an Approvals checker. With a nil caller or a zero
// executor only the whitelist is enforced. allowUnrouted passes legs whose
// venue has no router, for dry runs against venues that are not on chain.
func NewApprovals(caller evm.Caller, executor common.Address, routers []common.Address, allowUnrouted bool) (*Approvals, error) {
	a := &Approvals{
		executor:      executor,
		allowUnrouted: allowUnrouted,
		routers:       make(map[common.Address]struct{}, len(routers)),
		tracer:        apm.NewTracer(tracerName),
	}
	for _, r := range routers {
		if r != (common.Address{}) {
			a.routers[r] = struct{}{}
		}
	}
	if caller != nil {
		erc20, err := evm.NewERC20(caller)
		if err != nil {
			return nil, err
		}
		a.erc20 = erc20
	}
	return a, nil
}

// CheckApprovals returns an APPROVAL_INVALID error for the first leg that
// fails.
func (a *Approvals) CheckApprovals(ctx context.Context, legs ...domain.SwapLeg) error {
	ctx, span := a.tracer.StartSpanFromContext(ctx, "chain.check_approvals")
	defer span.End()
	span.SetAttributes(attribute.Int("legs", len(legs)))

	err := a.check(ctx, legs)
	span.NoticeError(err)
	return err
}

func (a *Approvals) check(ctx context.Context, legs []domain.SwapLeg) error {
	for _, leg := range legs {
		if leg.Router == (common.Address{}) && a.allowUnrouted {
			continue
		}
		if _, ok := a.routers[leg.Router]; !ok {
			return apperror.New(apperror.CodeApprovalInvalid,
				apperror.WithContext(fmt.Sprintf("router %s for %s not whitelisted", leg.Router.Hex(), leg.Venue)))
		}
		if a.erc20 == nil || a.executor == (common.Address{}) {
			continue
		}

		token := asset.Token{
			Symbol:   leg.TokenIn.Symbol,
			Address:  leg.TokenIn.Address,
			Decimals: leg.TokenIn.Decimals,
		}
		need, err := asset.ToUnitsFloor(token, leg.AmountIn)
		if err != nil {
			return apperror.New(apperror.CodeApprovalInvalid, apperror.WithCause(err))
		}
		allowance, err := a.erc20.Allowance(ctx, leg.TokenIn.Address, a.executor, leg.Router)
		if err != nil {
			return apperror.New(apperror.CodeApprovalInvalid,
				apperror.WithCause(err),
				apperror.WithContext("allowance "+leg.TokenIn.Symbol))
		}
		if allowance.Cmp(need) < 0 {
			return apperror.New(apperror.CodeApprovalInvalid,
				apperror.WithContext(fmt.Sprintf("allowance %s below %s for %s",
					asset.Format(token, asset.FromUnits(token, allowance)),
					asset.Format(token, leg.AmountIn), leg.Venue)))
		}
	}
	return nil
}

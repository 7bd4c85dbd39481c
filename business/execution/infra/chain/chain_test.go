package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

var (
	usdcAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	reserve    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	executor   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	routerA    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	routerB    = common.HexToAddress("0x4444444444444444444444444444444444444444")
	balanceSel = common.FromHex("0x70a08231")
)

// stubCaller answers balanceOf and allowance with fixed values per token.
type stubCaller struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	err        error
	calls      int
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	table := s.allowances
	if bytes.Equal(msg.Data[:4], balanceSel) {
		table = s.balances
	}
	v, ok := table[*msg.To]
	if !ok {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

func testRegistry(t *testing.T) *asset.Registry {
	t.Helper()
	reg, err := asset.NewRegistry(
		asset.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6, LiquidityHolder: reserve},
		asset.Token{Symbol: "WETH", Address: wethAddr, Decimals: 18},
	)
	require.NoError(t, err)
	return reg
}

func TestOracle_AvailableLiquidity(t *testing.T) {
	caller := &stubCaller{balances: map[common.Address]*big.Int{
		usdcAddr: big.NewInt(2_500_000_000_000), // 2.5M USDC
	}}
	fallback := decimal.NewFromInt(10000)
	o, err := NewOracle(caller, testRegistry(t), fallback, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := o.AvailableLiquidity(ctx, domain.Token{Symbol: "USDC"})
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2_500_000)), "got %s", got)

	got, err = o.AvailableLiquidity(ctx, domain.Token{Symbol: "WETH"})
	require.NoError(t, err)
	assert.True(t, got.Equal(fallback), "token without holder uses fallback")
	assert.Equal(t, 1, caller.calls)

	caller.err = errors.New("execution reverted")
	_, err = o.AvailableLiquidity(ctx, domain.Token{Symbol: "USDC"})
	require.Error(t, err)
}

func TestOracle_NoCaller(t *testing.T) {
	o, err := NewOracle(nil, testRegistry(t), decimal.NewFromInt(5000), logger.Discard())
	require.NoError(t, err)

	got, err := o.AvailableLiquidity(context.Background(), domain.Token{Symbol: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, "5000", got.String())
}

func TestApprovals_CheckApprovals(t *testing.T) {
	usdc := domain.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6}
	weth := domain.Token{Symbol: "WETH", Address: wethAddr, Decimals: 18}
	leg1 := domain.SwapLeg{Venue: "univ3", Router: routerA, TokenIn: usdc, TokenOut: weth, AmountIn: decimal.NewFromInt(10000)}
	leg2 := domain.SwapLeg{Venue: "desk", Router: routerB, TokenIn: weth, TokenOut: usdc, AmountIn: decimal.NewFromInt(5)}

	enough := map[common.Address]*big.Int{
		usdcAddr: big.NewInt(10_000_000_000),
		wethAddr: new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)),
	}

	tests := []struct {
		name       string
		routers    []common.Address
		allowances map[common.Address]*big.Int
		callErr    error
		executor   common.Address
		unrouted   bool
		zeroRouter bool
		wantErr    string
	}{
		{name: "approved", routers: []common.Address{routerA, routerB}, allowances: enough, executor: executor},
		{name: "router not whitelisted", routers: []common.Address{routerA}, allowances: enough, executor: executor, wantErr: "not whitelisted"},
		{
			name:       "allowance short",
			routers:    []common.Address{routerA, routerB},
			allowances: map[common.Address]*big.Int{usdcAddr: big.NewInt(9_999_999_999), wethAddr: enough[wethAddr]},
			executor:   executor,
			wantErr:    "below",
		},
		{name: "call failure", routers: []common.Address{routerA, routerB}, callErr: errors.New("rpc down"), executor: executor, wantErr: "allowance USDC"},
		{name: "whitelist only without executor", routers: []common.Address{routerA, routerB}, callErr: errors.New("unused")},
		{name: "unrouted leg rejected", routers: []common.Address{routerA}, zeroRouter: true, wantErr: "not whitelisted"},
		{name: "unrouted leg allowed in dry run", routers: []common.Address{routerA}, zeroRouter: true, unrouted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewApprovals(&stubCaller{allowances: tt.allowances, err: tt.callErr}, tt.executor, tt.routers, tt.unrouted)
			require.NoError(t, err)

			second := leg2
			if tt.zeroRouter {
				second.Router = common.Address{}
			}
			err = a.CheckApprovals(context.Background(), leg1, second)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeApprovalInvalid))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

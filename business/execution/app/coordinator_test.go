package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbDomain "github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

var (
	execNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	weth    = domain.Token{Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18}
	usdc    = domain.Token{Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6}
)

type fakeOracle struct {
	mu        sync.Mutex
	available decimal.Decimal
	err       error
	panicMsg  string
	calls     int
}

func (f *fakeOracle) AvailableLiquidity(_ context.Context, _ domain.Token) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.available, f.err
}

type fakeApprovals struct {
	err   error
	calls int
	legs  []domain.SwapLeg
}

func (f *fakeApprovals) CheckApprovals(_ context.Context, legs ...domain.SwapLeg) error {
	f.calls++
	f.legs = legs
	return f.err
}

type fakeSettlement struct {
	receipt domain.SettlementReceipt
	err     error
	calls   int
}

func (f *fakeSettlement) ExecuteAtomicSwap(_ context.Context, _ domain.Token, _ decimal.Decimal, _, _ domain.SwapLeg) (domain.SettlementReceipt, error) {
	f.calls++
	return f.receipt, f.err
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocker) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakeHistory struct {
	results []domain.ExecutionResult
	err     error
}

func (f *fakeHistory) Append(_ context.Context, r domain.ExecutionResult) error {
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit > len(f.results) {
		limit = len(f.results)
	}
	return f.results[len(f.results)-limit:], nil
}

type coordFixture struct {
	oracle     *fakeOracle
	approvals  *fakeApprovals
	settlement *fakeSettlement
	locker     *fakeLocker
	history    *fakeHistory
	gate       *circuitbreaker.Gate
	coord      *Coordinator
}

func newCoordFixture(t *testing.T, mode domain.Mode) *coordFixture {
	t.Helper()
	f := &coordFixture{
		oracle:    &fakeOracle{available: decimal.NewFromInt(1_000_000)},
		approvals: &fakeApprovals{},
		settlement: &fakeSettlement{receipt: domain.SettlementReceipt{
			TxID: "0xabc", ProfitRealized: decimal.RequireFromString("9.75"), GasUsed: 310000,
		}},
		locker:  &fakeLocker{},
		history: &fakeHistory{},
		gate: circuitbreaker.NewGate(circuitbreaker.GateConfig{
			Name:                   "execution",
			MaxConsecutiveFailures: 5,
			Cooldown:               time.Minute,
		}),
	}

	cfg := CoordinatorConfig{
		Mode:              mode,
		MaxOpportunityAge: 30 * time.Second,
		CallTimeout:       time.Second,
		LockTTL:           time.Minute,
		SimulatedGas:      map[arbDomain.GasClass]uint64{arbDomain.GasSimple: 250000, arbDomain.GasMedium: 400000},
		Routes: Routes{
			Routers: map[pricingDomain.VenueID]common.Address{
				"v1": common.HexToAddress("0x1111111111111111111111111111111111111111"),
				"v2": common.HexToAddress("0x2222222222222222222222222222222222222222"),
			},
			Tokens: map[string]domain.Token{"WETH": weth, "USDC": usdc},
		},
	}

	var err error
	f.coord, err = NewCoordinator(cfg, f.gate, f.oracle, f.approvals, f.settlement, f.locker, f.history, logger.Discard())
	require.NoError(t, err)
	f.coord.now = func() time.Time { return execNow }
	return f
}

func testOpportunity() arbDomain.Opportunity {
	return arbDomain.Opportunity{
		ID:         "6b1f0c1e-0000-5000-8000-000000000001",
		Pair:       pricingDomain.NewPair("WETH", "USDC"),
		BuyVenue:   "v1",
		SellVenue:  "v2",
		BuyPrice:   decimal.RequireFromString("2000"),
		SellPrice:  decimal.RequireFromString("2016"),
		Notional:   decimal.NewFromInt(10000),
		NetProfit:  decimal.RequireFromString("10.50"),
		Confidence: decimal.RequireFromString("0.80"),
		Complexity: arbDomain.GasMedium,
		QuotedAt:   execNow.Add(-2 * time.Second),
	}
}

func TestCoordinator_SimulatedSuccess(t *testing.T) {
	f := newCoordFixture(t, domain.ModeSimulated)

	res := f.coord.Execute(context.Background(), testOpportunity())

	require.True(t, res.Success, "result: %+v", res)
	assert.Equal(t, domain.KindNone, res.ErrorKind)
	// 10.50 * (0.85 + 0.15*0.80) = 10.50 * 0.97
	assert.True(t, res.RealizedProfit.Equal(decimal.RequireFromString("10.185")), "realized %s", res.RealizedProfit)
	assert.Equal(t, uint64(400000), res.GasUsed)
	assert.Equal(t, domain.ModeSimulated, res.Mode)
	assert.Zero(t, f.settlement.calls, "simulated mode must never settle")
	assert.Equal(t, 1, f.approvals.calls)
	assert.Equal(t, 1, f.locker.released)
	require.Len(t, f.history.results, 1)
	assert.Equal(t, res.ID, f.history.results[0].ID)
}

func TestCoordinator_LegsBuiltFromOpportunity(t *testing.T) {
	f := newCoordFixture(t, domain.ModeSimulated)
	f.coord.Execute(context.Background(), testOpportunity())

	require.Len(t, f.approvals.legs, 2)
	leg1, leg2 := f.approvals.legs[0], f.approvals.legs[1]
	assert.Equal(t, usdc, leg1.TokenIn)
	assert.Equal(t, weth, leg1.TokenOut)
	assert.True(t, leg1.AmountIn.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), leg1.Router)
	assert.Equal(t, weth, leg2.TokenIn)
	assert.True(t, leg2.AmountIn.Equal(decimal.NewFromInt(5)), "leg2 amount %s", leg2.AmountIn)
	assert.True(t, leg2.ExpectedPrice.Equal(decimal.RequireFromString("2016")))
}

func TestCoordinator_LiveSuccess(t *testing.T) {
	f := newCoordFixture(t, domain.ModeLive)

	res := f.coord.Execute(context.Background(), testOpportunity())

	require.True(t, res.Success)
	assert.Equal(t, "0xabc", res.TxID)
	assert.True(t, res.RealizedProfit.Equal(decimal.RequireFromString("9.75")))
	assert.Equal(t, 1, f.settlement.calls)
}

// Five consecutive settlement failures open the breaker; the sixth call is
// rejected without touching settlement.
func TestCoordinator_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f := newCoordFixture(t, domain.ModeLive)
	f.settlement.err = errors.New("execution reverted")
	ctx := context.Background()

	for i := range 5 {
		res := f.coord.Execute(ctx, testOpportunity())
		require.False(t, res.Success)
		require.Equal(t, domain.KindSettlement, res.ErrorKind, "attempt %d", i+1)
	}
	require.Equal(t, circuitbreaker.StateOpen, f.gate.State())

	res := f.coord.Execute(ctx, testOpportunity())
	assert.Equal(t, domain.KindCircuitOpen, res.ErrorKind)
	assert.Equal(t, 5, f.settlement.calls, "no settlement attempt while open")
	assert.Equal(t, 5, f.oracle.calls, "no liquidity check while open")
	assert.Len(t, f.history.results, 6)

	snap := f.gate.Snapshot()
	assert.Equal(t, uint32(5), snap.ConsecutiveFailures)
	assert.False(t, snap.OpenedAt.IsZero())
}

func TestCoordinator_PreconditionOrder(t *testing.T) {
	t.Run("breaker before staleness", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.settlement.err = errors.New("boom")
		for range 5 {
			f.coord.Execute(context.Background(), testOpportunity())
		}
		require.Equal(t, circuitbreaker.StateOpen, f.gate.State())

		opp := testOpportunity()
		opp.QuotedAt = execNow.Add(-31 * time.Second)
		res := f.coord.Execute(context.Background(), opp)
		assert.Equal(t, domain.KindCircuitOpen, res.ErrorKind)
		assert.Equal(t, uint32(5), f.gate.Snapshot().ConsecutiveFailures)
	})

	t.Run("stale feeds breaker", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		opp := testOpportunity()
		opp.QuotedAt = execNow.Add(-time.Hour)
		for range 5 {
			res := f.coord.Execute(context.Background(), opp)
			require.Equal(t, domain.KindStalePrice, res.ErrorKind)
		}
		assert.Equal(t, circuitbreaker.StateOpen, f.gate.State())
		assert.Equal(t, uint32(5), f.gate.Snapshot().ConsecutiveFailures)
		assert.Zero(t, f.oracle.calls)

		res := f.coord.Execute(context.Background(), testOpportunity())
		assert.Equal(t, domain.KindCircuitOpen, res.ErrorKind)
	})

	t.Run("lock store failure feeds breaker", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.locker.err = apperror.New(apperror.CodeStorageError, apperror.WithCause(errors.New("dial tcp: refused")))
		for range 5 {
			res := f.coord.Execute(context.Background(), testOpportunity())
			require.Equal(t, domain.KindUnknown, res.ErrorKind)
		}
		assert.Equal(t, circuitbreaker.StateOpen, f.gate.State())
		assert.Zero(t, f.oracle.calls)
		assert.Len(t, f.history.results, 5)
	})

	t.Run("insufficient liquidity stops before approvals", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.oracle.available = decimal.NewFromInt(9999)
		res := f.coord.Execute(context.Background(), testOpportunity())
		assert.Equal(t, domain.KindInsufficientLiquidity, res.ErrorKind)
		assert.Zero(t, f.approvals.calls)
		assert.Zero(t, f.settlement.calls)
		assert.Equal(t, uint32(1), f.gate.Snapshot().ConsecutiveFailures)
	})

	t.Run("oracle error is insufficient liquidity", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.oracle.err = errors.New("rpc timeout")
		res := f.coord.Execute(context.Background(), testOpportunity())
		assert.Equal(t, domain.KindInsufficientLiquidity, res.ErrorKind)
		assert.Contains(t, res.ErrorMessage, "rpc timeout")
	})

	t.Run("approval failure stops before settlement", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.approvals.err = errors.New("router not whitelisted")
		res := f.coord.Execute(context.Background(), testOpportunity())
		assert.Equal(t, domain.KindApproval, res.ErrorKind)
		assert.Zero(t, f.settlement.calls)
	})

	t.Run("pair locked does not feed breaker", func(t *testing.T) {
		f := newCoordFixture(t, domain.ModeLive)
		f.locker.err = apperror.New(apperror.CodeExecutionInProgress)
		res := f.coord.Execute(context.Background(), testOpportunity())
		assert.Equal(t, domain.KindPairLocked, res.ErrorKind)
		assert.Zero(t, f.oracle.calls)
		assert.Zero(t, f.gate.Snapshot().ConsecutiveFailures)
		assert.Len(t, f.history.results, 1)
	})
}

func TestCoordinator_PanicBecomesUnknown(t *testing.T) {
	f := newCoordFixture(t, domain.ModeLive)
	f.oracle.panicMsg = "nil map"

	res := f.coord.Execute(context.Background(), testOpportunity())

	assert.False(t, res.Success)
	assert.Equal(t, domain.KindUnknown, res.ErrorKind)
	assert.Contains(t, res.ErrorMessage, "nil map")
	assert.Equal(t, uint32(1), f.gate.Snapshot().ConsecutiveFailures)
}

func TestCoordinator_SuccessResetsFailures(t *testing.T) {
	f := newCoordFixture(t, domain.ModeLive)
	f.settlement.err = errors.New("reverted")
	for range 3 {
		f.coord.Execute(context.Background(), testOpportunity())
	}
	require.Equal(t, uint32(3), f.gate.Snapshot().ConsecutiveFailures)

	f.settlement.err = nil
	res := f.coord.Execute(context.Background(), testOpportunity())
	require.True(t, res.Success)
	assert.Zero(t, f.gate.Snapshot().ConsecutiveFailures)
}

func TestCoordinator_HistoryFailureKeepsResult(t *testing.T) {
	f := newCoordFixture(t, domain.ModeSimulated)
	f.history.err = errors.New("disk full")

	res := f.coord.Execute(context.Background(), testOpportunity())
	assert.True(t, res.Success)
}

func TestCoordinator_UnknownToken(t *testing.T) {
	f := newCoordFixture(t, domain.ModeSimulated)
	opp := testOpportunity()
	opp.Pair = pricingDomain.NewPair("WBTC", "USDC")

	res := f.coord.Execute(context.Background(), opp)
	assert.Equal(t, domain.KindUnknown, res.ErrorKind)
}

func TestNewCoordinator_LiveRequiresSettlement(t *testing.T) {
	gate := circuitbreaker.NewGate(circuitbreaker.GateConfig{Name: "x", MaxConsecutiveFailures: 5, Cooldown: time.Minute})
	_, err := NewCoordinator(CoordinatorConfig{Mode: domain.ModeLive}, gate,
		&fakeOracle{}, &fakeApprovals{}, nil, &fakeLocker{}, &fakeHistory{}, logger.Discard())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}

func TestVarianceFactor(t *testing.T) {
	tests := []struct{ conf, want string }{
		{"0", "0.85"},
		{"1", "1"},
		{"0.5", "0.925"},
	}
	for _, tt := range tests {
		if got := VarianceFactor(decimal.RequireFromString(tt.conf)); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("VarianceFactor(%s) = %s, want %s", tt.conf, got, tt.want)
		}
	}
}

package uniswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

var (
	quoterAddr  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	factoryAddr = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	poolAddr    = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	wethAddr    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	fixedNow = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
)

// chainStub answers factory, quoter and ERC20 calls by destination address.
type chainStub struct {
	t          *testing.T
	pool       common.Address
	amountOut  *big.Int
	balance    *big.Int
	quoterErr  error
	poolCalls  atomic.Int32
	lastAmount *big.Int
}

func (s *chainStub) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.t.Helper()
	switch *msg.To {
	case factoryAddr:
		s.poolCalls.Add(1)
		return mustABI(s.t, FactoryABI).Methods["getPool"].Outputs.Pack(s.pool)
	case quoterAddr:
		if s.quoterErr != nil {
			return nil, s.quoterErr
		}
		parsed := mustABI(s.t, QuoterV2ABI)
		args, err := parsed.Methods["quoteExactInputSingle"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			s.t.Fatalf("decode quoter input: %v", err)
		}
		params := *abi.ConvertType(args[0], new(QuoteExactInputSingleParams)).(*QuoteExactInputSingleParams)
		s.lastAmount = params.AmountIn
		if params.TokenIn != usdcAddr || params.TokenOut != wethAddr {
			s.t.Errorf("swap direction %s -> %s, want USDC -> WETH", params.TokenIn.Hex(), params.TokenOut.Hex())
		}
		return parsed.Methods["quoteExactInputSingle"].Outputs.Pack(
			s.amountOut, big.NewInt(0), uint32(1), big.NewInt(90000))
	case usdcAddr:
		if !bytes.Equal(msg.Data[:4], common.FromHex("0x70a08231")) {
			s.t.Fatalf("unexpected token call %x", msg.Data[:4])
		}
		return common.LeftPadBytes(s.balance.Bytes(), 32), nil
	}
	s.t.Fatalf("unexpected call to %s", msg.To.Hex())
	return nil, nil
}

func mustABI(t *testing.T, def string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return parsed
}

func newTestVenue(t *testing.T, stub *chainStub) *Venue {
	t.Helper()
	tokens, err := asset.NewRegistry(
		asset.Token{Symbol: "WETH", Address: wethAddr, Decimals: 18},
		asset.Token{Symbol: "USDC", Address: usdcAddr, Decimals: 6},
	)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVenue(stub, Config{
		ID:      "univ3",
		Quoter:  quoterAddr,
		Factory: factoryAddr,
		FeeTier: FeeTier030,
	}, tokens, logger.Discard())
	if err != nil {
		t.Fatalf("NewVenue() error = %v", err)
	}
	v.now = func() time.Time { return fixedNow }
	return v
}

func TestVenue_Quote(t *testing.T) {
	stub := &chainStub{
		t:         t,
		pool:      poolAddr,
		amountOut: new(big.Int).Mul(big.NewInt(4), big.NewInt(1e18)),
		balance:   big.NewInt(5_000_000_000_000), // 5,000,000 USDC
	}
	v := newTestVenue(t, stub)
	pair := domain.NewPair("WETH", "USDC")

	q, err := v.Quote(context.Background(), pair, decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// 10000 * (1 - 0.003) / 4
	if want := decimal.RequireFromString("2492.5"); !q.Price().Equal(want) {
		t.Errorf("Price() = %s, want %s", q.Price(), want)
	}
	if want := decimal.NewFromInt(5_000_000); !q.Liquidity().Equal(want) {
		t.Errorf("Liquidity() = %s, want %s", q.Liquidity(), want)
	}
	if want := decimal.RequireFromString("0.003"); !q.Fee().Equal(want) {
		t.Errorf("Fee() = %s, want %s", q.Fee(), want)
	}
	if stub.lastAmount.Cmp(big.NewInt(10_000_000_000)) != 0 {
		t.Errorf("amountIn = %s, want 10000 USDC in units", stub.lastAmount)
	}
	if !q.Timestamp().Equal(fixedNow) || q.Venue() != "univ3" {
		t.Errorf("unexpected quote metadata: %v %v", q.Timestamp(), q.Venue())
	}

	if _, err := v.Quote(context.Background(), pair, decimal.NewFromInt(10000)); err != nil {
		t.Fatal(err)
	}
	if n := stub.poolCalls.Load(); n != 1 {
		t.Errorf("getPool called %d times, want 1 (memoized)", n)
	}
}

func TestVenue_PoolNotFound(t *testing.T) {
	v := newTestVenue(t, &chainStub{t: t})

	_, err := v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(100))
	if !apperror.HasCode(err, apperror.CodePoolNotFound) {
		t.Errorf("error = %v, want POOL_NOT_FOUND", err)
	}
}

func TestVenue_UnknownToken(t *testing.T) {
	v := newTestVenue(t, &chainStub{t: t})

	_, err := v.Quote(context.Background(), domain.NewPair("PEPE", "USDC"), decimal.NewFromInt(100))
	if !apperror.HasCode(err, apperror.CodeInvalidInput) {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestVenue_BreakerOpensOnRepeatedFailures(t *testing.T) {
	stub := &chainStub{t: t, pool: poolAddr, quoterErr: errors.New("execution reverted")}
	v := newTestVenue(t, stub)
	pair := domain.NewPair("WETH", "USDC")

	for i := 0; i < 5; i++ {
		_, err := v.Quote(context.Background(), pair, decimal.NewFromInt(100))
		if !apperror.HasCode(err, apperror.CodeContractCallFailed) {
			t.Fatalf("attempt %d: error = %v", i, err)
		}
	}
	_, err := v.Quote(context.Background(), pair, decimal.NewFromInt(100))
	if !apperror.HasCode(err, apperror.CodeCircuitOpen) {
		t.Errorf("error = %v, want CIRCUIT_OPEN after repeated failures", err)
	}
}

func TestFeeFraction(t *testing.T) {
	tests := []struct {
		tier uint32
		want string
	}{
		{FeeTier001, "0.0001"},
		{FeeTier005, "0.0005"},
		{FeeTier030, "0.003"},
		{FeeTier100, "0.01"},
	}
	for _, tt := range tests {
		if got := FeeFraction(tt.tier); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("FeeFraction(%d) = %s, want %s", tt.tier, got, tt.want)
		}
	}
}

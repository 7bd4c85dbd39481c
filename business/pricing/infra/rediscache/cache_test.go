package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/redisx"
)

func newTestCache(t *testing.T) (*QuoteCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := redisx.New(context.Background(), redisx.ClientConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redisx.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return New(c, logger.Discard()), mr
}

func TestQuoteCache_RoundTripKeepsTimestamp(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	ts := time.Date(2026, 4, 1, 10, 0, 0, 123456789, time.UTC)

	q, err := domain.NewQuote(domain.QuoteParams{
		Venue:      "univ3",
		Pair:       domain.NewPair("WETH", "USDC"),
		Price:      decimal.RequireFromString("3000.123456"),
		Liquidity:  decimal.RequireFromString("250000.5"),
		Fee:        decimal.RequireFromString("0.0005"),
		Confidence: decimal.RequireFromString("0.95"),
		Notional:   decimal.NewFromInt(10000),
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, q, 2*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !mr.Exists("quote:univ3:WETH/USDC") {
		t.Fatal("expected hash at quote:univ3:WETH/USDC")
	}
	if ttl := mr.TTL("quote:univ3:WETH/USDC"); ttl != 2*time.Second {
		t.Errorf("TTL = %v, want 2s", ttl)
	}

	got, ok := cache.Get(ctx, "univ3", domain.NewPair("WETH", "USDC"))
	if !ok {
		t.Fatal("Get() miss")
	}
	if !got.Timestamp().Equal(ts) {
		t.Errorf("Timestamp() = %v, want %v", got.Timestamp(), ts)
	}
	if !got.Price().Equal(q.Price()) || !got.Liquidity().Equal(q.Liquidity()) || !got.Confidence().Equal(q.Confidence()) {
		t.Errorf("round trip mismatch: got %v/%v/%v", got.Price(), got.Liquidity(), got.Confidence())
	}
}

func TestQuoteCache_ExpiredKeyMisses(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	q, err := domain.NewQuote(domain.QuoteParams{
		Venue: "desk", Pair: domain.NewPair("WETH", "USDC"),
		Price: decimal.NewFromInt(1), Liquidity: decimal.NewFromInt(1),
		Fee: decimal.Zero, Confidence: decimal.NewFromInt(1),
		Notional: decimal.NewFromInt(1), Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, q, time.Second); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)

	if _, ok := cache.Get(ctx, "desk", domain.NewPair("WETH", "USDC")); ok {
		t.Error("expired quote returned")
	}
}

func TestQuoteCache_CorruptEntryMisses(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.HSet("quote:desk:WETH/USDC", "price", "not-a-number")

	if _, ok := cache.Get(context.Background(), "desk", domain.NewPair("WETH", "USDC")); ok {
		t.Error("corrupt entry should miss")
	}
}

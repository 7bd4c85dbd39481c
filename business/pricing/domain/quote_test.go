package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

func validParams() QuoteParams {
	return QuoteParams{
		Venue:      "univ3",
		Pair:       NewPair("weth", "usdc"),
		Price:      decimal.RequireFromString("3000.5"),
		Liquidity:  decimal.RequireFromString("1000000"),
		Fee:        decimal.RequireFromString("0.003"),
		Confidence: decimal.NewFromInt(1),
		Notional:   decimal.NewFromInt(10000),
		Timestamp:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewQuote(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QuoteParams)
		wantErr bool
	}{
		{name: "valid", mutate: func(*QuoteParams) {}},
		{name: "zero price", mutate: func(p *QuoteParams) { p.Price = decimal.Zero }, wantErr: true},
		{name: "negative liquidity", mutate: func(p *QuoteParams) { p.Liquidity = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "zero liquidity", mutate: func(p *QuoteParams) { p.Liquidity = decimal.Zero }},
		{name: "fee of one", mutate: func(p *QuoteParams) { p.Fee = decimal.NewFromInt(1) }, wantErr: true},
		{name: "negative fee", mutate: func(p *QuoteParams) { p.Fee = decimal.RequireFromString("-0.001") }, wantErr: true},
		{name: "confidence above one", mutate: func(p *QuoteParams) { p.Confidence = decimal.RequireFromString("1.01") }, wantErr: true},
		{name: "missing venue", mutate: func(p *QuoteParams) { p.Venue = "" }, wantErr: true},
		{name: "missing timestamp", mutate: func(p *QuoteParams) { p.Timestamp = time.Time{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			q, err := NewQuote(p)
			if tt.wantErr {
				if !apperror.HasCode(err, apperror.CodeInvalidQuote) {
					t.Fatalf("NewQuote() error = %v, want INVALID_QUOTE", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewQuote() error = %v", err)
			}
			if !q.Price().Equal(p.Price) || q.Venue() != p.Venue {
				t.Errorf("quote fields not preserved: %+v", q)
			}
		})
	}
}

func TestQuote_WithCachedKeepsTimestamp(t *testing.T) {
	q, err := NewQuote(validParams())
	if err != nil {
		t.Fatal(err)
	}
	c := q.WithCached()
	if !c.Cached() || q.Cached() {
		t.Fatalf("Cached flags: copy=%v original=%v", c.Cached(), q.Cached())
	}
	if !c.Timestamp().Equal(q.Timestamp()) {
		t.Errorf("timestamp changed: %v -> %v", q.Timestamp(), c.Timestamp())
	}
	now := q.Timestamp().Add(3 * time.Second)
	if c.Age(now) != 3*time.Second {
		t.Errorf("Age() = %v, want 3s", c.Age(now))
	}
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{in: "WETH/USDC", want: Pair{Base: "WETH", Quote: "USDC"}},
		{in: "weth-usdc", want: Pair{Base: "WETH", Quote: "USDC"}},
		{in: " wbtc / dai ", want: Pair{Base: "WBTC", Quote: "DAI"}},
		{in: "WETH", wantErr: true},
		{in: "/USDC", wantErr: true},
		{in: "WETH/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePair(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParsePair(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if s := (Pair{Base: "WETH", Quote: "USDC"}).String(); s != "WETH/USDC" {
		t.Errorf("String() = %q", s)
	}
}

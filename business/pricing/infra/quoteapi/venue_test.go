package quoteapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/httpclient"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

func newTestVenue(t *testing.T, handler http.HandlerFunc) *Venue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := NewVenue(Config{ID: "desk", BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, logger.Discard())
	if err != nil {
		t.Fatalf("NewVenue() error = %v", err)
	}
	return v
}

func TestVenue_Quote(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("base") != "WETH" || q.Get("quote") != "USDC" || q.Get("amount") != "10000" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":"3001.25","liquidity":"2500000","fee":"0.001","timestamp":1767225600000,"confidence":0.9}`))
	})

	q, err := v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if !q.Price().Equal(decimal.RequireFromString("3001.25")) {
		t.Errorf("Price() = %s", q.Price())
	}
	if !q.Confidence().Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("Confidence() = %s", q.Confidence())
	}
	if want := time.UnixMilli(1767225600000).UTC(); !q.Timestamp().Equal(want) {
		t.Errorf("Timestamp() = %v, want %v", q.Timestamp(), want)
	}
}

func TestVenue_DefaultsConfidenceAndTimestamp(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"price":1.01,"liquidity":100000,"fee":0.003}`))
	})
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	v.now = func() time.Time { return now }

	q, err := v.Quote(context.Background(), domain.NewPair("USDC", "DAI"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if !q.Confidence().Equal(decimal.NewFromInt(1)) {
		t.Errorf("Confidence() = %s, want 1", q.Confidence())
	}
	if !q.Timestamp().Equal(now) {
		t.Errorf("Timestamp() = %v, want %v", q.Timestamp(), now)
	}
}

func TestVenue_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode apperror.Code
	}{
		{name: "api error body", status: http.StatusBadRequest, body: `{"error":"unknown pair"}`, wantCode: apperror.CodeVenueQuoteFailed},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantCode: apperror.CodeVenueQuoteFailed},
		{name: "invalid quote", status: http.StatusOK, body: `{"price":"0","liquidity":"1","fee":"0.001"}`, wantCode: apperror.CodeInvalidQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVenue(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(1))
			if !apperror.HasCode(err, tt.wantCode) {
				t.Fatalf("error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestVenue_StatusErrorIsRetryable(t *testing.T) {
	v := newTestVenue(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(1))

	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) || !statusErr.Retryable() {
		t.Fatalf("error = %v, want retryable StatusError in chain", err)
	}
}

func TestVenue_BreakerStopsCallingUpstream(t *testing.T) {
	var hits atomic.Int32
	v := newTestVenue(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 7; i++ {
		_, _ = v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(1))
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("upstream hit %d times, want 5 before the breaker opened", got)
	}
	_, err := v.Quote(context.Background(), domain.NewPair("WETH", "USDC"), decimal.NewFromInt(1))
	if !apperror.HasCode(err, apperror.CodeCircuitOpen) {
		t.Errorf("error = %v, want CIRCUIT_OPEN", err)
	}
}

func TestNewVenue_RequiresURL(t *testing.T) {
	_, err := NewVenue(Config{ID: "desk"}, logger.Discard())
	if !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Errorf("error = %v, want CONFIGURATION_ERROR", err)
	}
}

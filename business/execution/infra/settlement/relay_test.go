package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

var (
	weth = domain.Token{Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18}
	usdc = domain.Token{Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6}
)

func legs() (domain.SwapLeg, domain.SwapLeg) {
	return domain.SwapLeg{
			Venue: "univ3", Router: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			TokenIn: usdc, TokenOut: weth,
			AmountIn: decimal.NewFromInt(10000), ExpectedPrice: decimal.NewFromInt(2000),
		}, domain.SwapLeg{
			Venue: "sushi", Router: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			TokenIn: weth, TokenOut: usdc,
			AmountIn: decimal.NewFromInt(5), ExpectedPrice: decimal.NewFromInt(2016),
		}
}

func newTestRelay(t *testing.T, url string) *Relay {
	t.Helper()
	r, err := NewRelay(Config{
		URL:      url,
		APIKey:   "secret",
		Executor: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		ChainID:  1,
	}, logger.Discard())
	if err != nil {
		t.Fatalf("NewRelay() error = %v", err)
	}
	return r
}

func TestRelay_ExecuteAtomicSwap(t *testing.T) {
	var got executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != executeEndpoint {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tx_hash":"0xfeed","profit_realized":"9.87","gas_used":312000}`))
	}))
	defer srv.Close()

	leg1, leg2 := legs()
	receipt, err := newTestRelay(t, srv.URL).ExecuteAtomicSwap(context.Background(), usdc, decimal.NewFromInt(10000), leg1, leg2)
	if err != nil {
		t.Fatalf("ExecuteAtomicSwap() error = %v", err)
	}

	if receipt.TxID != "0xfeed" || receipt.GasUsed != 312000 || !receipt.ProfitRealized.Equal(decimal.RequireFromString("9.87")) {
		t.Errorf("receipt = %+v", receipt)
	}
	if got.Amount != "10000000000" {
		t.Errorf("amount = %s, want 10000000000 raw USDC", got.Amount)
	}
	if len(got.Legs) != 2 || got.Legs[1].AmountIn != "5000000000000000000" {
		t.Errorf("legs = %+v", got.Legs)
	}
	if got.Executor != "0x3333333333333333333333333333333333333333" || got.ChainID != 1 {
		t.Errorf("executor/chain = %s/%d", got.Executor, got.ChainID)
	}
}

func TestRelay_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantCtx string
	}{
		{"revert with body", http.StatusUnprocessableEntity, `{"error":"execution reverted","tx_hash":"0xdead"}`, "execution reverted (tx 0xdead)"},
		{"server error", http.StatusBadGateway, `bad gateway`, ""},
		{"missing tx hash", http.StatusOK, `{"profit_realized":"1"}`, "no tx_hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			leg1, leg2 := legs()
			_, err := newTestRelay(t, srv.URL).ExecuteAtomicSwap(context.Background(), usdc, decimal.NewFromInt(10000), leg1, leg2)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperror.GetCode(err) != apperror.CodeSettlementFailed {
				t.Errorf("code = %s, want SETTLEMENT_FAILED", apperror.GetCode(err))
			}
			if tt.wantCtx != "" {
				if !strings.Contains(err.Error(), tt.wantCtx) {
					t.Errorf("error %v does not mention %q", err, tt.wantCtx)
				}
			}
		})
	}
}

func TestRelay_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	leg1, leg2 := legs()
	_, err := newTestRelay(t, url).ExecuteAtomicSwap(context.Background(), usdc, decimal.NewFromInt(1), leg1, leg2)
	if apperror.GetCode(err) != apperror.CodeSettlementFailed {
		t.Errorf("code = %s, want SETTLEMENT_FAILED", apperror.GetCode(err))
	}
}

func TestNewRelay_RequiresURL(t *testing.T) {
	if _, err := NewRelay(Config{}, logger.Discard()); apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("NewRelay() error = %v", err)
	}
}

// Package settlement submits atomic flash-loan swaps to an HTTP relay that
// signs and broadcasts the executor transaction.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arb/business/execution/app"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/asset"
	"github.com/fd1az/flashloan-arb/internal/httpclient"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

const (
	tracerName      = "settlement"
	executeEndpoint = "/v1/flashloan/execute"
	defaultTimeout  = 30 * time.Second
)

var _ app.SettlementPrimitive = (*Relay)(nil)

// Config configures the relay client.
type Config struct {
	URL      string
	APIKey   string
	Executor common.Address // contract receiving the flash loan
	ChainID  uint64
	Timeout  time.Duration
}

type tokenPayload struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

type legPayload struct {
	Venue         string       `json:"venue"`
	Router        string       `json:"router"`
	TokenIn       tokenPayload `json:"token_in"`
	TokenOut      tokenPayload `json:"token_out"`
	AmountIn      string       `json:"amount_in"` // raw units
	ExpectedPrice string       `json:"expected_price"`
}

type executeRequest struct {
	ChainID  uint64       `json:"chain_id"`
	Executor string       `json:"executor"`
	Borrow   tokenPayload `json:"borrow"`
	Amount   string       `json:"amount"` // raw units
	Legs     []legPayload `json:"legs"`
}

type executeResponse struct {
	TxHash         string          `json:"tx_hash"`
	ProfitRealized decimal.Decimal `json:"profit_realized"`
	GasUsed        uint64          `json:"gas_used"`
}

type errorResponse struct {
	Error  string `json:"error"`
	TxHash string `json:"tx_hash,omitempty"`
}

// Relay implements SettlementPrimitive over HTTP. It never retries.
type Relay struct {
	cfg    Config
	client *httpclient.InstrumentedClient
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewRelay creates a Relay.
func NewRelay(cfg Config, log logger.LoggerInterface) (*Relay, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("settlement relay url is required"))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	tracer := otel.Tracer(tracerName)
	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("settlement-relay"),
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTracer(tracer),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Relay{cfg: cfg, client: client, logger: log, tracer: tracer}, nil
}

// ExecuteAtomicSwap borrows amount of borrow, runs both legs and repays.
func (r *Relay) ExecuteAtomicSwap(ctx context.Context, borrow domain.Token, amount decimal.Decimal, leg1, leg2 domain.SwapLeg) (domain.SettlementReceipt, error) {
	ctx, span := r.tracer.Start(ctx, "settlement.execute",
		trace.WithAttributes(
			attribute.String("borrow", borrow.Symbol),
			attribute.String("amount", amount.String()),
			attribute.String("buy_venue", string(leg1.Venue)),
			attribute.String("sell_venue", string(leg2.Venue)),
		),
	)
	defer span.End()

	req, err := r.buildRequest(borrow, amount, leg1, leg2)
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return domain.SettlementReceipt{}, err
	}

	var result executeResponse
	_, err = r.client.NewRequest().
		SetLabels(httpclient.NewLabel("endpoint", "execute")).
		SetErrorHandler(settlementErrorHandler).
		SetBody(req).
		SetResult(&result).
		Post(ctx, executeEndpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		if apperror.IsAppError(err) {
			return domain.SettlementReceipt{}, err
		}
		return domain.SettlementReceipt{}, apperror.New(apperror.CodeSettlementFailed, apperror.WithCause(err))
	}
	if result.TxHash == "" {
		span.SetStatus(codes.Error, "missing tx hash")
		return domain.SettlementReceipt{}, apperror.New(apperror.CodeSettlementFailed,
			apperror.WithContext("relay response has no tx_hash"))
	}

	span.SetAttributes(attribute.String("tx_hash", result.TxHash))
	span.SetStatus(codes.Ok, "settled")
	r.logger.Info(ctx, "atomic swap settled",
		"tx", result.TxHash,
		"profit", result.ProfitRealized.String(),
		"gas_used", result.GasUsed,
	)

	return domain.SettlementReceipt{
		TxID:           result.TxHash,
		ProfitRealized: result.ProfitRealized,
		GasUsed:        result.GasUsed,
	}, nil
}

func (r *Relay) buildRequest(borrow domain.Token, amount decimal.Decimal, legs ...domain.SwapLeg) (executeRequest, error) {
	rawAmount, err := toRaw(borrow, amount)
	if err != nil {
		return executeRequest{}, err
	}
	req := executeRequest{
		ChainID:  r.cfg.ChainID,
		Executor: r.cfg.Executor.Hex(),
		Borrow:   tokenToPayload(borrow),
		Amount:   rawAmount,
	}
	for _, leg := range legs {
		rawIn, err := toRaw(leg.TokenIn, leg.AmountIn)
		if err != nil {
			return executeRequest{}, err
		}
		req.Legs = append(req.Legs, legPayload{
			Venue:         string(leg.Venue),
			Router:        leg.Router.Hex(),
			TokenIn:       tokenToPayload(leg.TokenIn),
			TokenOut:      tokenToPayload(leg.TokenOut),
			AmountIn:      rawIn,
			ExpectedPrice: leg.ExpectedPrice.String(),
		})
	}
	return req, nil
}

func toRaw(t domain.Token, amount decimal.Decimal) (string, error) {
	raw, err := asset.ToUnitsFloor(asset.Token{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals}, amount)
	if err != nil {
		return "", apperror.New(apperror.CodeSettlementFailed, apperror.WithCause(err))
	}
	return raw.String(), nil
}

func tokenToPayload(t domain.Token) tokenPayload {
	return tokenPayload{Symbol: t.Symbol, Address: t.Address.Hex(), Decimals: t.Decimals}
}

// settlementErrorHandler maps relay errors like {"error":"execution reverted"}
// to SETTLEMENT_FAILED.
func settlementErrorHandler(statusCode int, body []byte) error {
	base := httpclient.DefaultErrorHandler(statusCode, body)
	if base == nil {
		return nil
	}
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		ctx := fmt.Sprintf("HTTP %d: %s", statusCode, e.Error)
		if e.TxHash != "" {
			ctx += " (tx " + e.TxHash + ")"
		}
		return apperror.New(apperror.CodeSettlementFailed,
			apperror.WithCause(base),
			apperror.WithContext(ctx))
	}
	return apperror.New(apperror.CodeSettlementFailed, apperror.WithCause(base))
}

// Package quoteapi implements a QuoteSource over an aggregator's HTTP quote API.
package quoteapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/httpclient"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/ratelimit"
)

const (
	tracerName    = "quoteapi"
	quoteEndpoint = "/v1/quote"
	httpTimeout   = 5 * time.Second
)

var _ app.QuoteSource = (*Venue)(nil)

// Config holds configuration for one quote API venue.
type Config struct {
	ID           domain.VenueID
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPM int
}

// quoteResponse is the wire format of GET /v1/quote.
type quoteResponse struct {
	Price      decimal.Decimal  `json:"price"`
	Liquidity  decimal.Decimal  `json:"liquidity"`
	Fee        decimal.Decimal  `json:"fee"`
	Timestamp  int64            `json:"timestamp"` // unix millis
	Confidence *decimal.Decimal `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Venue queries a remote quote API.
type Venue struct {
	cfg     Config
	client  httpclient.Client
	cb      *circuitbreaker.CircuitBreaker[*quoteResponse]
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	now     func() time.Time
}

// NewVenue creates a quote API venue.
func NewVenue(cfg Config, log logger.LoggerInterface) (*Venue, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("quote api venue "+string(cfg.ID)+" has no url"))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)
	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(string(cfg.ID)),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTracer(tracer),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Venue{
		cfg:     cfg,
		client:  client,
		cb:      circuitbreaker.New[*quoteResponse](circuitbreaker.DefaultConfig("quoteapi-" + string(cfg.ID))),
		limiter: ratelimit.New(cfg.RateLimitRPM),
		logger:  log,
		tracer:  tracer,
		now:     time.Now,
	}, nil
}

// Venue returns the configured id.
func (v *Venue) Venue() domain.VenueID { return v.cfg.ID }

// Quote fetches a price for notional of pair.
func (v *Venue) Quote(ctx context.Context, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error) {
	ctx, span := v.tracer.Start(ctx, "quoteapi.quote",
		trace.WithAttributes(
			attribute.String("venue", string(v.cfg.ID)),
			attribute.String("pair", pair.String()),
			attribute.String("notional", notional.String()),
		),
	)
	defer span.End()

	if err := v.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, "rate limited")
		return domain.Quote{}, err
	}

	resp, err := v.cb.Execute(func() (*quoteResponse, error) {
		var result quoteResponse
		_, err := v.client.NewRequest().
			SetLabels(
				httpclient.NewLabel("endpoint", "quote"),
				httpclient.NewLabel("pair", pair.String()),
			).
			SetErrorHandler(quoteErrorHandler).
			SetQueryParam("base", pair.Base).
			SetQueryParam("quote", pair.Quote).
			SetQueryParam("amount", notional.String()).
			SetResult(&result).
			Get(ctx, quoteEndpoint)
		if err != nil {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		if apperror.IsAppError(err) {
			return domain.Quote{}, err
		}
		return domain.Quote{}, apperror.New(apperror.CodeVenueQuoteFailed,
			apperror.WithCause(err),
			apperror.WithContext(string(v.cfg.ID)))
	}

	ts := v.now()
	if resp.Timestamp > 0 {
		ts = time.UnixMilli(resp.Timestamp).UTC()
	}
	confidence := decimal.NewFromInt(1)
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	q, err := domain.NewQuote(domain.QuoteParams{
		Venue:      v.cfg.ID,
		Pair:       pair,
		Price:      resp.Price,
		Liquidity:  resp.Liquidity,
		Fee:        resp.Fee,
		Confidence: confidence,
		Notional:   notional,
		Timestamp:  ts,
	})
	if err != nil {
		span.SetStatus(codes.Error, "invalid quote")
		return domain.Quote{}, err
	}

	span.SetAttributes(attribute.String("price", q.Price().String()))
	span.SetStatus(codes.Ok, "quote received")
	v.logger.Debug(ctx, "api quote",
		"venue", v.cfg.ID,
		"pair", pair.String(),
		"price", q.Price().String(),
		"liquidity", q.Liquidity().String())
	return q, nil
}

// quoteErrorHandler maps error bodies like {"error":"unknown pair"} to apperrors.
func quoteErrorHandler(statusCode int, body []byte) error {
	base := httpclient.DefaultErrorHandler(statusCode, body)
	if base == nil {
		return nil
	}
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return apperror.New(apperror.CodeVenueQuoteFailed,
			apperror.WithCause(base),
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", statusCode, e.Error)))
	}
	return apperror.New(apperror.CodeVenueQuoteFailed, apperror.WithCause(base))
}

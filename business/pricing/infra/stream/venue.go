package stream

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/cache"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/wsconn"
)

const (
	tracerName = "stream"

	defaultStaleTimeout = 5 * time.Second
	defaultPingInterval = 20 * time.Second
)

var _ app.QuoteSource = (*Venue)(nil)

// Config holds configuration for a streaming venue.
type Config struct {
	ID           domain.VenueID
	URL          string
	Pairs        []domain.Pair
	Fee          decimal.Decimal
	StaleTimeout time.Duration
	PingInterval time.Duration
}

// Venue keeps the latest book ticker per pair and answers quotes from it.
type Venue struct {
	cfg     Config
	conn    *wsconn.Client
	tickers *cache.Cache[domain.Pair, ticker]
	reqID   atomic.Int64
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// NewVenue creates a streaming venue. Call Connect to start receiving data.
func NewVenue(cfg Config, log logger.LoggerInterface) (*Venue, error) {
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = defaultStaleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	wsCfg := wsconn.DefaultConfig(cfg.URL, string(cfg.ID))
	wsCfg.PingInterval = cfg.PingInterval
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, err
	}

	v := &Venue{
		cfg:     cfg,
		conn:    conn,
		tickers: cache.New[domain.Pair, ticker](cfg.StaleTimeout),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
	conn.OnMessage(v.handleMessage)
	conn.OnStateChange(v.handleState)
	return v, nil
}

// Venue returns the configured id.
func (v *Venue) Venue() domain.VenueID { return v.cfg.ID }

// Connect dials the stream; subscriptions are sent on every (re)connect.
func (v *Venue) Connect(ctx context.Context) error {
	return v.conn.Connect(ctx)
}

// ConnectWithRetry dials with exponential backoff until it succeeds or ctx ends.
func (v *Venue) ConnectWithRetry(ctx context.Context) error {
	return v.conn.ConnectWithRetry(ctx)
}

// IsConnected reports whether the stream is live.
func (v *Venue) IsConnected() bool {
	return v.conn.IsConnected()
}

// Close stops the stream.
func (v *Venue) Close() error {
	v.tickers.Close()
	return v.conn.Close()
}

// Quote answers from the latest non-stale ticker. Streams price top of book
// only, so notional is recorded but does not move the price.
func (v *Venue) Quote(ctx context.Context, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error) {
	_, span := v.tracer.Start(ctx, "stream.quote",
		trace.WithAttributes(
			attribute.String("venue", string(v.cfg.ID)),
			attribute.String("pair", pair.String()),
		),
	)
	defer span.End()

	t, ok := v.tickers.Get(ctx, pair)
	if !ok {
		span.SetStatus(codes.Error, "no fresh ticker")
		return domain.Quote{}, apperror.New(apperror.CodeQuoteUnavailable,
			apperror.WithContext(string(v.cfg.ID)+" "+pair.String()))
	}

	q, err := domain.NewQuote(domain.QuoteParams{
		Venue:      v.cfg.ID,
		Pair:       pair,
		Price:      t.mid(),
		Liquidity:  t.depth(),
		Fee:        v.cfg.Fee,
		Confidence: decimal.NewFromInt(1),
		Notional:   notional,
		Timestamp:  t.at,
	})
	if err != nil {
		span.SetStatus(codes.Error, "invalid ticker")
		return domain.Quote{}, err
	}
	span.SetStatus(codes.Ok, "quote from stream")
	return q, nil
}

func (v *Venue) handleState(state wsconn.State, err error) {
	ctx := context.Background()
	switch state {
	case wsconn.StateConnected:
		v.logger.Info(ctx, "stream connected", "venue", v.cfg.ID)
		if err := v.subscribe(ctx); err != nil {
			v.logger.Warn(ctx, "stream subscribe failed", "venue", v.cfg.ID, "error", err)
		}
	case wsconn.StateReconnecting, wsconn.StateDisconnected:
		v.logger.Warn(ctx, "stream connection lost", "venue", v.cfg.ID, "state", state, "error", err)
	}
}

func (v *Venue) subscribe(ctx context.Context) error {
	if len(v.cfg.Pairs) == 0 {
		return nil
	}
	params := make([]string, len(v.cfg.Pairs))
	for i, p := range v.cfg.Pairs {
		params[i] = p.String()
	}
	return v.conn.SendJSON(ctx, Request{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     v.reqID.Add(1),
	})
}

func (v *Venue) handleMessage(ctx context.Context, msg []byte) {
	var ev BookTickerEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		v.logger.Debug(ctx, "stream: undecodable frame", "venue", v.cfg.ID, "error", err)
		return
	}
	if ev.EventType != EventTypeBookTicker {
		// Subscription acks and other events.
		return
	}

	pair, err := domain.ParsePair(ev.Pair)
	if err != nil {
		v.logger.Debug(ctx, "stream: bad pair", "venue", v.cfg.ID, "pair", ev.Pair)
		return
	}
	t, err := ev.parse()
	if err != nil {
		v.logger.Debug(ctx, "stream: bad ticker", "venue", v.cfg.ID, "pair", ev.Pair, "error", err)
		return
	}
	v.tickers.Set(ctx, pair, t, v.cfg.StaleTimeout)
}

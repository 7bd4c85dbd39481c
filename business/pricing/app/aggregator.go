package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

const (
	tracerName = "pricing"
	meterName  = "pricing"

	// MinQuotes is the number of venues that must answer for a pair to be scored.
	MinQuotes = 2

	defaultVenueTimeout = 4 * time.Second
	defaultMaxParallel  = 8
	maxCacheTTL         = 5 * time.Second
)

// AggregatorConfig bounds the fan-out.
type AggregatorConfig struct {
	VenueTimeout time.Duration
	MaxParallel  int
	CacheTTL     time.Duration // 0 disables the cache
}

type aggregatorMetrics struct {
	quotesTotal   metric.Int64Counter
	venueFailures metric.Int64Counter
	fetchLatency  metric.Float64Histogram
}

// Aggregator fans a quote request out to every venue of a pair.
type Aggregator struct {
	sources map[domain.VenueID]QuoteSource
	cfg     AggregatorConfig
	cache   QuoteCache
	logger  logger.LoggerInterface
	now     func() time.Time

	tracer  trace.Tracer
	metrics *aggregatorMetrics
}

// NewAggregator creates an Aggregator. cache may be nil.
func NewAggregator(sources []QuoteSource, cfg AggregatorConfig, cache QuoteCache, log logger.LoggerInterface) (*Aggregator, error) {
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = defaultVenueTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.CacheTTL > maxCacheTTL {
		cfg.CacheTTL = maxCacheTTL
	}

	byID := make(map[domain.VenueID]QuoteSource, len(sources))
	for _, s := range sources {
		if _, dup := byID[s.Venue()]; dup {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("duplicate quote source "+string(s.Venue())))
		}
		byID[s.Venue()] = s
	}

	a := &Aggregator{
		sources: byID,
		cfg:     cfg,
		cache:   cache,
		logger:  log,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Aggregator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.quotesTotal, err = meter.Int64Counter(
		"pricing_quotes_total",
		metric.WithDescription("Quotes obtained per venue"),
	)
	if err != nil {
		return err
	}

	a.metrics.venueFailures, err = meter.Int64Counter(
		"pricing_venue_failures_total",
		metric.WithDescription("Venue quote failures absorbed by the aggregator"),
	)
	if err != nil {
		return err
	}

	a.metrics.fetchLatency, err = meter.Float64Histogram(
		"pricing_fetch_latency_ms",
		metric.WithDescription("Latency of a full fan-out in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Venues returns the ids of every registered source.
func (a *Aggregator) Venues() []domain.VenueID {
	out := make([]domain.VenueID, 0, len(a.sources))
	for id := range a.sources {
		out = append(out, id)
	}
	return out
}

// FetchQuotes queries venues concurrently and returns the quotes that arrived.
// Venue failures are absorbed; fewer than MinQuotes answers is an
// INSUFFICIENT_QUOTES error.
func (a *Aggregator) FetchQuotes(ctx context.Context, pair domain.Pair, notional decimal.Decimal, venues []domain.VenueID) (map[domain.VenueID]domain.Quote, error) {
	if !notional.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("notional must be positive"))
	}
	if len(venues) == 0 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("no venues for "+pair.String()))
	}

	ctx, span := a.tracer.Start(ctx, "pricing.fetch_quotes",
		trace.WithAttributes(
			attribute.String("pair", pair.String()),
			attribute.String("notional", notional.String()),
			attribute.Int("venues", len(venues)),
		),
	)
	defer span.End()
	start := time.Now()

	var (
		mu     sync.Mutex
		quotes = make(map[domain.VenueID]domain.Quote, len(venues))
		seen   = make(map[domain.VenueID]bool, len(venues))
		g      errgroup.Group
	)
	g.SetLimit(a.cfg.MaxParallel)

	for _, id := range venues {
		if seen[id] {
			continue
		}
		seen[id] = true

		src, ok := a.sources[id]
		if !ok {
			a.logger.Warn(ctx, "unknown venue omitted", "venue", id, "pair", pair.String())
			continue
		}

		g.Go(func() error {
			q, err := a.fetchOne(ctx, src, pair, notional)
			if err != nil {
				a.metrics.venueFailures.Add(ctx, 1, metric.WithAttributes(
					attribute.String("venue", string(id)),
					attribute.String("code", string(apperror.GetCode(err))),
				))
				a.logger.Warn(ctx, "venue quote failed",
					"venue", id,
					"pair", pair.String(),
					"error", err,
				)
				return nil
			}

			a.metrics.quotesTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("venue", string(id)),
				attribute.Bool("cached", q.Cached()),
			))
			mu.Lock()
			quotes[id] = q
			mu.Unlock()
			return nil
		})
	}
	// Tasks never return errors; failures are absorbed above.
	_ = g.Wait()

	a.metrics.fetchLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("quotes", len(quotes)))

	if len(quotes) < MinQuotes {
		opts := []apperror.Option{
			apperror.WithContext(fmt.Sprintf("%s: %d of %d venues answered", pair, len(quotes), len(seen))),
		}
		if ctx.Err() != nil {
			opts = append(opts, apperror.WithCause(ctx.Err()))
		}
		span.SetStatus(codes.Error, "insufficient quotes")
		return nil, apperror.New(apperror.CodeInsufficientQuotes, opts...)
	}

	span.SetStatus(codes.Ok, "quotes fetched")
	return quotes, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, src QuoteSource, pair domain.Pair, notional decimal.Decimal) (domain.Quote, error) {
	useCache := a.cache != nil && a.cfg.CacheTTL > 0

	if useCache {
		if q, ok := a.cache.Get(ctx, src.Venue(), pair); ok &&
			q.Notional().Equal(notional) && q.Age(a.now()) < a.cfg.CacheTTL {
			return q.WithCached(), nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.VenueTimeout)
	defer cancel()

	q, err := src.Quote(callCtx, pair, notional)
	if err != nil {
		return domain.Quote{}, err
	}
	if q.Venue() != src.Venue() || q.Pair() != pair {
		return domain.Quote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("venue %s answered for %s/%s", src.Venue(), q.Venue(), q.Pair())))
	}

	if useCache {
		if err := a.cache.Set(ctx, q, a.cfg.CacheTTL); err != nil {
			a.logger.Debug(ctx, "quote cache write failed", "venue", src.Venue(), "error", err)
		}
	}
	return q, nil
}

// Package rediscache implements the quote cache as Redis hashes.
package rediscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/redisx"
)

var _ app.QuoteCache = (*QuoteCache)(nil)

// QuoteCache stores each quote at "quote:{venue}:{pair}" with fields price,
// liquidity, fee, confidence, notional and ts (unix nanos). The key expires
// after the TTL; ts is the venue's original timestamp.
type QuoteCache struct {
	rdb    *redis.Client
	logger logger.LoggerInterface
}

// New creates a QuoteCache backed by c.
func New(c *redisx.Client, log logger.LoggerInterface) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), logger: log}
}

func quoteKey(venue domain.VenueID, pair domain.Pair) string {
	return "quote:" + string(venue) + ":" + pair.String()
}

// Set stores quote and sets its expiry in one transaction.
func (c *QuoteCache) Set(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	key := quoteKey(q.Venue(), q.Pair())
	fields := map[string]interface{}{
		"price":      q.Price().String(),
		"liquidity":  q.Liquidity().String(),
		"fee":        q.Fee().String(),
		"confidence": q.Confidence().String(),
		"notional":   q.Notional().String(),
		"ts":         strconv.FormatInt(q.Timestamp().UnixNano(), 10),
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// Get returns the cached quote. Read or decode failures count as a miss.
func (c *QuoteCache) Get(ctx context.Context, venue domain.VenueID, pair domain.Pair) (domain.Quote, bool) {
	key := quoteKey(venue, pair)
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		c.logger.Debug(ctx, "redis: get quote failed", "key", key, "error", err)
		return domain.Quote{}, false
	}
	if len(vals) == 0 {
		return domain.Quote{}, false
	}

	q, err := decode(venue, pair, vals)
	if err != nil {
		c.logger.Debug(ctx, "redis: decode quote failed", "key", key, "error", err)
		return domain.Quote{}, false
	}
	return q, true
}

func decode(venue domain.VenueID, pair domain.Pair, vals map[string]string) (domain.Quote, error) {
	p := domain.QuoteParams{Venue: venue, Pair: pair}

	targets := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{"price", &p.Price},
		{"liquidity", &p.Liquidity},
		{"fee", &p.Fee},
		{"confidence", &p.Confidence},
		{"notional", &p.Notional},
	}
	for _, t := range targets {
		raw, ok := vals[t.field]
		if !ok {
			return domain.Quote{}, fmt.Errorf("missing field %s", t.field)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("parse %s: %w", t.field, err)
		}
		*t.dst = d
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	p.Timestamp = time.Unix(0, tsNano).UTC()

	return domain.NewQuote(p)
}

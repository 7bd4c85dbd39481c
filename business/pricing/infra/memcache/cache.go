// Package memcache implements the quote cache in process memory.
package memcache

import (
	"context"
	"time"

	"github.com/fd1az/flashloan-arb/business/pricing/app"
	"github.com/fd1az/flashloan-arb/business/pricing/domain"
	"github.com/fd1az/flashloan-arb/internal/cache"
)

var _ app.QuoteCache = (*QuoteCache)(nil)

type key struct {
	venue domain.VenueID
	pair  domain.Pair
}

// QuoteCache keeps the latest quote per (venue, pair).
type QuoteCache struct {
	c *cache.Cache[key, domain.Quote]
}

// New creates a QuoteCache sweeping expired entries every cleanup.
func New(cleanup time.Duration) *QuoteCache {
	return &QuoteCache{c: cache.New[key, domain.Quote](cleanup)}
}

func (q *QuoteCache) Get(ctx context.Context, venue domain.VenueID, pair domain.Pair) (domain.Quote, bool) {
	return q.c.Get(ctx, key{venue: venue, pair: pair})
}

func (q *QuoteCache) Set(ctx context.Context, quote domain.Quote, ttl time.Duration) error {
	q.c.Set(ctx, key{venue: quote.Venue(), pair: quote.Pair()}, quote, ttl)
	return nil
}

// Close stops the sweeper.
func (q *QuoteCache) Close() {
	q.c.Close()
}

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/execution/domain"
	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// PostgresStore persists results in execution_history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts r. Re-appending the same id is a no-op.
func (s *PostgresStore) Append(ctx context.Context, r domain.ExecutionResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_history (
			id, opportunity_id, pair, buy_venue, sell_venue, mode, success,
			estimated_profit, realized_profit, gas_used, tx_id,
			error_kind, error_message, started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.OpportunityID, r.Pair.String(), string(r.BuyVenue), string(r.SellVenue),
		r.Mode.String(), r.Success,
		r.EstimatedProfit.String(), r.RealizedProfit.String(),
		int64(r.GasUsed), r.TxID,
		string(r.ErrorKind), r.ErrorMessage,
		r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	if limit <= 0 {
		limit = defaultCapacity
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, opportunity_id, pair, buy_venue, sell_venue, mode, success,
		       estimated_profit::text, realized_profit::text, gas_used, tx_id,
		       error_kind, error_message, started_at, duration_ms
		FROM execution_history
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query executions: %w", err)
	}

	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return results, nil
}

func scanResult(row pgx.CollectableRow) (domain.ExecutionResult, error) {
	var (
		r                   domain.ExecutionResult
		pair, buy, sell     string
		mode, kind          string
		estimated, realized string
		gasUsed, durationMs int64
	)
	if err := row.Scan(
		&r.ID, &r.OpportunityID, &pair, &buy, &sell, &mode, &r.Success,
		&estimated, &realized, &gasUsed, &r.TxID,
		&kind, &r.ErrorMessage, &r.StartedAt, &durationMs,
	); err != nil {
		return domain.ExecutionResult{}, err
	}

	p, err := pricingDomain.ParsePair(pair)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	m, err := domain.ParseMode(mode)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if r.EstimatedProfit, err = decimal.NewFromString(estimated); err != nil {
		return domain.ExecutionResult{}, err
	}
	if r.RealizedProfit, err = decimal.NewFromString(realized); err != nil {
		return domain.ExecutionResult{}, err
	}

	r.Pair = p
	r.BuyVenue = pricingDomain.VenueID(buy)
	r.SellVenue = pricingDomain.VenueID(sell)
	r.Mode = m
	r.GasUsed = uint64(gasUsed)
	r.ErrorKind = domain.ParseErrorKind(kind)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return r, nil
}

package control

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
)

// PostgresStore keeps the record in the single-row admin_control table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Read returns the current record.
func (s *PostgresStore) Read(ctx context.Context) (execDomain.Control, error) {
	var c execDomain.Control
	err := s.pool.QueryRow(ctx,
		`SELECT pause, stop, updated_at FROM admin_control WHERE id = 1`,
	).Scan(&c.Pause, &c.Stop, &c.UpdatedAt)
	if err != nil {
		return execDomain.Control{}, fmt.Errorf("postgres: read admin control: %w", err)
	}
	return c, nil
}

// Write upserts the record.
func (s *PostgresStore) Write(ctx context.Context, c execDomain.Control) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_control (id, pause, stop, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET pause = EXCLUDED.pause, stop = EXCLUDED.stop, updated_at = EXCLUDED.updated_at`,
		c.Pause, c.Stop,
	)
	if err != nil {
		return fmt.Errorf("postgres: write admin control: %w", err)
	}
	return nil
}

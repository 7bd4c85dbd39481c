package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot struct {
	OpportunitiesFound  int64           `json:"opportunities_found"`
	ExecutionsAttempted int64           `json:"executions_attempted"`
	ExecutionsSucceeded int64           `json:"executions_succeeded"`
	ExecutionsFailed    int64           `json:"executions_failed"`
	ExecutionsSkipped   int64           `json:"executions_skipped"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	Cycles              int64           `json:"cycles"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// MetricsStore holds process-lifetime counters. Every counter is also exported
// through observable OTEL instruments.
type MetricsStore struct {
	found     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	cycles    atomic.Int64
	updated   atomic.Int64 // unix nanos

	mu     sync.Mutex
	profit decimal.Decimal

	now          func() time.Time
	registration metric.Registration
}

// NewMetricsStore creates a MetricsStore and registers its instruments.
func NewMetricsStore() (*MetricsStore, error) {
	m := &MetricsStore{now: time.Now, profit: decimal.Zero}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MetricsStore) initMetrics() error {
	meter := otel.Meter(meterName)

	found, err := meter.Int64ObservableCounter("arbitrage_opportunities_found_total",
		metric.WithDescription("Opportunities that passed scoring"))
	if err != nil {
		return err
	}
	succeeded, err := meter.Int64ObservableCounter("arbitrage_executions_succeeded_total",
		metric.WithDescription("Successful executions"))
	if err != nil {
		return err
	}
	failed, err := meter.Int64ObservableCounter("arbitrage_executions_failed_total",
		metric.WithDescription("Failed executions"))
	if err != nil {
		return err
	}
	skipped, err := meter.Int64ObservableCounter("arbitrage_executions_skipped_total",
		metric.WithDescription("Executions skipped by the breaker, pair lock or staleness"))
	if err != nil {
		return err
	}
	cycles, err := meter.Int64ObservableCounter("arbitrage_cycles_total",
		metric.WithDescription("Completed engine cycles"))
	if err != nil {
		return err
	}
	profit, err := meter.Float64ObservableGauge("arbitrage_profit_total_usd",
		metric.WithDescription("Cumulative realized profit"),
		metric.WithUnit("USD"))
	if err != nil {
		return err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := m.Snapshot()
		o.ObserveInt64(found, s.OpportunitiesFound)
		o.ObserveInt64(succeeded, s.ExecutionsSucceeded)
		o.ObserveInt64(failed, s.ExecutionsFailed)
		o.ObserveInt64(skipped, s.ExecutionsSkipped)
		o.ObserveInt64(cycles, s.Cycles)
		o.ObserveFloat64(profit, s.TotalProfit.InexactFloat64())
		return nil
	}, found, succeeded, failed, skipped, cycles, profit)
	return err
}

// IncrementFound adds n found opportunities.
func (m *MetricsStore) IncrementFound(n int) { m.add(&m.found, n) }

// IncrementExecuted adds n successful executions.
func (m *MetricsStore) IncrementExecuted(n int) { m.add(&m.succeeded, n) }

// IncrementFailed adds n failed executions.
func (m *MetricsStore) IncrementFailed(n int) { m.add(&m.failed, n) }

// IncrementSkipped adds n skipped executions.
func (m *MetricsStore) IncrementSkipped(n int) { m.add(&m.skipped, n) }

// IncrementCycles counts one completed cycle.
func (m *MetricsStore) IncrementCycles() { m.add(&m.cycles, 1) }

// AddProfit accumulates realized profit.
func (m *MetricsStore) AddProfit(amount decimal.Decimal) {
	m.mu.Lock()
	m.profit = m.profit.Add(amount)
	m.mu.Unlock()
	m.touch()
}

func (m *MetricsStore) add(c *atomic.Int64, n int) {
	if n <= 0 {
		return
	}
	c.Add(int64(n))
	m.touch()
}

func (m *MetricsStore) touch() {
	m.updated.Store(m.now().UnixNano())
}

// Snapshot copies the counters. It has no side effects.
func (m *MetricsStore) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	profit := m.profit
	m.mu.Unlock()

	succeeded := m.succeeded.Load()
	failed := m.failed.Load()

	var updated time.Time
	if ns := m.updated.Load(); ns != 0 {
		updated = time.Unix(0, ns).UTC()
	}

	return MetricsSnapshot{
		OpportunitiesFound:  m.found.Load(),
		ExecutionsAttempted: succeeded + failed,
		ExecutionsSucceeded: succeeded,
		ExecutionsFailed:    failed,
		ExecutionsSkipped:   m.skipped.Load(),
		TotalProfit:         profit,
		Cycles:              m.cycles.Load(),
		LastUpdated:         updated,
	}
}

// Close unregisters the OTEL callback.
func (m *MetricsStore) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

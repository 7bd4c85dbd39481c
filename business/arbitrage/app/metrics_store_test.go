package app

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMetricsStore_Counters(t *testing.T) {
	m, err := NewMetricsStore()
	if err != nil {
		t.Fatalf("NewMetricsStore() error = %v", err)
	}
	defer m.Close()

	m.IncrementFound(3)
	m.IncrementExecuted(1)
	m.IncrementFailed(2)
	m.IncrementSkipped(1)
	m.IncrementCycles()
	m.AddProfit(decimal.RequireFromString("10.25"))
	m.AddProfit(decimal.RequireFromString("0.75"))
	m.IncrementFound(-4) // ignored

	s := m.Snapshot()
	if s.OpportunitiesFound != 3 || s.ExecutionsSucceeded != 1 || s.ExecutionsFailed != 2 ||
		s.ExecutionsSkipped != 1 || s.Cycles != 1 || s.ExecutionsAttempted != 3 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if !s.TotalProfit.Equal(decimal.NewFromInt(11)) {
		t.Errorf("TotalProfit = %s, want 11", s.TotalProfit)
	}
	if s.LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}
}

func TestMetricsStore_SnapshotIdempotent(t *testing.T) {
	m, err := NewMetricsStore()
	if err != nil {
		t.Fatalf("NewMetricsStore() error = %v", err)
	}
	defer m.Close()

	m.IncrementFound(2)
	m.AddProfit(decimal.RequireFromString("4.2"))

	first := m.Snapshot()
	for range 5 {
		next := m.Snapshot()
		if next.OpportunitiesFound != first.OpportunitiesFound ||
			!next.TotalProfit.Equal(first.TotalProfit) ||
			!next.LastUpdated.Equal(first.LastUpdated) ||
			next.Cycles != first.Cycles {
			t.Fatalf("snapshot changed without increments: %+v vs %+v", first, next)
		}
	}
}

func TestMetricsStore_Concurrent(t *testing.T) {
	m, err := NewMetricsStore()
	if err != nil {
		t.Fatalf("NewMetricsStore() error = %v", err)
	}
	defer m.Close()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementFound(1)
			m.AddProfit(decimal.NewFromInt(1))
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.OpportunitiesFound != 50 || !s.TotalProfit.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected snapshot after concurrent updates: %+v", s)
	}
}

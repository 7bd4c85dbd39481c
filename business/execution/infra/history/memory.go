// Package history records execution results.
package history

import (
	"context"
	"sync"

	"github.com/fd1az/flashloan-arb/business/execution/app"
	"github.com/fd1az/flashloan-arb/business/execution/domain"
)

var (
	_ app.HistoryStore = (*RingStore)(nil)
	_ app.HistoryStore = (*PostgresStore)(nil)
)

const defaultCapacity = 500

// RingStore keeps the most recent results in memory.
type RingStore struct {
	mu    sync.RWMutex
	buf   []domain.ExecutionResult
	next  int
	count int
}

// NewRingStore creates a RingStore holding up to capacity results.
func NewRingStore(capacity int) *RingStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingStore{buf: make([]domain.ExecutionResult, capacity)}
}

// Append stores r, evicting the oldest result when full.
func (s *RingStore) Append(_ context.Context, r domain.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = r
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *RingStore) Recent(_ context.Context, limit int) ([]domain.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]domain.ExecutionResult, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out, nil
}

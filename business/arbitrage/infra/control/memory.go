// Package control stores the operator's admin record.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/flashloan-arb/business/arbitrage/app"
	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
)

var (
	_ app.ControlStore = (*MemoryStore)(nil)
	_ app.ControlStore = (*PostgresStore)(nil)
)

// MemoryStore keeps the record in process. It starts unpaused.
type MemoryStore struct {
	mu  sync.RWMutex
	rec execDomain.Control
	now func() time.Time
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Read returns the current record.
func (s *MemoryStore) Read(_ context.Context) (execDomain.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec, nil
}

// Write replaces the record, stamping UpdatedAt.
func (s *MemoryStore) Write(_ context.Context, c execDomain.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = s.now()
	s.rec = c
	return nil
}

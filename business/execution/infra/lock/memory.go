// Package lock provides pair locks for the execution coordinator.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/flashloan-arb/business/execution/app"
	"github.com/fd1az/flashloan-arb/internal/apperror"
)

var (
	_ app.PairLocker = (*MemoryLocker)(nil)
	_ app.PairLocker = (*RedisLocker)(nil)
)

// MemoryLocker is a process-local lock table with expiry.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]time.Time
	nextGen uint64
	gens    map[string]uint64
	now     func() time.Time
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]time.Time),
		gens: make(map[string]uint64),
		now:  time.Now,
	}
}

// Acquire takes key for ttl. An expired holder is evicted.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, heldError(key)
	}

	l.nextGen++
	gen := l.nextGen
	l.held[key] = now.Add(ttl)
	l.gens[key] = gen

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A newer holder may own the key after expiry.
			if l.gens[key] == gen {
				delete(l.held, key)
				delete(l.gens, key)
			}
		})
	}, nil
}

func heldError(key string) error {
	return apperror.New(apperror.CodeExecutionInProgress,
		apperror.WithContext("lock held: "+key))
}

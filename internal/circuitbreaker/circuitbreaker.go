// Package circuitbreaker wraps sony/gobreaker for venue calls and execution gating.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// Config configures a call breaker.
type Config struct {
	Name                string
	MaxRequests         uint32        // probes allowed in half-open
	Interval            time.Duration // closed-state count reset period, 0 = never
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // trips after this many consecutive failures
	OnStateChange       func(name string, from, to State)
}

// DefaultConfig returns settings suited to RPC and HTTP venue calls.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker guards calls returning T.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New builds a CircuitBreaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings(cfg))}
}

// Execute runs fn unless the breaker is open.
func (b *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(fn)
	if err != nil && isRejection(err) {
		var zero T
		return zero, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(b.cb.Name()))
	}
	return v, err
}

// State reports the current breaker state.
func (b *CircuitBreaker[T]) State() State {
	return fromGobreaker(b.cb.State())
}

// Name returns the breaker name.
func (b *CircuitBreaker[T]) Name() string {
	return b.cb.Name()
}

func settings(cfg Config) gobreaker.Settings {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		hook := cfg.OnStateChange
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			hook(name, fromGobreaker(from), fromGobreaker(to))
		}
	}
	return st
}

func isRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

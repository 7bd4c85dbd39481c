package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

func TestLimiter_Burst(t *testing.T) {
	l := New(60) // 1 rps, burst 6

	for i := 0; i < 6; i++ {
		if !l.Allow() {
			t.Fatalf("call %d should be allowed within burst", i)
		}
	}
	if l.Allow() {
		t.Error("call beyond burst should be throttled")
	}
}

func TestLimiter_WaitDeadline(t *testing.T) {
	l := New(1) // one token per minute
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	if !apperror.HasCode(err, apperror.CodeRateLimitExceeded) {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %v", err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter throttled")
		}
	}
}

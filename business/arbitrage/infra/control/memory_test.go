package control

import (
	"context"
	"testing"
	"time"

	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	got, err := s.Read(ctx)
	if err != nil || got.Pause || got.Stop {
		t.Fatalf("initial Read() = %+v, %v", got, err)
	}

	if err := s.Write(ctx, execDomain.Control{Pause: true}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _ = s.Read(ctx)
	if !got.Pause || got.Stop || !got.UpdatedAt.Equal(at) {
		t.Errorf("Read() after pause = %+v", got)
	}
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fd1az/flashloan-arb/internal/logger"
)

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		redisOK    bool
		wantCode   int
		wantStatus string
	}{
		{name: "all healthy", redisOK: true, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "one degraded", redisOK: false, wantCode: http.StatusServiceUnavailable, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(0, "test", logger.Discard())
			s.RegisterCheck("engine", func(context.Context) (bool, string) { return true, "" })
			s.RegisterCheck("redis", func(context.Context) (bool, string) { return tt.redisOK, "ping" })

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var status Status
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if len(status.Checks) != 2 {
				t.Errorf("checks = %d, want 2", len(status.Checks))
			}
		})
	}
}

func TestServer_ExtraHandler(t *testing.T) {
	s := NewServer(0, "test", logger.Discard())
	s.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("arb_cycles_total 1"))
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "arb_cycles_total 1" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live code = %d", rec.Code)
	}
}

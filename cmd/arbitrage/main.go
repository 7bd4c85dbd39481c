// Package main is the entry point for the flash-loan arbitrage engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/flashloan-arb/business/arbitrage"
	arbitrageDI "github.com/fd1az/flashloan-arb/business/arbitrage/di"
	"github.com/fd1az/flashloan-arb/business/blockchain"
	"github.com/fd1az/flashloan-arb/business/execution"
	executionDI "github.com/fd1az/flashloan-arb/business/execution/di"
	execDomain "github.com/fd1az/flashloan-arb/business/execution/domain"
	"github.com/fd1az/flashloan-arb/business/pricing"
	"github.com/fd1az/flashloan-arb/internal/apm"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
	"github.com/fd1az/flashloan-arb/internal/config"
	"github.com/fd1az/flashloan-arb/internal/health"
	"github.com/fd1az/flashloan-arb/internal/logger"
	"github.com/fd1az/flashloan-arb/internal/metrics"
	"github.com/fd1az/flashloan-arb/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	control := flag.String("control", "", "Write an operator command (pause, resume, stop) and exit")
	history := flag.Int("history", 0, "Print the N most recent executions and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flashloan-arb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *control != "":
		err = runControl(ctx, *configPath, *control)
	case *history > 0:
		err = runHistory(ctx, *configPath, *history)
	default:
		err = run(ctx, *configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// modules lists the bounded contexts in dependency order.
func modules() []monolith.Module {
	return []monolith.Module{
		&blockchain.Module{}, // live gas pricing
		&pricing.Module{},    // venue quotes
		&execution.Module{},  // coordinator and breaker
		&arbitrage.Module{},  // engine; depends on all of the above
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	// Stdout carries the cycle report.
	return logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	log.Info(ctx, "starting flash-loan arbitrage engine",
		"version", version,
		"environment", cfg.App.Environment,
		"mode", cfg.Execution.Mode,
	)

	traceProvider, exporter, err := initTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := traceProvider.Stop(); err != nil {
			log.Warn(ctx, "trace provider shutdown failed", "error", err)
		}
		if exporter != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = exporter.Shutdown(shutdownCtx)
		}
	}()

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	mods := modules()
	if err := mono.RegisterModules(mods...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, mods...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	healthServer := health.NewServer(cfg.Health.Port, version, log)
	mono.RegisterHealthChecks(healthServer)
	gate := executionDI.GetBreaker(mono.Services())
	healthServer.RegisterCheck("execution_breaker", func(context.Context) (bool, string) {
		state := gate.State()
		return state != circuitbreaker.StateOpen, string(state)
	})
	store := arbitrageDI.GetMetrics(mono.Services())
	healthServer.Handle("/stats", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(store.Snapshot())
	}))
	if exporter != nil {
		healthServer.Handle("/metrics", exporter.Handler())
	}
	if err := healthServer.Start(ctx); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}

	engine := arbitrageDI.GetEngine(mono.Services())

	// Run returns nil on an operator stop; cancel so the server goroutine exits too.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		log.Info(gctx, "all modules started, beginning scan loop")
		return engine.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthServer.Stop(shutdownCtx)
	})
	err = g.Wait()

	snap := store.Snapshot()
	log.Info(ctx, "shutting down",
		"cycles", snap.Cycles,
		"opportunities", snap.OpportunitiesFound,
		"executions_succeeded", snap.ExecutionsSucceeded,
		"executions_failed", snap.ExecutionsFailed,
		"total_profit", snap.TotalProfit.StringFixed(2),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func initTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (apm.TraceProvider, *metrics.Exporter, error) {
	if !cfg.Telemetry.Enabled {
		tp, err := apm.NewTraceProvider(ctx, apm.Config{Provider: apm.EmptyProvider}, log)
		return tp, nil, err
	}

	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	exporter, err := metrics.NewMetricProvider(ctx,
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithPrometheus(),
	)
	if err != nil {
		_ = tp.Stop()
		return nil, nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	log.Info(ctx, "metrics enabled", "path", "/metrics", "port", cfg.Health.Port)
	return tp, exporter, nil
}

// runControl writes pause, resume or stop to the shared control store.
func runControl(ctx context.Context, configPath, command string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Control.Backend != "postgres" {
		return fmt.Errorf("control.backend %q is process-local; use postgres to drive a running engine", cfg.Control.Backend)
	}

	log := newLogger(cfg)
	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()
	if err := mono.RegisterModules(modules()...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	store := arbitrageDI.GetControl(mono.Services())
	current, err := store.Read(ctx)
	if err != nil {
		return err
	}

	next, err := applyCommand(current, command)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, next); err != nil {
		return err
	}
	log.Info(ctx, "control updated", "pause", next.Pause, "stop", next.Stop)
	return nil
}

func applyCommand(c execDomain.Control, command string) (execDomain.Control, error) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "pause":
		c.Pause = true
	case "resume":
		c.Pause = false
		c.Stop = false
	case "stop":
		c.Stop = true
	default:
		return c, fmt.Errorf("unknown control command %q (want pause, resume or stop)", command)
	}
	return c, nil
}

// runHistory prints recent execution results as JSON lines.
func runHistory(ctx context.Context, configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Execution.HistoryBackend != "postgres" {
		return fmt.Errorf("execution.history_backend %q is process-local; nothing to read", cfg.Execution.HistoryBackend)
	}

	log := newLogger(cfg)
	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()
	if err := mono.RegisterModules(modules()...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	results, err := executionDI.GetHistory(mono.Services()).Recent(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range results {
		if err := enc.Encode(historyLine{
			ID:       r.ID,
			Pair:     r.Pair.String(),
			Route:    string(r.BuyVenue) + "->" + string(r.SellVenue),
			Mode:     r.Mode.String(),
			Success:  r.Success,
			Kind:     string(r.ErrorKind),
			Profit:   r.RealizedProfit.StringFixed(2),
			TxID:     r.TxID,
			Started:  r.StartedAt,
			Duration: r.Duration.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

type historyLine struct {
	ID       string    `json:"id"`
	Pair     string    `json:"pair"`
	Route    string    `json:"route"`
	Mode     string    `json:"mode"`
	Success  bool      `json:"success"`
	Kind     string    `json:"error_kind"`
	Profit   string    `json:"realized_profit"`
	TxID     string    `json:"tx_id,omitempty"`
	Started  time.Time `json:"started_at"`
	Duration string    `json:"duration"`
}

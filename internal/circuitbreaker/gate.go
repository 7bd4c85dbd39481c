package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/flashloan-arb/internal/apperror"
)

// GateConfig configures the execution gate.
type GateConfig struct {
	Name                   string
	MaxConsecutiveFailures uint32
	Cooldown               time.Duration
	OnStateChange          func(from, to State)
}

// GateState is a point-in-time view of the gate.
type GateState struct {
	State               State
	ConsecutiveFailures uint32
	OpenedAt            time.Time
	LastFailureAt       time.Time
}

// errExecutionFailed is reported to the breaker for a failed execution.
var errExecutionFailed = apperror.New(apperror.CodeUnknownExecution,
	apperror.WithContext("execution failed"))

// Gate is a two-step breaker: callers ask permission, do the work elsewhere,
// then report the outcome. After MaxConsecutiveFailures it opens; once the
// cooldown elapses exactly one probe is admitted.
type Gate struct {
	cb  *gobreaker.TwoStepCircuitBreaker[struct{}]
	now func() time.Time

	// mu is taken before the breaker's lock, never after, so outcome
	// reports and snapshots see state and counters together.
	mu            sync.Mutex
	failures      uint32
	lastFailureAt time.Time

	openedAt atomic.Int64 // unix nanos; written under the breaker's lock
}

// NewGate builds a Gate.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{now: time.Now}

	threshold := cfg.MaxConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Runs under the breaker's own lock; must not call back into cb.
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				g.openedAt.Store(g.now().UnixNano())
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(fromGobreaker(from), fromGobreaker(to))
			}
		},
	}

	g.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](st)
	return g
}

// Allow asks to run one execution. On success the returned done func must be
// called exactly once with the outcome. A rejected call returns CIRCUIT_OPEN.
func (g *Gate) Allow() (func(success bool), error) {
	done, err := g.cb.Allow()
	if err != nil {
		return nil, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(g.cb.Name()))
	}

	var once sync.Once
	return func(success bool) {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if success {
				g.failures = 0
				done(nil)
				return
			}
			g.failures++
			g.lastFailureAt = g.now()
			done(errExecutionFailed)
		})
	}, nil
}

// State reports the current state, moving OPEN to HALF_OPEN once the
// cooldown has elapsed.
func (g *Gate) State() State {
	return fromGobreaker(g.cb.State())
}

// Snapshot returns state, counters and timestamps. The failure counter
// survives the trip to OPEN and is cleared only by a success.
func (g *Gate) Snapshot() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()

	var openedAt time.Time
	if ns := g.openedAt.Load(); ns != 0 {
		openedAt = time.Unix(0, ns)
	}
	return GateState{
		State:               g.State(),
		ConsecutiveFailures: g.failures,
		OpenedAt:            openedAt,
		LastFailureAt:       g.lastFailureAt,
	}
}

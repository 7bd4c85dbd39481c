// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arb/business/arbitrage/app"
	"github.com/fd1az/flashloan-arb/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arb/internal/circuitbreaker"
)

// Ensure ConsoleReporter implements Reporter.
var _ app.Reporter = (*ConsoleReporter)(nil)

const defaultMaxRows = 10

var hundred = decimal.NewFromInt(100)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	maxRows int
}

// NewConsoleReporter creates a new ConsoleReporter. A nil writer means stdout.
func NewConsoleReporter(out io.Writer, maxRows int) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &ConsoleReporter{out: out, maxRows: maxRows}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, titleStyle.Render("Flash-Loan Arbitrage Engine Started"))
	return nil
}

// Report renders one cycle.
func (r *ConsoleReporter) Report(_ context.Context, rep app.CycleReport) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s  %s  breaker %s",
		headerStyle.Render(fmt.Sprintf("CYCLE #%d", rep.Cycle)),
		rep.StartedAt.Format("15:04:05"),
		mutedValue.Render(rep.Duration.Round(time.Millisecond).String()),
		renderState(rep.Breaker),
	)
	if rep.Paused {
		b.WriteString("  " + stateHalfOpen.Render("PAUSED"))
	}
	b.WriteString("\n")

	for _, p := range rep.Pairs {
		if p.Err != "" {
			fmt.Fprintf(&b, "  %-12s %s\n", p.Pair, negativeValue.Render("skipped: "+p.Err))
			continue
		}
		fmt.Fprintf(&b, "  %-12s notional %s  quotes %d  opportunities %d\n",
			p.Pair, p.Notional.StringFixed(2), p.Quotes, p.Opportunities)
	}

	if len(rep.Opportunities) > 0 {
		b.WriteString(boxStyle.Render(r.table(rep.Opportunities)))
		b.WriteString("\n")
	}

	if res := rep.Execution; res != nil {
		if res.Success {
			fmt.Fprintf(&b, "  %s %s %s→%s realized %s (est %s) gas %d tx %s\n",
				positiveValue.Render("EXECUTED"),
				res.Pair, res.BuyVenue, res.SellVenue,
				signed(res.RealizedProfit), res.EstimatedProfit.StringFixed(2),
				res.GasUsed, res.TxID)
		} else {
			fmt.Fprintf(&b, "  %s %s %s→%s %s %s\n",
				negativeValue.Render("NOT EXECUTED"),
				res.Pair, res.BuyVenue, res.SellVenue,
				res.ErrorKind, mutedValue.Render(res.ErrorMessage))
		}
	}

	m := rep.Metrics
	fmt.Fprintf(&b, "  %s\n", mutedValue.Render(fmt.Sprintf(
		"found %d | executed %d | failed %d | skipped %d | profit %s | cycles %d",
		m.OpportunitiesFound, m.ExecutionsSucceeded, m.ExecutionsFailed,
		m.ExecutionsSkipped, m.TotalProfit.StringFixed(2), m.Cycles)))

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, b.String())
}

func (r *ConsoleReporter) table(opps []domain.Opportunity) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-11s %-24s %9s %9s %9s %7s %6s %-6s %4s",
		"PAIR", "ROUTE", "NET", "GROSS", "COSTS", "SPREAD", "CONF", "RISK", "PRIO")))

	shown := opps
	if len(shown) > r.maxRows {
		shown = shown[:r.maxRows]
	}
	for _, o := range shown {
		fmt.Fprintf(&b, "\n%-11s %-24s %9s %9s %9s %7s %6s %-6s %4d",
			o.Pair,
			string(o.BuyVenue)+" → "+string(o.SellVenue),
			signed(o.NetProfit),
			o.GrossProfit.StringFixed(2),
			o.Costs.Total().StringFixed(2),
			o.SpreadPct().Mul(hundred).StringFixed(2)+"%",
			o.Confidence.StringFixed(2),
			o.Risk,
			o.Priority,
		)
	}
	if more := len(opps) - len(shown); more > 0 {
		b.WriteString("\n" + mutedValue.Render(fmt.Sprintf("… %d more", more)))
	}
	return b.String()
}

func signed(d decimal.Decimal) string {
	s := "$" + d.StringFixed(2)
	if d.IsNegative() {
		return negativeValue.Render(s)
	}
	return positiveValue.Render(s)
}

func renderState(g circuitbreaker.GateState) string {
	switch g.State {
	case circuitbreaker.StateOpen:
		return stateOpen.Render(string(g.State))
	case circuitbreaker.StateHalfOpen:
		return stateHalfOpen.Render(string(g.State))
	case "":
		return mutedValue.Render("n/a")
	default:
		return stateClosed.Render(string(g.State))
	}
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Flash-Loan Arbitrage Engine Stopped")
	return nil
}

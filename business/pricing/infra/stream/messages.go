// Package stream implements a push-based QuoteSource fed over WebSocket.
package stream

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Request is a subscription request.
type Request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Response acknowledges a Request.
type Response struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// Event types
const (
	EventTypeBookTicker = "bookTicker"
)

// BookTickerEvent carries the best bid/ask of a pair.
type BookTickerEvent struct {
	EventType string `json:"e"` // "bookTicker"
	EventTime int64  `json:"E"` // ms
	Pair      string `json:"s"` // "WETH/USDC"
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"` // base units
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"` // base units
}

// ticker is the parsed form kept per pair.
type ticker struct {
	bid, bidQty decimal.Decimal
	ask, askQty decimal.Decimal
	at          time.Time
}

func (e *BookTickerEvent) parse() (ticker, error) {
	var (
		t   ticker
		err error
	)
	if t.bid, err = decimal.NewFromString(e.BidPrice); err != nil {
		return t, err
	}
	if t.bidQty, err = decimal.NewFromString(e.BidQty); err != nil {
		return t, err
	}
	if t.ask, err = decimal.NewFromString(e.AskPrice); err != nil {
		return t, err
	}
	if t.askQty, err = decimal.NewFromString(e.AskQty); err != nil {
		return t, err
	}
	t.at = time.UnixMilli(e.EventTime).UTC()
	return t, nil
}

var two = decimal.NewFromInt(2)

// mid returns the mid price.
func (t ticker) mid() decimal.Decimal {
	return t.bid.Add(t.ask).Div(two)
}

// depth returns top-of-book liquidity in quote units: the thinner side
// valued at mid.
func (t ticker) depth() decimal.Decimal {
	return decimal.Min(t.bidQty, t.askQty).Mul(t.mid())
}
